package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"faturas/internal/cache"
	"faturas/internal/core"
	"faturas/internal/gateway"
	applog "faturas/internal/log"
	"faturas/internal/queue"
)

// refresher reloads an owner's cache entry from the remote store. Writes
// still waiting in the queue are layered back on top of the fetched rows,
// so a refetch never hides them.
type refresher struct {
	gw      gateway.Gateway
	cache   *cache.QueryCache
	queue   *queue.Store
	timeout time.Duration
	now     func() time.Time
	logger  *applog.Logger
}

func (r *refresher) refetch(ctx context.Context, owner string) error {
	key := cache.InvoicesKey(owner)
	txn, err := r.cache.Begin(ctx, key)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		invoices []core.Invoice
		payments []core.Payment
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		var err error
		invoices, err = r.gw.SelectInvoices(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = r.gw.SelectPayments(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refetch invoices of %s: %w", owner, err)
	}

	now := r.now()
	views := core.BuildViews(invoices, payments, now)
	r.cache.Replace(key, views)

	pending := r.applyPending(txn, now)
	txn.Commit()

	r.logger.DebugContext(ctx, "Invoices refetched",
		applog.FieldOwner, owner,
		"invoices", len(views),
		applog.FieldPending, pending)
	return nil
}

// rebuild recomputes the entry from the rows of the last refetch and the
// writes still queued, without reaching the remote store.
func (r *refresher) rebuild(ctx context.Context, owner string) error {
	txn, err := r.cache.Begin(ctx, cache.InvoicesKey(owner))
	if err != nil {
		return err
	}
	defer txn.Rollback()

	txn.Reset()
	pending := r.applyPending(txn, r.now())
	txn.Commit()

	r.logger.DebugContext(ctx, "Invoices rebuilt from cache",
		applog.FieldOwner, owner,
		applog.FieldPending, pending)
	return nil
}

func (r *refresher) applyPending(txn *cache.Txn, now time.Time) int {
	pending := r.queue.List()
	if len(pending) > 0 {
		txn.Apply(func(current []core.InvoiceView) []core.InvoiceView {
			for _, e := range pending {
				current = applyMutation(current, e.Mutation, now)
			}
			return current
		})
	}
	return len(pending)
}
