// Package services holds the invoice write path: the dispatcher that applies
// writes optimistically and either sends or queues them, and the processor
// that replays the queue once the remote store is reachable again.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"faturas/internal/amqp"
	"faturas/internal/auth"
	"faturas/internal/cache"
	"faturas/internal/connectivity"
	"faturas/internal/core"
	"faturas/internal/gateway"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/queue"
)

var (
	ErrUnauthenticated       = errors.New("no active session")
	ErrPaymentExceedsBalance = errors.New("payment exceeds remaining balance")
	ErrInvoiceNotFound       = errors.New("invoice not found")
)

// ChangePublisher announces that an owner's invoices changed remotely.
type ChangePublisher interface {
	PublishInvoicesChanged(ctx context.Context, msg *amqp.InvoicesChangedMessage) error
}

// OfflineMarker is told about transient failures of direct writes.
type OfflineMarker interface {
	MarkOffline(ctx context.Context, cause error)
}

// Deps wires the write path. Publisher, Offline and Metrics are optional.
type Deps struct {
	Gateway   gateway.Gateway
	Queue     *queue.Store
	Cache     *cache.QueryCache
	Oracle    connectivity.Oracle
	Sessions  auth.SessionProvider
	Offline   OfflineMarker
	Publisher ChangePublisher
	Metrics   *metrics.Metrics
	Logger    *applog.Logger

	// Timeout bounds every gateway call (default 10s).
	Timeout time.Duration
	Now     func() time.Time
	NewID   func() string
}

func (d *Deps) defaults() {
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = applog.Discard()
	}
}

func (d Deps) refresher(logger *applog.Logger) *refresher {
	return &refresher{
		gw:      d.Gateway,
		cache:   d.Cache,
		queue:   d.Queue,
		timeout: d.Timeout,
		now:     d.Now,
		logger:  logger,
	}
}

// Result tells the caller whether a write reached the remote store or was
// queued for later.
type Result struct {
	Queued bool     `json:"queued"`
	IDs    []string `json:"ids,omitempty"`
}

// InvoiceService is the mutation dispatcher and the read side of the
// optimistic cache.
type InvoiceService struct {
	deps    Deps
	refresh *refresher
	logger  *applog.Logger
}

func NewInvoiceService(deps Deps) *InvoiceService {
	deps.defaults()
	logger := deps.Logger.WithComponent(applog.ComponentInvoice)
	return &InvoiceService{
		deps:    deps,
		refresh: deps.refresher(logger),
		logger:  logger,
	}
}

// AddInvoice registers base as a plan of installments. base.TotalAmount is
// the total of the whole plan.
func (s *InvoiceService) AddInvoice(ctx context.Context, base core.Invoice, plan core.InstallmentPlan) (Result, error) {
	return s.dispatch(ctx, queue.KindAddInvoice, func(owner string, _ []core.InvoiceView) (queue.Mutation, error) {
		base.ID = ""
		base.OwnerID = owner
		base.CreatedAt = s.deps.Now().UTC()
		rows, err := core.BuildInstallments(base, plan, s.deps.NewID)
		if err != nil {
			return nil, err
		}
		return queue.AddInvoice{Rows: rows}, nil
	})
}

func (s *InvoiceService) UpdateInvoice(ctx context.Context, id string, patch core.InvoicePatch) (Result, error) {
	return s.dispatch(ctx, queue.KindUpdateInvoice, func(_ string, views []core.InvoiceView) (queue.Mutation, error) {
		if err := patch.Validate(); err != nil {
			return nil, err
		}
		if _, ok := core.FindView(views, id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		return queue.UpdateInvoice{ID: id, Patch: patch}, nil
	})
}

// DeleteInvoice removes the invoice, or its whole installment plan when it
// belongs to one. Payments go with it.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id string) (Result, error) {
	return s.dispatch(ctx, queue.KindDeleteInvoice, func(_ string, views []core.InvoiceView) (queue.Mutation, error) {
		v, ok := core.FindView(views, id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		return queue.DeleteInvoice{ID: id, Group: v.InstallmentGroup}, nil
	})
}

// AddPayment records p against p.InvoiceID. A zero date means today.
func (s *InvoiceService) AddPayment(ctx context.Context, p core.Payment) (Result, error) {
	return s.dispatch(ctx, queue.KindAddPayment, func(owner string, views []core.InvoiceView) (queue.Mutation, error) {
		now := s.deps.Now()
		p.ID = s.deps.NewID()
		p.OwnerID = owner
		p.CreatedAt = now.UTC()
		if p.Date.IsZero() {
			p.Date = core.NewDate(now.Year(), int(now.Month()), now.Day())
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		v, ok := core.FindView(views, p.InvoiceID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, p.InvoiceID)
		}
		if v.TotalPaid.Cents+p.Amount.Cents > v.TotalAmount.Cents {
			return nil, fmt.Errorf("%w: %s left on %s", ErrPaymentExceedsBalance, v.RemainingBalance, v.ID)
		}
		return queue.AddPayment{Payment: p}, nil
	})
}

// AddPaymentsBatch settles the unpaid invoices of month with their
// remaining balance, restricted to ids when given. Nothing to settle is
// not an error.
func (s *InvoiceService) AddPaymentsBatch(ctx context.Context, month core.Month, ids []string, date core.Date, isEarly bool) (Result, error) {
	return s.dispatch(ctx, queue.KindAddPaymentsBatch, func(owner string, views []core.InvoiceView) (queue.Mutation, error) {
		if err := month.Validate(); err != nil {
			return nil, err
		}
		now := s.deps.Now()
		if date.IsZero() {
			date = core.NewDate(now.Year(), int(now.Month()), now.Day())
		}
		unpaid := core.Unpaid(views, month, ids)
		if len(unpaid) == 0 {
			return nil, nil
		}
		payments := make([]core.Payment, 0, len(unpaid))
		for _, v := range unpaid {
			payments = append(payments, core.Payment{
				ID:        s.deps.NewID(),
				OwnerID:   owner,
				InvoiceID: v.ID,
				Amount:    v.RemainingBalance,
				Date:      date,
				IsEarly:   isEarly,
				CreatedAt: now.UTC(),
			})
		}
		return queue.AddPaymentsBatch{Payments: payments}, nil
	})
}

// dispatch runs one write: prepare builds the mutation from the current
// views (or rejects it), the cache is updated optimistically, then the
// mutation goes to the gateway or the queue. A nil mutation from prepare
// means there is nothing to do.
func (s *InvoiceService) dispatch(ctx context.Context, kind queue.Kind, prepare func(owner string, views []core.InvoiceView) (queue.Mutation, error)) (Result, error) {
	sess, ok := s.deps.Sessions.Session(ctx)
	if !ok {
		return Result{}, ErrUnauthenticated
	}
	owner := sess.UserID
	online := s.deps.Oracle.Online()
	if online {
		s.ensureLoaded(ctx, owner)
	}

	txn, err := s.deps.Cache.Begin(ctx, cache.InvoicesKey(owner))
	if err != nil {
		return Result{}, err
	}
	defer txn.Rollback()

	before := txn.Views()
	m, err := prepare(owner, before)
	if err != nil {
		s.deps.Metrics.Mutation(string(kind), metrics.OutcomeRejected)
		s.logger.DebugContext(ctx, "Write rejected",
			applog.FieldMutationKind, kind,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return Result{}, err
	}
	if m == nil {
		return Result{}, nil
	}

	now := s.deps.Now()
	txn.Apply(func(views []core.InvoiceView) []core.InvoiceView {
		return applyMutation(views, m, now)
	})

	if !online {
		entry, err := s.deps.Queue.Enqueue(ctx, m)
		if err != nil {
			s.deps.Metrics.Mutation(string(kind), metrics.OutcomeFailed)
			return Result{}, err
		}
		txn.Commit()
		s.deps.Metrics.Mutation(string(kind), metrics.OutcomeQueued)
		s.logger.InfoContext(ctx, "Write queued while offline",
			applog.FieldMutationID, entry.ID,
			applog.FieldMutationKind, kind,
			applog.FieldOwner, owner)
		return Result{Queued: true, IDs: mutationIDs(m)}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	ids, err := execute(callCtx, s.deps.Gateway, m)
	cancel()
	if err != nil {
		s.deps.Metrics.Mutation(string(kind), metrics.OutcomeFailed)
		if gateway.IsTransient(err) && s.deps.Offline != nil {
			s.deps.Offline.MarkOffline(ctx, err)
		}
		s.logger.ErrorContext(ctx, "Write failed",
			applog.FieldMutationKind, kind,
			applog.FieldOwner, owner,
			applog.FieldError, err)
		return Result{}, fmt.Errorf("%s: %w", kind, err)
	}
	txn.Commit()
	s.deps.Metrics.Mutation(string(kind), metrics.OutcomeDirect)
	s.logger.InfoContext(ctx, "Write stored",
		applog.FieldMutationKind, kind,
		applog.FieldOwner, owner)

	s.settle(ctx, owner, affectedMonths(before, m))
	return Result{IDs: ids}, nil
}

// settle reconciles the cache with the remote store after a direct write
// and tells other processes about it. Failures are only logged.
func (s *InvoiceService) settle(ctx context.Context, owner string, months []string) {
	s.deps.Cache.Invalidate(cache.InvoicesKey(owner))
	if err := s.refresh.refetch(ctx, owner); err != nil {
		s.logger.WarnContext(ctx, "Refetch after write failed",
			applog.FieldOwner, owner,
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldError, err)
	}
	publish(ctx, s.deps, s.logger, owner, amqp.SourceDispatch, months)
}

func publish(ctx context.Context, deps Deps, logger *applog.Logger, owner, source string, months []string) {
	if deps.Publisher == nil {
		return
	}
	err := deps.Publisher.PublishInvoicesChanged(ctx, amqp.NewInvoicesChangedMessage(owner, source, months))
	deps.Metrics.ChangeEvent("publish", err)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish change event",
			applog.FieldOwner, owner,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err)
	}
}

// ensureLoaded fills an empty cache entry from the remote store.
func (s *InvoiceService) ensureLoaded(ctx context.Context, owner string) {
	if _, ok := s.deps.Cache.Get(cache.InvoicesKey(owner)); ok {
		return
	}
	if err := s.refresh.refetch(ctx, owner); err != nil {
		s.logger.WarnContext(ctx, "Initial load failed",
			applog.FieldOwner, owner,
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldError, err)
	}
}

// views returns the owner's cached views, refetching first when the entry
// is missing or stale and the store is reachable. Derived fields are
// recomputed against the current time so overdue flips without a refetch.
func (s *InvoiceService) views(ctx context.Context) ([]core.InvoiceView, error) {
	sess, ok := s.deps.Sessions.Session(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	key := cache.InvoicesKey(sess.UserID)
	snap, ok := s.deps.Cache.Get(key)
	if (!ok || snap.Stale) && s.deps.Oracle.Online() {
		if err := s.refresh.refetch(ctx, sess.UserID); err != nil {
			if !ok {
				return nil, err
			}
			s.logger.WarnContext(ctx, "Serving stale invoices",
				applog.FieldOwner, sess.UserID,
				applog.FieldError, err)
		} else {
			snap, _ = s.deps.Cache.Get(key)
		}
	}
	now := s.deps.Now()
	for i := range snap.Views {
		snap.Views[i].Recompute(now)
	}
	return snap.Views, nil
}

func (s *InvoiceService) ListInvoices(ctx context.Context, f core.Filter) ([]core.InvoiceView, error) {
	views, err := s.views(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterViews(views, f), nil
}

func (s *InvoiceService) MonthSummary(ctx context.Context, m core.Month) (core.MonthSummary, error) {
	views, err := s.views(ctx)
	if err != nil {
		return core.MonthSummary{}, err
	}
	return core.Summarize(views, m), nil
}

func (s *InvoiceService) CategoryBreakdown(ctx context.Context, m core.Month) ([]core.CategoryAmount, error) {
	views, err := s.views(ctx)
	if err != nil {
		return nil, err
	}
	return core.CategoryBreakdown(views, m), nil
}

func (s *InvoiceService) CardBreakdown(ctx context.Context, m core.Month) ([]core.CardAmount, error) {
	views, err := s.views(ctx)
	if err != nil {
		return nil, err
	}
	return core.CardBreakdown(views, m), nil
}

func (s *InvoiceService) FinancialIndex(ctx context.Context, m core.Month) (core.FinancialIndex, error) {
	summary, err := s.MonthSummary(ctx, m)
	if err != nil {
		return core.FinancialIndex{}, err
	}
	return core.Index(summary), nil
}

// Refresh refetches the owner's invoices unconditionally. When the remote
// store cannot be reached, the cache is rebuilt from the last fetched rows
// and the writes still queued; a failed refetch is still returned.
func (s *InvoiceService) Refresh(ctx context.Context) error {
	sess, ok := s.deps.Sessions.Session(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	owner := sess.UserID
	if !s.deps.Oracle.Online() {
		return s.refresh.rebuild(ctx, owner)
	}
	s.deps.Cache.Invalidate(cache.InvoicesKey(owner))
	err := s.refresh.refetch(ctx, owner)
	if err == nil {
		return nil
	}
	if rerr := s.refresh.rebuild(ctx, owner); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}
