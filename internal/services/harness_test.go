package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/auth"
	"faturas/internal/cache"
	"faturas/internal/connectivity"
	"faturas/internal/core"
	"faturas/internal/gateway/memory"
	applog "faturas/internal/log"
	"faturas/internal/queue"
)

const owner = "user-1"

type stateMarker struct{ state *connectivity.State }

func (m stateMarker) MarkOffline(context.Context, error) { m.state.Set(false) }

type recordingPublisher struct {
	mu     sync.Mutex
	months [][]string
}

func (p *recordingPublisher) PublishInvoicesChanged(_ context.Context, msg *amqp.InvoicesChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.months = append(p.months, msg.Months)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.months)
}

type harness struct {
	gw        *memory.Store
	slot      *queue.MemorySlot
	queue     *queue.Store
	cache     *cache.QueryCache
	state     *connectivity.State
	publisher *recordingPublisher
	svc       *InvoiceService
	sync      *SyncProcessor
	deps      Deps
	ctx       context.Context
}

func newHarness(t *testing.T, online bool, user string) *harness {
	t.Helper()
	ctx := context.Background()
	slot := queue.NewMemorySlot()
	q, err := queue.Open(ctx, slot, queue.WithLogger(applog.Discard()))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	var n int
	var idMu sync.Mutex
	h := &harness{
		gw:        memory.New(),
		slot:      slot,
		queue:     q,
		cache:     cache.NewQueryCache(16, time.Hour),
		state:     connectivity.NewState(online),
		publisher: &recordingPublisher{},
		ctx:       ctx,
	}
	deps := Deps{
		Gateway:   h.gw,
		Queue:     q,
		Cache:     h.cache,
		Oracle:    h.state,
		Sessions:  auth.NewStatic(user),
		Offline:   stateMarker{h.state},
		Publisher: h.publisher,
		Logger:    applog.Discard(),
		Timeout:   time.Second,
		Now:       func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	h.deps = deps
	h.svc = NewInvoiceService(deps)
	cfg := DefaultSyncProcessorConfig()
	cfg.Interval = 20 * time.Millisecond
	h.sync = NewSyncProcessor(deps, cfg)
	return h
}

func invoice(desc string, cents int64, due core.Date) core.Invoice {
	return core.Invoice{
		Description:    desc,
		Category:       core.CategoryPower,
		TotalAmount:    core.Cents(cents),
		DueDate:        due,
		ReferenceMonth: core.MonthOf(due.Time),
	}
}

func (h *harness) add(t *testing.T, desc string, cents int64, due core.Date) string {
	t.Helper()
	res, err := h.svc.AddInvoice(h.ctx, invoice(desc, cents, due), core.InstallmentPlan{})
	if err != nil {
		t.Fatalf("add invoice: %v", err)
	}
	return res.IDs[0]
}

func (h *harness) view(t *testing.T, id string) core.InvoiceView {
	t.Helper()
	views, err := h.svc.ListInvoices(h.ctx, core.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	v, ok := core.FindView(views, id)
	if !ok {
		t.Fatalf("invoice %s not listed", id)
	}
	return v
}

func ops(calls []memory.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}
