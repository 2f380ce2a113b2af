package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"faturas/internal/amqp"
	"faturas/internal/cache"
	"faturas/internal/gateway"
	applog "faturas/internal/log"
	"faturas/internal/queue"
)

// Sync triggers.
const (
	TriggerReconnect = "reconnect"
	TriggerTick      = "tick"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// SyncState is the replay state machine: Idle -> Syncing -> Idle.
type SyncState int32

const (
	SyncIdle SyncState = iota
	SyncSyncing
)

func (s SyncState) String() string {
	if s == SyncSyncing {
		return "syncing"
	}
	return "idle"
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// Interval is how often a pending queue is retried while online (default: 30s)
	Interval time.Duration

	// Backoff stretches the retry interval after consecutive failed passes.
	Backoff bool

	// MaxBackoff caps the stretched interval (default: 10m)
	MaxBackoff time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		Interval:   30 * time.Second,
		MaxBackoff: 10 * time.Minute,
	}
}

// SyncReport describes one replay pass.
type SyncReport struct {
	Replayed  int    `json:"replayed"`
	Remaining int    `json:"remaining"`
	FailedID  uint64 `json:"failed_id,omitempty"`
	Err       error  `json:"-"`
}

// SyncProcessor replays queued mutations in order once the remote store is
// reachable. A pass stops at the first entry that fails; that entry and
// everything after it stay queued for the next trigger.
type SyncProcessor struct {
	deps    Deps
	config  SyncProcessorConfig
	refresh *refresher
	logger  *applog.Logger

	flight singleflight.Group
	state  atomic.Int32

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(deps Deps, config SyncProcessorConfig) *SyncProcessor {
	deps.defaults()
	if config.Interval <= 0 {
		config.Interval = DefaultSyncProcessorConfig().Interval
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultSyncProcessorConfig().MaxBackoff
	}
	logger := deps.Logger.WithComponent(applog.ComponentSync)
	return &SyncProcessor{
		deps:    deps,
		config:  config,
		refresh: deps.refresher(logger),
		logger:  logger,
	}
}

func (p *SyncProcessor) State() SyncState {
	return SyncState(p.state.Load())
}

// SyncNow runs a replay pass, or joins the one already running. The
// returned error is the one that halted the pass.
func (p *SyncProcessor) SyncNow(ctx context.Context) (SyncReport, error) {
	return p.trigger(ctx, TriggerManual)
}

func (p *SyncProcessor) trigger(ctx context.Context, trigger string) (SyncReport, error) {
	sess, ok := p.deps.Sessions.Session(ctx)
	if !ok {
		return SyncReport{Remaining: p.deps.Queue.Len()}, ErrUnauthenticated
	}
	v, _, _ := p.flight.Do("replay", func() (any, error) {
		return p.replay(ctx, sess.UserID, trigger), nil
	})
	report := v.(SyncReport)
	return report, report.Err
}

func (p *SyncProcessor) replay(ctx context.Context, owner, trigger string) SyncReport {
	p.state.Store(int32(SyncSyncing))
	defer p.state.Store(int32(SyncIdle))

	var (
		report     SyncReport
		failedKind string
		months     []string
	)
	snap, _ := p.deps.Cache.Get(cache.InvoicesKey(owner))

	// The head is read again before every entry: a Clear during the pass
	// drops the entries that have not been sent yet.
	for {
		entry, ok := p.deps.Queue.Head()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			report.FailedID, report.Err = entry.ID, err
			break
		}
		if err := p.replayOne(ctx, entry); err != nil {
			report.FailedID = entry.ID
			report.Err = fmt.Errorf("replay %s #%d: %w", entry.Kind(), entry.ID, err)
			failedKind = string(entry.Kind())
			if gateway.IsTransient(err) && p.deps.Offline != nil {
				p.deps.Offline.MarkOffline(ctx, err)
			}
			p.logger.WarnContext(ctx, "Replay halted",
				applog.FieldOperation, applog.OpReplay,
				applog.FieldMutationID, entry.ID,
				applog.FieldMutationKind, entry.Kind(),
				applog.FieldError, err)
			break
		}
		if err := p.deps.Queue.Dequeue(ctx, entry.ID); err != nil {
			report.FailedID, report.Err = entry.ID, err
			failedKind = string(entry.Kind())
			p.logger.ErrorContext(ctx, "Replayed entry could not be removed",
				applog.FieldMutationID, entry.ID,
				applog.FieldErrorType, applog.ErrorTypeStorage,
				applog.FieldError, err)
			break
		}
		report.Replayed++
		for _, m := range affectedMonths(snap.Views, entry.Mutation) {
			if !slices.Contains(months, m) {
				months = append(months, m)
			}
		}
	}
	report.Remaining = p.deps.Queue.Len()

	if report.Replayed > 0 {
		p.deps.Cache.Invalidate(cache.InvoicesKey(owner))
		if err := p.refresh.refetch(ctx, owner); err != nil {
			p.logger.WarnContext(ctx, "Refetch after replay failed",
				applog.FieldOwner, owner,
				applog.FieldOperation, applog.OpRefresh,
				applog.FieldError, err)
		}
		publish(ctx, p.deps, p.logger, owner, amqp.SourceReplay, months)
		p.logger.InfoContext(ctx, "Replay pass finished",
			applog.FieldReplayed, report.Replayed,
			applog.FieldPending, report.Remaining,
			"trigger", trigger)
	}
	p.deps.Metrics.SyncPass(trigger, report.Replayed, failedKind)
	p.deps.Metrics.SetPending(report.Remaining)
	return report
}

// replayOne sends one queued entry. A duplicate insert, or an update or
// delete whose row is already gone, means an earlier pass got through
// before its dequeue did; the entry counts as applied.
func (p *SyncProcessor) replayOne(ctx context.Context, entry queue.QueuedMutation) error {
	callCtx, cancel := context.WithTimeout(ctx, p.deps.Timeout)
	defer cancel()

	_, err := execute(callCtx, p.deps.Gateway, entry.Mutation)
	if err == nil {
		return nil
	}
	switch entry.Mutation.(type) {
	case queue.AddInvoice, queue.AddPayment, queue.AddPaymentsBatch:
		if gateway.IsConflict(err) {
			p.logger.WarnContext(ctx, "Replayed insert already stored",
				applog.FieldMutationID, entry.ID,
				applog.FieldMutationKind, entry.Kind())
			return nil
		}
	case queue.UpdateInvoice, queue.DeleteInvoice:
		if errors.Is(err, gateway.ErrNotFound) {
			p.logger.WarnContext(ctx, "Replayed write targets a missing invoice",
				applog.FieldMutationID, entry.ID,
				applog.FieldMutationKind, entry.Kind())
			return nil
		}
	}
	return err
}

// Start begins the trigger loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	p.logger.InfoContext(ctx, "Sync processor started",
		"interval", p.config.Interval,
		"backoff", p.config.Backoff,
		applog.FieldPending, p.deps.Queue.Len())

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.Interval
	b.MaxInterval = p.config.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// runLoop reacts to connectivity transitions and retries a pending queue
// on every tick while online.
func (p *SyncProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	online, unsubOnline := p.deps.Oracle.Subscribe()
	defer unsubOnline()
	pending, unsubPending := p.deps.Queue.Subscribe()
	defer unsubPending()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	bo := p.newBackoff()
	var notBefore time.Time

	pass := func(trigger string) {
		if p.deps.Queue.Len() == 0 {
			return
		}
		_, err := p.trigger(ctx, trigger)
		switch {
		case errors.Is(err, ErrUnauthenticated):
			p.logger.DebugContext(ctx, "No session, replay skipped", "trigger", trigger)
		case err != nil && p.config.Backoff:
			wait := bo.NextBackOff()
			notBefore = time.Now().Add(wait)
			p.logger.InfoContext(ctx, "Replay backing off", "retry_in", wait)
		case err == nil:
			bo.Reset()
			notBefore = time.Time{}
		}
	}

	p.deps.Metrics.SetOnline(p.deps.Oracle.Online())
	p.deps.Metrics.SetPending(p.deps.Queue.Len())
	if p.deps.Oracle.Online() {
		pass(TriggerStartup)
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case up, ok := <-online:
			if !ok {
				return
			}
			p.deps.Metrics.SetOnline(up)
			if up {
				bo.Reset()
				notBefore = time.Time{}
				pass(TriggerReconnect)
			}
		case n, ok := <-pending:
			if ok {
				p.deps.Metrics.SetPending(n)
			}
		case <-ticker.C:
			if !p.deps.Oracle.Online() || time.Now().Before(notBefore) {
				continue
			}
			pass(TriggerTick)
		}
	}
}
