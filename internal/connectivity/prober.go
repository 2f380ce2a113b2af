package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	applog "faturas/internal/log"
)

// Pinger checks that the remote store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober pings the remote store on an interval and drives a State.
type Prober struct {
	pinger   Pinger
	state    *State
	interval time.Duration
	timeout  time.Duration
	logger   *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewProber(pinger Pinger, state *State, interval, timeout time.Duration, logger *applog.Logger) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		pinger:   pinger,
		state:    state,
		interval: interval,
		timeout:  timeout,
		logger:   logger.WithComponent(applog.ComponentConnectivity),
	}
}

// Check pings once and updates the state.
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	online := err == nil
	if p.state.Set(online) {
		if online {
			p.logger.InfoContext(ctx, "Remote store reachable", applog.FieldOnline, true)
		} else {
			p.logger.WarnContext(ctx, "Remote store unreachable",
				applog.FieldOnline, false,
				applog.FieldError, err)
		}
	}
	return online
}

// MarkOffline is used when a direct write fails with a transient error,
// so the following writes queue instead of failing.
func (p *Prober) MarkOffline(ctx context.Context, cause error) {
	if p.state.Set(false) {
		p.logger.WarnContext(ctx, "Marked offline after failed write", applog.FieldError, cause)
	}
}

func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("prober already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run(ctx, p.stopCh, p.doneCh)
	return nil
}

func (p *Prober) Stop(ctx context.Context) error {
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Prober) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
