package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applog "faturas/internal/log"
)

func TestStateEmitsOnlyTransitions(t *testing.T) {
	s := NewState(false)
	ch, cancel := s.Subscribe()
	defer cancel()

	if s.Set(false) {
		t.Fatal("same value must not be a transition")
	}
	if !s.Set(true) {
		t.Fatal("expected transition to online")
	}
	if !s.Set(false) {
		t.Fatal("expected transition to offline")
	}

	want := []bool{true, false}
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Fatalf("expected %v, got %v", w, got)
			}
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected extra event %v", got)
	default:
	}
}

func TestStateSlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewState(false)
	ch, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Set(i%2 == 0)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Set blocked on a slow subscriber")
	}

	var last bool
	for len(ch) > 0 {
		last = <-ch
	}
	if last != s.Online() {
		t.Fatalf("latest event %v does not match state %v", last, s.Online())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewState(true)
	ch, cancel := s.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	s.Set(false)
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestProberCheck(t *testing.T) {
	ctx := context.Background()
	pinger := &fakePinger{err: errors.New("connection refused")}
	state := NewState(true)
	p := NewProber(pinger, state, time.Minute, time.Second, applog.Discard())

	if p.Check(ctx) {
		t.Fatal("expected offline")
	}
	if state.Online() {
		t.Fatal("state should be offline")
	}
	pinger.set(nil)
	if !p.Check(ctx) || !state.Online() {
		t.Fatal("expected online after successful ping")
	}

	p.MarkOffline(ctx, errors.New("timeout"))
	if state.Online() {
		t.Fatal("MarkOffline should flip the state")
	}
}

func TestProberStartStop(t *testing.T) {
	pinger := &fakePinger{}
	state := NewState(false)
	p := NewProber(pinger, state, 10*time.Millisecond, time.Second, applog.Discard())

	ch, cancel := state.Subscribe()
	defer cancel()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	select {
	case online := <-ch:
		if !online {
			t.Fatal("expected online event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prober never reported online")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
