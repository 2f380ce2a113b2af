// Package queue holds writes made while the remote store is unreachable.
//
// The Store is an ordered list of mutations persisted as a whole through a
// Slot after every change. Entries are only removed by Dequeue (after a
// confirmed replay) or Clear.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	applog "faturas/internal/log"
)

type Store struct {
	mu      sync.Mutex
	slot    Slot
	entries []QueuedMutation
	lastID  uint64
	now     func() time.Time
	logger  *applog.Logger

	subMu sync.Mutex
	subs  map[int]chan int
	subID int
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(applog.ComponentQueue) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the persisted list from slot. A blob that cannot be decoded
// is an error; an empty slot is an empty queue.
func Open(ctx context.Context, slot Slot, opts ...Option) (*Store, error) {
	s := &Store{
		slot:   slot,
		now:    time.Now,
		logger: applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentQueue),
		subs:   make(map[int]chan int),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", ErrStorageUnavailable, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("decode persisted queue: %w", err)
		}
	}
	for _, e := range s.entries {
		if e.ID > s.lastID {
			s.lastID = e.ID
		}
	}
	if len(s.entries) > 0 {
		s.logger.Info("Loaded pending mutations", applog.FieldPending, len(s.entries))
	}
	return s, nil
}

// Enqueue appends m and persists the list. When persistence fails the
// append is undone and the error wraps ErrStorageUnavailable.
func (s *Store) Enqueue(ctx context.Context, m Mutation) (QueuedMutation, error) {
	if m == nil {
		return QueuedMutation{}, fmt.Errorf("enqueue: %w: nil", ErrUnknownMutation)
	}

	s.mu.Lock()
	entry := QueuedMutation{ID: s.lastID + 1, Mutation: m, CreatedAt: s.now().UTC()}
	next := append(s.snapshotLocked(), entry)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "Failed to persist queue",
			applog.FieldMutationKind, m.Kind(),
			applog.FieldErrorType, applog.ErrorTypeStorage,
			applog.FieldError, err)
		return QueuedMutation{}, fmt.Errorf("enqueue %s: %w", m.Kind(), err)
	}
	s.entries = next
	s.lastID = entry.ID
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Mutation queued",
		applog.FieldMutationID, entry.ID,
		applog.FieldMutationKind, m.Kind(),
		applog.FieldPending, n)
	s.notify(n)
	return entry, nil
}

// Dequeue removes the entry with id. Missing ids are a no-op.
func (s *Store) Dequeue(ctx context.Context, id uint64) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	next := make([]QueuedMutation, 0, len(s.entries)-1)
	next = append(next, s.entries[:idx]...)
	next = append(next, s.entries[idx+1:]...)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dequeue %d: %w", id, err)
	}
	s.entries = next
	n := len(next)
	s.mu.Unlock()

	s.notify(n)
	return nil
}

// List returns the pending entries in enqueue order.
func (s *Store) List() []QueuedMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Head returns the oldest pending entry.
func (s *Store) Head() (QueuedMutation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return QueuedMutation{}, false
	}
	return s.entries[0], true
}

// Clear drops every pending entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	dropped := len(s.entries)
	if err := s.persistLocked(ctx, nil); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear: %w", err)
	}
	s.entries = nil
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "Queue cleared", "dropped", dropped)
	s.notify(0)
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe returns a channel receiving the pending count after every
// change. Slow readers only see the latest count. The returned func
// unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)
	s.subMu.Lock()
	id := s.subID
	s.subID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(n int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		// Drop the stale count so the newest one always fits.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *Store) snapshotLocked() []QueuedMutation {
	out := make([]QueuedMutation, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) persistLocked(ctx context.Context, entries []QueuedMutation) error {
	if entries == nil {
		entries = []QueuedMutation{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := s.slot.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
