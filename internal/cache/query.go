package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"faturas/internal/core"
)

// InvoicesKey is the query key of an owner's invoice list.
func InvoicesKey(owner string) string {
	return "invoices:" + owner
}

// Snapshot is what a reader gets back from the cache.
type Snapshot struct {
	Views     []core.InvoiceView
	FetchedAt time.Time
	// Stale entries were invalidated or outlived the TTL and should be
	// refetched when the remote store is reachable.
	Stale bool
	// Dirty entries carry optimistic changes the remote store has not
	// confirmed yet.
	Dirty bool
}

type entry struct {
	views []core.InvoiceView
	// base holds the views of the last Replace, before any optimistic
	// change. It is never modified in place.
	base        []core.InvoiceView
	fetchedAt   time.Time
	invalidated bool
	dirty       bool
}

// QueryCache holds invoice views per query key. Writers go through Begin,
// which serializes optimistic transactions on the same key.
type QueryCache struct {
	entries *LRUCache[*entry]
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func NewQueryCache(maxEntries int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		entries: NewLRUCache[*entry](maxEntries, 0),
		ttl:     ttl,
		now:     time.Now,
		locks:   make(map[string]*semaphore.Weighted),
	}
}

// Get returns a copy of the entry at key.
func (c *QueryCache) Get(key string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Views:     cloneViews(e.views),
		FetchedAt: e.fetchedAt,
		Stale:     e.invalidated || c.expired(e),
		Dirty:     e.dirty,
	}, true
}

// Replace stores authoritative views fetched from the remote store. It
// clears the stale and dirty marks.
func (c *QueryCache) Replace(key string, views []core.InvoiceView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Set(key, &entry{views: cloneViews(views), base: cloneViews(views), fetchedAt: c.now()})
}

// Invalidate marks key stale without dropping its views, so readers keep
// seeing the optimistic state until the refetch lands.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries.Get(key); ok {
		e.invalidated = true
	}
}

func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Get(key); ok {
			e.invalidated = true
		}
	}
}

func (c *QueryCache) Keys() []string {
	return c.entries.Keys()
}

// CleanExpired drops clean entries older than the TTL. Dirty entries are
// kept since they hold writes only the cache knows about.
func (c *QueryCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.RemoveIf(func(_ string, e *entry) bool {
		return !e.dirty && c.expired(e)
	})
}

func (c *QueryCache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.fetchedAt) > c.ttl
}

func (c *QueryCache) lock(key string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		c.locks[key] = sem
	}
	return sem
}

// Txn is an optimistic change to one key: snapshot, apply, then either
// commit or roll back to the snapshot.
type Txn struct {
	c        *QueryCache
	key      string
	sem      *semaphore.Weighted
	before   *entry
	applied  bool
	finished bool
}

// Begin snapshots key and holds its write lock until Commit or Rollback.
func (c *QueryCache) Begin(ctx context.Context, key string) (*Txn, error) {
	sem := c.lock(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("lock cache key %s: %w", key, err)
	}

	c.mu.Lock()
	var before *entry
	if e, ok := c.entries.Get(key); ok {
		cp := *e
		cp.views = cloneViews(e.views)
		before = &cp
	}
	c.mu.Unlock()

	return &Txn{c: c, key: key, sem: sem, before: before}, nil
}

// Views returns the views as of the snapshot.
func (t *Txn) Views() []core.InvoiceView {
	if t.before == nil {
		return nil
	}
	return cloneViews(t.before.views)
}

// Apply runs a pure transformation over the current views and stores the
// result. A missing entry is treated as an empty list.
func (t *Txn) Apply(fn func([]core.InvoiceView) []core.InvoiceView) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	var (
		current     []core.InvoiceView
		base        []core.InvoiceView
		fetchedAt   time.Time
		invalidated bool
	)
	if e, ok := t.c.entries.Get(t.key); ok {
		current = cloneViews(e.views)
		base = e.base
		fetchedAt = e.fetchedAt
		invalidated = e.invalidated
	}
	t.c.entries.Set(t.key, &entry{
		views:       fn(current),
		base:        base,
		fetchedAt:   fetchedAt,
		invalidated: invalidated,
		dirty:       true,
	})
	t.applied = true
}

// Reset drops every optimistic change, going back to the views of the last
// Replace. An entry that was never fetched is removed. The stale mark is
// kept.
func (t *Txn) Reset() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	e, ok := t.c.entries.Get(t.key)
	if !ok {
		return
	}
	t.applied = true
	if e.fetchedAt.IsZero() {
		t.c.entries.Delete(t.key)
		return
	}
	t.c.entries.Set(t.key, &entry{
		views:       cloneViews(e.base),
		base:        e.base,
		fetchedAt:   e.fetchedAt,
		invalidated: e.invalidated,
	})
}

// Commit keeps the optimistic state and releases the key.
func (t *Txn) Commit() {
	if t.finished {
		return
	}
	t.finished = true
	t.sem.Release(1)
}

// Rollback restores the snapshot and releases the key. It is a no-op
// after Commit, so it can be deferred.
func (t *Txn) Rollback() {
	if t.finished {
		return
	}
	t.finished = true
	defer t.sem.Release(1)
	if !t.applied {
		return
	}

	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.before == nil {
		t.c.entries.Delete(t.key)
		return
	}
	t.c.entries.Set(t.key, t.before)
}

func cloneViews(views []core.InvoiceView) []core.InvoiceView {
	if views == nil {
		return nil
	}
	out := make([]core.InvoiceView, len(views))
	for i, v := range views {
		out[i] = v.Clone()
	}
	return out
}
