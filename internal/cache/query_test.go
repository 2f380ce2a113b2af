package cache

import (
	"context"
	"testing"
	"time"

	"faturas/internal/core"
	applog "faturas/internal/log"
)

func discardLogger() *applog.Logger { return applog.Discard() }

var fixedNow = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

func views(ids ...string) []core.InvoiceView {
	out := make([]core.InvoiceView, 0, len(ids))
	for _, id := range ids {
		inv := core.Invoice{ID: id, TotalAmount: core.Money{Cents: 100}, DueDate: core.NewDate(2025, 3, 10)}
		out = append(out, core.NewInvoiceView(inv, nil, fixedNow))
	}
	return out
}

func TestTxnRollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	c.Replace(key, views("a", "b"))

	txn, err := c.Begin(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Apply(func(v []core.InvoiceView) []core.InvoiceView {
		return core.WithoutInvoice(v, "a", "")
	})
	snap, _ := c.Get(key)
	if len(snap.Views) != 1 || !snap.Dirty {
		t.Fatalf("optimistic change not visible: %+v", snap)
	}

	txn.Rollback()
	snap, _ = c.Get(key)
	if len(snap.Views) != 2 || snap.Dirty {
		t.Fatalf("rollback did not restore the snapshot: %+v", snap)
	}
}

func TestTxnRollbackOfMissingKey(t *testing.T) {
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	txn, err := c.Begin(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return append(v, views("x")...) })
	txn.Rollback()
	if _, ok := c.Get(key); ok {
		t.Fatal("rollback should remove an entry that did not exist before")
	}
}

func TestTxnCommitKeepsChangeAndDeferredRollbackIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	c.Replace(key, views("a"))

	func() {
		txn, err := c.Begin(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		defer txn.Rollback()
		txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return append(v, views("b")...) })
		txn.Commit()
	}()

	snap, _ := c.Get(key)
	if len(snap.Views) != 2 {
		t.Fatalf("commit lost the change: %d views", len(snap.Views))
	}

	// The key is free again.
	txn, err := c.Begin(ctx, key)
	if err != nil {
		t.Fatalf("key still locked: %v", err)
	}
	txn.Commit()
}

func TestTxnResetReturnsToFetchedViews(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	c.Replace(key, views("a"))

	for _, id := range []string{"b", "c"} {
		txn, err := c.Begin(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return append(v, views(id)...) })
		txn.Commit()
	}
	c.Invalidate(key)

	txn, err := c.Begin(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Reset()
	txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return append(v, views("c")...) })
	txn.Commit()

	snap, _ := c.Get(key)
	if len(snap.Views) != 2 || snap.Views[0].ID != "a" || snap.Views[1].ID != "c" {
		t.Fatalf("expected fetched a plus c, got %+v", snap.Views)
	}
	if !snap.Dirty || !snap.Stale {
		t.Fatalf("reset must keep the stale mark: %+v", snap)
	}

	// Reset alone leaves a clean entry; rolled back, the change is undone.
	txn, err = c.Begin(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Reset()
	if snap, _ := c.Get(key); len(snap.Views) != 1 || snap.Dirty {
		t.Fatalf("expected the fetched views only: %+v", snap)
	}
	txn.Rollback()
	if snap, _ := c.Get(key); len(snap.Views) != 2 {
		t.Fatalf("rollback should restore the optimistic views: %+v", snap)
	}
}

func TestTxnResetOfNeverFetchedEntry(t *testing.T) {
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	txn, err := c.Begin(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return append(v, views("x")...) })
	txn.Commit()

	txn, err = c.Begin(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	txn.Reset()
	txn.Commit()
	if _, ok := c.Get(key); ok {
		t.Fatal("an entry built only from optimistic changes should be dropped")
	}
}

func TestTxnSerializesWriters(t *testing.T) {
	c := NewQueryCache(8, time.Minute)
	key := InvoicesKey("u1")
	first, err := c.Begin(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Commit()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Begin(ctx, key); err == nil {
		t.Fatal("second writer should wait for the first")
	}
	other, err := c.Begin(context.Background(), InvoicesKey("u2"))
	if err != nil {
		t.Fatalf("other keys must not be blocked: %v", err)
	}
	other.Commit()
}

func TestInvalidateAndExpiry(t *testing.T) {
	now := fixedNow
	c := NewQueryCache(8, time.Minute)
	c.now = func() time.Time { return now }
	key := InvoicesKey("u1")
	c.Replace(key, views("a"))

	if snap, _ := c.Get(key); snap.Stale {
		t.Fatal("fresh entry reported stale")
	}
	c.Invalidate(key)
	snap, ok := c.Get(key)
	if !ok || !snap.Stale || len(snap.Views) != 1 {
		t.Fatalf("invalidate must keep views and mark stale: %+v", snap)
	}

	c.Replace(key, views("a"))
	now = now.Add(2 * time.Minute)
	if snap, _ := c.Get(key); !snap.Stale {
		t.Fatal("entry past TTL should be stale")
	}
}

func TestCleanExpiredKeepsDirtyEntries(t *testing.T) {
	now := fixedNow
	c := NewQueryCache(8, time.Minute)
	c.now = func() time.Time { return now }
	c.Replace(InvoicesKey("clean"), views("a"))
	c.Replace(InvoicesKey("dirty"), views("b"))

	txn, err := c.Begin(context.Background(), InvoicesKey("dirty"))
	if err != nil {
		t.Fatal(err)
	}
	txn.Apply(func(v []core.InvoiceView) []core.InvoiceView { return v })
	txn.Commit()

	now = now.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := c.Get(InvoicesKey("dirty")); !ok {
		t.Fatal("dirty entry evicted")
	}
}

func TestGetReturnsCopies(t *testing.T) {
	c := NewQueryCache(8, 0)
	key := InvoicesKey("u1")
	c.Replace(key, views("a"))
	snap, _ := c.Get(key)
	snap.Views[0].Description = "changed"
	again, _ := c.Get(key)
	if again.Views[0].Description == "changed" {
		t.Fatal("Get must not expose internal state")
	}
}
