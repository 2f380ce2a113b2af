package auth

import (
	"context"
	"testing"
)

func TestStaticSession(t *testing.T) {
	ctx := context.Background()

	if _, ok := NewStatic("  ").Session(ctx); ok {
		t.Fatal("blank user id must not yield a session")
	}
	s, ok := NewStatic("user-1").Session(ctx)
	if !ok || s.UserID != "user-1" {
		t.Fatalf("unexpected session %+v %v", s, ok)
	}

	ctx = WithSession(ctx, Session{UserID: "user-2"})
	s, ok = NewStatic("").Session(ctx)
	if !ok || s.UserID != "user-2" {
		t.Fatalf("context session should win, got %+v %v", s, ok)
	}
}
