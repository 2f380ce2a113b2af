package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", fmt.Errorf("insert: %w", ErrUnavailable), true},
		{"deadline", fmt.Errorf("select: %w", context.DeadlineExceeded), true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq connection exception wrapped", fmt.Errorf("x: %w", &pq.Error{Code: "08000"}), true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"not found", ErrNotFound, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(fmt.Errorf("insert: %w", ErrConflict)) {
		t.Fatal("ErrConflict should be a conflict")
	}
	if !IsConflict(&pq.Error{Code: "23505"}) {
		t.Fatal("unique violation should be a conflict")
	}
	if IsConflict(&pq.Error{Code: "08006"}) {
		t.Fatal("connection failure is not a conflict")
	}
}
