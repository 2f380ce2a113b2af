package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "faturas/internal/log"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5672: connect: connection refused"), true},
		{"closed connection error", errors.New("connection closed"), true},
		{"EOF", fmt.Errorf("read: %w", io.EOF), true},
		{"amqp closed", amqp091.ErrClosed, true},
		{"access refused", &amqp091.Error{Code: 403, Reason: "ACCESS_REFUSED", Recover: false}, false},
		{"other error", errors.New("invalid uri scheme"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDialBackoffGivesUp(t *testing.T) {
	b := dialBackoff(50 * time.Millisecond)
	b.Reset()
	first := b.NextBackOff()
	if first <= 0 {
		t.Fatalf("expected a positive first interval, got %v", first)
	}
	time.Sleep(60 * time.Millisecond)
	if next := b.NextBackOff(); next != -1 {
		t.Fatalf("expected Stop after max elapsed time, got %v", next)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := NewInvoicesChangedMessage("user-1", SourceReplay, []string{"2025-03"})
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	got, err := InvoicesChangedMessageFromJSON(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "user-1" || got.Source != SourceReplay || len(got.Months) != 1 {
		t.Fatalf("unexpected message %+v", got)
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestProcessAcks(t *testing.T) {
	ctx := context.Background()
	logger := applog.Discard()
	body, _ := NewInvoicesChangedMessage("u", SourceDispatch, nil).ToJSON()

	ok := &fakeAck{}
	process(ctx, logger, body, ok, func(context.Context, *InvoicesChangedMessage) error { return nil })
	if !ok.acked || ok.nacked {
		t.Fatalf("handled message should be acked: %+v", ok)
	}

	failing := &fakeAck{}
	process(ctx, logger, body, failing, func(context.Context, *InvoicesChangedMessage) error { return errors.New("sheets down") })
	if !failing.nacked || !failing.requeued {
		t.Fatalf("failed handler should requeue: %+v", failing)
	}

	garbage := &fakeAck{}
	process(ctx, logger, []byte("{"), garbage, func(context.Context, *InvoicesChangedMessage) error {
		t.Fatal("handler must not run for undecodable bodies")
		return nil
	})
	if !garbage.nacked || garbage.requeued {
		t.Fatalf("undecodable message should be dropped: %+v", garbage)
	}
}
