package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Level:   level,
		Handler: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo).WithComponent(ComponentQueue)

	logger.Info("Mutation queued", FieldPending, 2)
	logger.Debug("dropped below level")

	out := buf.String()
	if !strings.Contains(out, "component=queue") || !strings.Contains(out, "pending=2") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Contains(out, "dropped below level") {
		t.Fatalf("debug record written at info level: %q", out)
	}
	if logger.Component() != ComponentQueue {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf, slog.LevelInfo)

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "handled")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing: %q", buf.String())
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a fallback logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(bufferLogger(&buf, slog.LevelDebug))
	ctx := context.Background()

	sl.LogMutation(ctx, OpCreate, "inv-1", 9990, true)
	sl.LogError(ctx, "Request failed", errors.New("boom"), ComponentHTTP, OpUpdate, NewFields().WithErrorType(ErrorTypeNetwork))

	out := buf.String()
	for _, want := range []string{
		"invoice_id=inv-1", "amount_cents=9990", "queued=true", "operation=create",
		"error=boom", "error_type=network_error", "operation=update",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		code  int
		level string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusUnprocessableEntity, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			var buf bytes.Buffer
			sl := NewStructuredLogger(bufferLogger(&buf, slog.LevelInfo))
			r := httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
			sl.LogHTTPEnd(context.Background(), r, tt.code, 3, "127.0.0.1")
			if !strings.Contains(buf.String(), tt.level) {
				t.Fatalf("want %s in %q", tt.level, buf.String())
			}
		})
	}
}
