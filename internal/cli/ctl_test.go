package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"faturas/internal/backend"
	"faturas/internal/config"
	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/queue"
	"faturas/internal/sheets"
	sheetsmem "faturas/internal/sheets/memory"
)

func ctlConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Port = "8081"
	cfg.RateLimit = 10
	cfg.RateWindow = time.Minute
	return cfg
}

func runCtl(t *testing.T, opts *CtlOptions, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(opts)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seedQueue enqueues one invoice insert on the config's queue.
func seedQueue(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := backend.NewFactory(applog.Discard()).CreateBackend(ctx, bcfg)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()

	row := core.Invoice{
		ID:             "inv-1",
		OwnerID:        cfg.UserID,
		Description:    "Rent",
		Category:       core.CategoryRent,
		TotalAmount:    core.Cents(120000),
		DueDate:        core.NewDate(2025, 3, 5),
		ReferenceMonth: core.NewMonth(2025, time.March),
		CreatedAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if _, err := res.Queue.Enqueue(ctx, queue.AddInvoice{Rows: []core.Invoice{row}}); err != nil {
		t.Fatal(err)
	}
}

func TestRootCommandPresence(t *testing.T) {
	cmd := NewRootCommand(&CtlOptions{})
	for _, path := range [][]string{{"queue", "list"}, {"queue", "clear"}, {"sync"}, {"export"}} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			if err != nil {
				t.Fatal(err)
			}
			if sub.Name() != path[len(path)-1] {
				t.Fatalf("found %q", sub.Name())
			}
		})
	}
}

func TestCtlRejectsBadInput(t *testing.T) {
	cfg := ctlConfig(t)
	load := func() *config.Config { return cfg }

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown format", []string{"queue", "list", "--format", "xml"}, ExitCommandError},
		{"clear without confirmation", []string{"queue", "clear"}, ExitCommandError},
		{"malformed month", []string{"export", "--month", "2025-13"}, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCtl(t, &CtlOptions{LoadConfig: load}, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := GetExitCode(err); got != tt.code {
				t.Fatalf("exit code = %d, want %d (%v)", got, tt.code, err)
			}
		})
	}
}

func TestCtlInvalidConfig(t *testing.T) {
	cfg := ctlConfig(t)
	cfg.QueueBackend = "carrier-pigeon"
	_, err := runCtl(t, &CtlOptions{LoadConfig: func() *config.Config { return cfg }}, "queue", "list")
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("expected command error, got %v", err)
	}
}

func TestCtlQueueListAndClear(t *testing.T) {
	cfg := ctlConfig(t)
	seedQueue(t, cfg)
	opts := func() *CtlOptions { return &CtlOptions{LoadConfig: func() *config.Config { return cfg }} }

	out, err := runCtl(t, opts(), "queue", "list", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []struct {
		ID   uint64 `json:"id"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0].Kind != string(queue.KindAddInvoice) {
		t.Fatalf("entries = %+v", entries)
	}

	out, err = runCtl(t, opts(), "queue", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "add_invoice") {
		t.Fatalf("text listing missing entry:\n%s", out)
	}

	out, err = runCtl(t, opts(), "queue", "clear", "--yes")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Dropped 1") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = runCtl(t, opts(), "queue", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No pending writes") {
		t.Fatalf("queue not empty after clear:\n%s", out)
	}
}

func TestCtlSyncThenExport(t *testing.T) {
	cfg := ctlConfig(t)
	seedQueue(t, cfg)
	writer := sheetsmem.New()
	opts := func() *CtlOptions {
		return &CtlOptions{
			LoadConfig: func() *config.Config { return cfg },
			NewWriter: func(context.Context, *config.Config, *applog.Logger) (sheets.ReportWriter, error) {
				return writer, nil
			},
			Now: func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
		}
	}

	out, err := runCtl(t, opts(), "sync", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var report struct {
		Replayed  int `json:"replayed"`
		Remaining int `json:"remaining"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Replayed != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}

	// No --month: the current month from Now.
	out, err = runCtl(t, opts(), "export")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2025-03") {
		t.Fatalf("unexpected output %q", out)
	}
	r, ok := writer.Report("2025-03")
	if !ok {
		t.Fatal("report not written")
	}
	if r.Summary.InvoiceCount != 1 || r.Summary.TotalExpected.Cents != 120000 {
		t.Fatalf("summary = %+v", r.Summary)
	}
}

func TestCtlExportRequiresUser(t *testing.T) {
	cfg := ctlConfig(t)
	cfg.UserID = ""
	_, err := runCtl(t, &CtlOptions{LoadConfig: func() *config.Config { return cfg }}, "export", "--month", "2025-03")
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("expected command error, got %v", err)
	}
}
