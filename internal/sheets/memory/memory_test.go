package memory

import (
	"context"
	"testing"

	"faturas/internal/core"
	"faturas/internal/sheets"
)

func TestMemoryStoreWriteReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()
	march := core.NewMonth(2025, 3)

	ref, err := s.WriteMonthReport(ctx, sheets.MonthReport{Month: march})
	if err != nil || ref != "mem:2025-03#1" {
		t.Fatalf("unexpected write: ref=%q err=%v", ref, err)
	}
	if _, err := s.WriteMonthReport(ctx, sheets.MonthReport{
		Month:   march,
		Summary: core.MonthSummary{InvoiceCount: 4},
	}); err != nil {
		t.Fatal(err)
	}

	r, ok := s.Report("2025-03")
	if !ok || r.Summary.InvoiceCount != 4 {
		t.Fatalf("expected the latest report, got %+v", r)
	}
	if s.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", s.Writes())
	}
}

func TestMemoryStoreRejectsZeroMonth(t *testing.T) {
	if _, err := New().WriteMonthReport(context.Background(), sheets.MonthReport{}); err == nil {
		t.Fatal("expected an error for a report without month")
	}
}
