package sheets

import (
	"testing"
	"time"

	"faturas/internal/core"
)

func TestBuildMonthReportAndRows(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	march := core.NewMonth(2025, 3)
	invoices := []core.Invoice{
		{ID: "a", Description: "Rent", Category: core.CategoryRent, TotalAmount: core.Cents(100000),
			DueDate: core.NewDate(2025, 3, 5), ReferenceMonth: march},
		{ID: "b", Description: "Card", Category: core.CategoryCard, Card: "Visa", TotalAmount: core.Cents(25050),
			DueDate: core.NewDate(2025, 3, 15), ReferenceMonth: march},
		{ID: "c", Description: "April", Category: core.CategoryOther, TotalAmount: core.Cents(999),
			DueDate: core.NewDate(2025, 4, 1), ReferenceMonth: core.NewMonth(2025, 4)},
	}
	payments := []core.Payment{{ID: "p", InvoiceID: "a", Amount: core.Cents(100000), Date: core.NewDate(2025, 3, 4)}}
	views := core.BuildViews(invoices, payments, now)

	r := BuildMonthReport(views, march)
	if len(r.Invoices) != 2 {
		t.Fatalf("expected 2 March invoices, got %d", len(r.Invoices))
	}
	if r.Summary.TotalExpected.Cents != 125050 || r.Index.Percent != 80 {
		t.Fatalf("unexpected totals %+v / %+v", r.Summary, r.Index)
	}

	rows := Rows(r)
	if rows[0][1] != "2025-03" {
		t.Errorf("first row = %v", rows[0])
	}
	if rows[1][1] != "1250.50" {
		t.Errorf("expected row = %v", rows[1])
	}
	last := rows[len(rows)-1]
	if last[1] != "Card" || last[4] != "250.50" || last[7] != "pending" {
		t.Errorf("last invoice row = %v", last)
	}
	headerAt := len(rows) - 3
	if len(rows[headerAt]) != len(InvoiceColumns) {
		t.Errorf("invoice header missing, got %v", rows[headerAt])
	}
}
