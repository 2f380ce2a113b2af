// Package sheets exports month reports of invoices to spreadsheets.
package sheets

import (
	"context"
	"fmt"

	"faturas/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter replaces the stored report of r.Month.
	ReportWriter interface {
		WriteMonthReport(ctx context.Context, r MonthReport) (ref string, err error)
	}
)

// MonthReport is everything exported for one reference month.
type MonthReport struct {
	Month      core.Month
	Summary    core.MonthSummary
	Index      core.FinancialIndex
	Categories []core.CategoryAmount
	Cards      []core.CardAmount
	Invoices   []core.InvoiceView
}

func BuildMonthReport(views []core.InvoiceView, m core.Month) MonthReport {
	summary := core.Summarize(views, m)
	return MonthReport{
		Month:      m,
		Summary:    summary,
		Index:      core.Index(summary),
		Categories: core.CategoryBreakdown(views, m),
		Cards:      core.CardBreakdown(views, m),
		Invoices:   core.FilterViews(views, core.Filter{Month: m}),
	}
}

// Header of the invoice table.
var InvoiceColumns = []any{"Due date", "Description", "Category", "Card", "Total", "Paid", "Remaining", "Status"}

// Rows renders r as a sheet: a summary block, the breakdowns, then one
// row per invoice. Amounts are decimal strings so the sheet locale does
// not reinterpret them.
func Rows(r MonthReport) [][]any {
	rows := [][]any{
		{"Month", r.Month.String()},
		{"Expected", r.Summary.TotalExpected.String()},
		{"Paid", r.Summary.TotalPaid.String()},
		{"Pending", r.Summary.TotalPending.String()},
		{"Overdue", r.Summary.OverdueCount},
		{"Index", fmt.Sprintf("%d%%", r.Index.Percent), r.Index.Label},
		{},
		{"Category", "Amount"},
	}
	for _, c := range r.Categories {
		rows = append(rows, []any{string(c.Category), c.Amount.String()})
	}
	if len(r.Cards) > 0 {
		rows = append(rows, []any{}, []any{"Card", "Amount"})
		for _, c := range r.Cards {
			rows = append(rows, []any{c.Card, c.Amount.String()})
		}
	}
	rows = append(rows, []any{}, InvoiceColumns)
	for _, v := range r.Invoices {
		rows = append(rows, []any{
			v.DueDate.String(),
			v.Description,
			string(v.Category),
			v.Card,
			v.TotalAmount.String(),
			v.TotalPaid.String(),
			v.RemainingBalance.String(),
			string(v.Status),
		})
	}
	return rows
}
