package core

import (
	"math"
	"slices"
)

// MonthSummary aggregates the invoices of one reference month.
type MonthSummary struct {
	Month         Month `json:"month"`
	TotalExpected Money `json:"total_expected"`
	TotalPaid     Money `json:"total_paid"`
	TotalPending  Money `json:"total_pending"`
	OverdueCount  int   `json:"overdue_count"`
	PaidCount     int   `json:"paid_count"`
	InvoiceCount  int   `json:"invoice_count"`
}

// CategoryAmount is the expected total of a month for one category.
type CategoryAmount struct {
	Category Category `json:"category"`
	Amount   Money    `json:"amount"`
}

// CardAmount is the expected total of a month for one card.
type CardAmount struct {
	Card   string `json:"card"`
	Amount Money  `json:"amount"`
}

// Index labels.
const (
	IndexExcellent  = "excellent"
	IndexInProgress = "in_progress"
	IndexAttention  = "attention"
)

// FinancialIndex is the share of the month already paid.
type FinancialIndex struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

func monthViews(views []InvoiceView, m Month) []InvoiceView {
	return FilterViews(views, Filter{Month: m})
}

func Summarize(views []InvoiceView, m Month) MonthSummary {
	s := MonthSummary{Month: m}
	for _, v := range monthViews(views, m) {
		s.InvoiceCount++
		s.TotalExpected.Cents += v.TotalAmount.Cents
		s.TotalPaid.Cents += v.TotalPaid.Cents
		switch v.Status {
		case StatusOverdue:
			s.OverdueCount++
		case StatusPaid:
			s.PaidCount++
		}
	}
	s.TotalPending = s.TotalExpected.Sub(s.TotalPaid)
	return s
}

// CategoryBreakdown sums the month's invoice totals per category, in
// category display order.
func CategoryBreakdown(views []InvoiceView, m Month) []CategoryAmount {
	sums := make(map[Category]int64)
	for _, v := range monthViews(views, m) {
		sums[v.Category] += v.TotalAmount.Cents
	}
	out := make([]CategoryAmount, 0, len(sums))
	for _, c := range categories {
		if cents, ok := sums[c]; ok {
			out = append(out, CategoryAmount{Category: c, Amount: Money{Cents: cents}})
		}
	}
	return out
}

// CardBreakdown sums the month's invoice totals per card. Invoices without
// a card are left out. Cards are sorted by name.
func CardBreakdown(views []InvoiceView, m Month) []CardAmount {
	sums := make(map[string]int64)
	for _, v := range monthViews(views, m) {
		if v.Card == "" {
			continue
		}
		sums[v.Card] += v.TotalAmount.Cents
	}
	out := make([]CardAmount, 0, len(sums))
	for card, cents := range sums {
		out = append(out, CardAmount{Card: card, Amount: Money{Cents: cents}})
	}
	slices.SortFunc(out, func(a, b CardAmount) int {
		switch {
		case a.Card < b.Card:
			return -1
		case a.Card > b.Card:
			return 1
		}
		return 0
	})
	return out
}

// Index computes the paid percentage of a summary, rounded and capped
// at 100. A month with nothing expected scores 0.
func Index(s MonthSummary) FinancialIndex {
	pct := 0
	if s.TotalExpected.Cents > 0 {
		pct = int(math.Round(float64(s.TotalPaid.Cents) / float64(s.TotalExpected.Cents) * 100))
	}
	if pct > 100 {
		pct = 100
	}
	label := IndexAttention
	switch {
	case pct >= 80:
		label = IndexExcellent
	case pct >= 41:
		label = IndexInProgress
	}
	return FinancialIndex{Percent: pct, Label: label}
}

// Unpaid returns the month's invoices that still have a balance, optionally
// restricted to ids.
func Unpaid(views []InvoiceView, m Month, ids []string) []InvoiceView {
	var out []InvoiceView
	for _, v := range monthViews(views, m) {
		if v.Status == StatusPaid || v.RemainingBalance.Cents <= 0 {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, v.ID) {
			continue
		}
		out = append(out, v)
	}
	return out
}
