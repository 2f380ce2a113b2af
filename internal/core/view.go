package core

import (
	"slices"
	"strings"
	"time"
)

// InvoiceView is an invoice together with its payments and the fields
// derived from them. The derived fields are only ever set by Recompute.
type InvoiceView struct {
	Invoice
	Payments         []Payment `json:"payments"`
	Status           Status    `json:"status"`
	TotalPaid        Money     `json:"total_paid"`
	RemainingBalance Money     `json:"remaining_balance"`
}

// DeriveStatus classifies an invoice. Checks run in order: paid, partial,
// overdue, pending. An invoice becomes overdue the day after its due date.
func DeriveStatus(total, paid Money, due Date, now time.Time) Status {
	if paid.Cents >= total.Cents {
		return StatusPaid
	}
	if paid.Cents > 0 {
		return StatusPartial
	}
	today := NewDate(now.Year(), int(now.Month()), now.Day())
	if today.After(due.Time) {
		return StatusOverdue
	}
	return StatusPending
}

// NewInvoiceView builds a view from an invoice and any payments; payments
// for other invoices are ignored.
func NewInvoiceView(inv Invoice, payments []Payment, now time.Time) InvoiceView {
	v := InvoiceView{Invoice: inv}
	for _, p := range payments {
		if p.InvoiceID == inv.ID {
			v.Payments = append(v.Payments, p)
		}
	}
	v.Recompute(now)
	return v
}

// Recompute refreshes the derived fields from the payment set.
func (v *InvoiceView) Recompute(now time.Time) {
	var paid int64
	for _, p := range v.Payments {
		paid += p.Amount.Cents
	}
	v.TotalPaid = Money{Cents: paid}
	v.RemainingBalance = Money{Cents: v.TotalAmount.Cents - paid}
	v.Status = DeriveStatus(v.TotalAmount, v.TotalPaid, v.DueDate, now)
}

// Clone returns a deep copy, so snapshots never share payment slices.
func (v InvoiceView) Clone() InvoiceView {
	v.Payments = slices.Clone(v.Payments)
	return v
}

// BuildViews joins invoices with their payments, ordered by due date
// then creation time.
func BuildViews(invoices []Invoice, payments []Payment, now time.Time) []InvoiceView {
	byInvoice := make(map[string][]Payment, len(invoices))
	for _, p := range payments {
		byInvoice[p.InvoiceID] = append(byInvoice[p.InvoiceID], p)
	}
	views := make([]InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		v := InvoiceView{Invoice: inv, Payments: byInvoice[inv.ID]}
		v.Recompute(now)
		views = append(views, v)
	}
	SortViews(views)
	return views
}

func SortViews(views []InvoiceView) {
	slices.SortStableFunc(views, func(a, b InvoiceView) int {
		if c := a.DueDate.Compare(b.DueDate.Time); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// Optimistic transformations. Each returns a new slice and leaves the
// input untouched.

// WithInvoices appends freshly created rows (no payments yet).
func WithInvoices(views []InvoiceView, rows []Invoice, now time.Time) []InvoiceView {
	out := cloneViews(views)
	for _, r := range rows {
		out = append(out, NewInvoiceView(r, nil, now))
	}
	SortViews(out)
	return out
}

// WithPatch applies patch to the invoice with the given id.
func WithPatch(views []InvoiceView, id string, patch InvoicePatch, now time.Time) []InvoiceView {
	out := cloneViews(views)
	for i := range out {
		if out[i].ID == id {
			out[i].Invoice = patch.Apply(out[i].Invoice)
			out[i].Recompute(now)
		}
	}
	SortViews(out)
	return out
}

// WithoutInvoice removes the invoice id, or every invoice of group when
// group is set. Payments go with their invoice.
func WithoutInvoice(views []InvoiceView, id, group string) []InvoiceView {
	out := make([]InvoiceView, 0, len(views))
	for _, v := range views {
		if group != "" && v.InstallmentGroup == group {
			continue
		}
		if group == "" && v.ID == id {
			continue
		}
		out = append(out, v.Clone())
	}
	return out
}

// WithPayments attaches payments to their invoices.
func WithPayments(views []InvoiceView, payments []Payment, now time.Time) []InvoiceView {
	out := cloneViews(views)
	for i := range out {
		touched := false
		for _, p := range payments {
			if p.InvoiceID == out[i].ID {
				out[i].Payments = append(out[i].Payments, p)
				touched = true
			}
		}
		if touched {
			out[i].Recompute(now)
		}
	}
	return out
}

// FindView returns the view with the given id.
func FindView(views []InvoiceView, id string) (InvoiceView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return InvoiceView{}, false
}

func cloneViews(views []InvoiceView) []InvoiceView {
	out := make([]InvoiceView, len(views))
	for i, v := range views {
		out[i] = v.Clone()
	}
	return out
}

// Filter selects views for listing. Zero fields match everything.
type Filter struct {
	Month    Month
	Status   Status
	Category Category
	Card     string
	Query    string
}

func (f Filter) Match(v InvoiceView) bool {
	if !f.Month.IsZero() && v.ReferenceMonth != f.Month {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.Category != "" && v.Category != f.Category {
		return false
	}
	if f.Card != "" && !strings.EqualFold(v.Card, f.Card) {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" &&
		!strings.Contains(strings.ToLower(v.Description), strings.ToLower(q)) {
		return false
	}
	return true
}

func FilterViews(views []InvoiceView, f Filter) []InvoiceView {
	out := make([]InvoiceView, 0, len(views))
	for _, v := range views {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}
