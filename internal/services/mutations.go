package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"faturas/internal/core"
	"faturas/internal/gateway"
	"faturas/internal/queue"
)

// execute sends m to the gateway. Used both for direct writes and replay.
func execute(ctx context.Context, gw gateway.Gateway, m queue.Mutation) ([]string, error) {
	switch m := m.(type) {
	case queue.AddInvoice:
		return gw.InsertInvoices(ctx, m.Rows)
	case queue.UpdateInvoice:
		return []string{m.ID}, gw.UpdateInvoice(ctx, m.ID, m.Patch)
	case queue.DeleteInvoice:
		if m.Group != "" {
			return []string{m.ID}, gw.DeleteInvoiceGroup(ctx, m.Group)
		}
		return []string{m.ID}, gw.DeleteInvoice(ctx, m.ID)
	case queue.AddPayment:
		return gw.InsertPayments(ctx, []core.Payment{m.Payment})
	case queue.AddPaymentsBatch:
		return gw.InsertPayments(ctx, m.Payments)
	default:
		return nil, fmt.Errorf("%w: %T", queue.ErrUnknownMutation, m)
	}
}

// applyMutation is the optimistic cache transformation of m.
func applyMutation(views []core.InvoiceView, m queue.Mutation, now time.Time) []core.InvoiceView {
	switch m := m.(type) {
	case queue.AddInvoice:
		return core.WithInvoices(views, m.Rows, now)
	case queue.UpdateInvoice:
		return core.WithPatch(views, m.ID, m.Patch, now)
	case queue.DeleteInvoice:
		return core.WithoutInvoice(views, m.ID, m.Group)
	case queue.AddPayment:
		return core.WithPayments(views, []core.Payment{m.Payment}, now)
	case queue.AddPaymentsBatch:
		return core.WithPayments(views, m.Payments, now)
	}
	return views
}

// mutationIDs are the ids a caller gets back for m before the remote store
// has seen it.
func mutationIDs(m queue.Mutation) []string {
	switch m := m.(type) {
	case queue.AddInvoice:
		ids := make([]string, len(m.Rows))
		for i, r := range m.Rows {
			ids[i] = r.ID
		}
		return ids
	case queue.UpdateInvoice:
		return []string{m.ID}
	case queue.DeleteInvoice:
		return []string{m.ID}
	case queue.AddPayment:
		return []string{m.Payment.ID}
	case queue.AddPaymentsBatch:
		ids := make([]string, len(m.Payments))
		for i, p := range m.Payments {
			ids[i] = p.ID
		}
		return ids
	}
	return nil
}

// affectedMonths lists the reference months m touches, looked up in the
// views as they were before m was applied.
func affectedMonths(views []core.InvoiceView, m queue.Mutation) []string {
	var months []string
	add := func(month core.Month) {
		if month.IsZero() {
			return
		}
		if s := month.String(); !slices.Contains(months, s) {
			months = append(months, s)
		}
	}
	byID := func(id string) {
		if v, ok := core.FindView(views, id); ok {
			add(v.ReferenceMonth)
		}
	}

	switch m := m.(type) {
	case queue.AddInvoice:
		for _, r := range m.Rows {
			add(r.ReferenceMonth)
		}
	case queue.UpdateInvoice:
		byID(m.ID)
		if m.Patch.ReferenceMonth != nil {
			add(*m.Patch.ReferenceMonth)
		}
	case queue.DeleteInvoice:
		if m.Group == "" {
			byID(m.ID)
			break
		}
		for _, v := range views {
			if v.InstallmentGroup == m.Group {
				add(v.ReferenceMonth)
			}
		}
	case queue.AddPayment:
		byID(m.Payment.InvoiceID)
	case queue.AddPaymentsBatch:
		for _, p := range m.Payments {
			byID(p.InvoiceID)
		}
	}
	slices.Sort(months)
	return months
}
