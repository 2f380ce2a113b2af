// Package memory is an in-process Gateway used for local development and
// tests. Failures can be injected to simulate an unreachable store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"faturas/internal/core"
	"faturas/internal/gateway"
)

// Call records one write received by the store.
type Call struct {
	Op  string
	Arg string
}

type Store struct {
	mu       sync.Mutex
	invoices []core.Invoice
	payments []core.Payment
	calls    []Call
	down     bool
	failures map[string]error
}

func New() *Store {
	return &Store{failures: make(map[string]error)}
}

// SetDown makes every call fail with gateway.ErrUnavailable.
func (s *Store) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// FailOn makes writes whose Call.Arg equals arg fail with err until
// cleared with a nil err.
func (s *Store) FailOn(arg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, arg)
		return
	}
	s.failures[arg] = err
}

// Calls returns the writes received so far, in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *Store) record(op, arg string) error {
	if s.down {
		return fmt.Errorf("%s: %w", op, gateway.ErrUnavailable)
	}
	if err, ok := s.failures[arg]; ok {
		return fmt.Errorf("%s %s: %w: %w", op, arg, gateway.ErrRemote, err)
	}
	s.calls = append(s.calls, Call{Op: op, Arg: arg})
	return nil
}

func (s *Store) InsertInvoices(_ context.Context, rows []core.Invoice) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.record("insert_invoices", rows[0].ID); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if s.invoiceIndex(r.ID) >= 0 {
			return nil, fmt.Errorf("insert invoice %s: %w", r.ID, gateway.ErrConflict)
		}
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		s.invoices = append(s.invoices, r)
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *Store) UpdateInvoice(_ context.Context, id string, patch core.InvoicePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("update_invoice", id); err != nil {
		return err
	}
	i := s.invoiceIndex(id)
	if i < 0 {
		return fmt.Errorf("update invoice %s: %w", id, gateway.ErrNotFound)
	}
	s.invoices[i] = patch.Apply(s.invoices[i])
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete_invoice", id); err != nil {
		return err
	}
	if s.invoiceIndex(id) < 0 {
		return fmt.Errorf("delete invoice %s: %w", id, gateway.ErrNotFound)
	}
	s.deleteWhere(func(inv core.Invoice) bool { return inv.ID == id })
	return nil
}

func (s *Store) DeleteInvoiceGroup(_ context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete_invoice_group", group); err != nil {
		return err
	}
	if n := s.deleteWhere(func(inv core.Invoice) bool { return inv.InstallmentGroup == group }); n == 0 {
		return fmt.Errorf("delete group %s: %w", group, gateway.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertPayments(_ context.Context, payments []core.Payment) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(payments) == 0 {
		return nil, nil
	}
	if err := s.record("insert_payments", payments[0].InvoiceID); err != nil {
		return nil, err
	}
	for _, p := range payments {
		if s.invoiceIndex(p.InvoiceID) < 0 {
			return nil, fmt.Errorf("payment for invoice %s: %w", p.InvoiceID, gateway.ErrNotFound)
		}
		for _, existing := range s.payments {
			if existing.ID == p.ID {
				return nil, fmt.Errorf("insert payment %s: %w", p.ID, gateway.ErrConflict)
			}
		}
	}
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		s.payments = append(s.payments, p)
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *Store) SelectInvoices(_ context.Context, owner string) ([]core.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, fmt.Errorf("select invoices: %w", gateway.ErrUnavailable)
	}
	var out []core.Invoice
	for _, inv := range s.invoices {
		if inv.OwnerID == owner {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) SelectPayments(_ context.Context, owner string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, fmt.Errorf("select payments: %w", gateway.ErrUnavailable)
	}
	var out []core.Payment
	for _, p := range s.payments {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return gateway.ErrUnavailable
	}
	return nil
}

func (s *Store) invoiceIndex(id string) int {
	return slices.IndexFunc(s.invoices, func(inv core.Invoice) bool { return inv.ID == id })
}

// deleteWhere removes matching invoices and their payments.
func (s *Store) deleteWhere(match func(core.Invoice) bool) int {
	removed := make(map[string]struct{})
	kept := s.invoices[:0]
	for _, inv := range s.invoices {
		if match(inv) {
			removed[inv.ID] = struct{}{}
			continue
		}
		kept = append(kept, inv)
	}
	s.invoices = kept
	s.payments = slices.DeleteFunc(s.payments, func(p core.Payment) bool {
		_, ok := removed[p.InvoiceID]
		return ok
	})
	return len(removed)
}
