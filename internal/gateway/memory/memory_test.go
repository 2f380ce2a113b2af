package memory

import (
	"context"
	"errors"
	"testing"

	"faturas/internal/core"
	"faturas/internal/gateway"
)

func invoice(id, group string) core.Invoice {
	return core.Invoice{
		ID: id, OwnerID: "u1", Description: id, Category: core.CategoryOther,
		TotalAmount: core.Money{Cents: 100}, DueDate: core.NewDate(2025, 1, 1),
		InstallmentGroup: group,
	}
}

func TestDeleteGroupCascadesPayments(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.InsertInvoices(ctx, []core.Invoice{invoice("a", "g"), invoice("b", "g"), invoice("c", "")}); err != nil {
		t.Fatal(err)
	}
	pays := []core.Payment{
		{ID: "p1", OwnerID: "u1", InvoiceID: "a", Amount: core.Money{Cents: 10}},
		{ID: "p2", OwnerID: "u1", InvoiceID: "c", Amount: core.Money{Cents: 10}},
	}
	if _, err := s.InsertPayments(ctx, pays); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteInvoiceGroup(ctx, "g"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	invs, _ := s.SelectInvoices(ctx, "u1")
	if len(invs) != 1 || invs[0].ID != "c" {
		t.Fatalf("expected only c, got %+v", invs)
	}
	ps, _ := s.SelectPayments(ctx, "u1")
	if len(ps) != 1 || ps[0].ID != "p2" {
		t.Fatalf("expected only p2, got %+v", ps)
	}

	if err := s.DeleteInvoice(ctx, "zzz"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetDown(true)
	if _, err := s.InsertInvoices(ctx, []core.Invoice{invoice("a", "")}); !gateway.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatal("ping should fail while down")
	}
	s.SetDown(false)

	boom := errors.New("check constraint")
	s.FailOn("a", boom)
	_, err := s.InsertInvoices(ctx, []core.Invoice{invoice("a", "")})
	if !errors.Is(err, gateway.ErrRemote) || !errors.Is(err, boom) {
		t.Fatalf("expected remote error wrapping boom, got %v", err)
	}
	if gateway.IsTransient(err) {
		t.Fatal("rejected write is not transient")
	}
	if len(s.Calls()) != 0 {
		t.Fatal("failed calls must not be recorded")
	}

	s.FailOn("a", nil)
	if _, err := s.InsertInvoices(ctx, []core.Invoice{invoice("a", "")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertInvoices(ctx, []core.Invoice{invoice("a", "")}); !gateway.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}
}
