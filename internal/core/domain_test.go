package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func validInvoice() Invoice {
	return Invoice{
		ID:             "inv-1",
		OwnerID:        "user-1",
		Description:    "Aluguel",
		Category:       CategoryRent,
		TotalAmount:    Money{Cents: 150000},
		DueDate:        NewDate(2025, 3, 10),
		ReferenceMonth: NewMonth(2025, time.March),
	}
}

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateAddMonthsClampsDay(t *testing.T) {
	cases := []struct {
		from Date
		n    int
		want string
	}{
		{NewDate(2025, 1, 31), 1, "2025-02-28"},
		{NewDate(2024, 1, 31), 1, "2024-02-29"},
		{NewDate(2025, 11, 15), 2, "2026-01-15"},
		{NewDate(2025, 3, 31), -1, "2025-02-28"},
		{NewDate(2025, 5, 10), 0, "2025-05-10"},
	}
	for _, tc := range cases {
		if got := tc.from.AddMonths(tc.n).String(); got != tc.want {
			t.Errorf("%s + %d months: expected %s, got %s", tc.from, tc.n, tc.want, got)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2025-04-02"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.String() != "2025-04-02" {
		t.Fatalf("unexpected date %s", d)
	}
	if err := json.Unmarshal([]byte(`"2025-04-02T23:10:00Z"`), &d); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if d.String() != "2025-04-02" {
		t.Fatalf("timestamp should keep calendar day, got %s", d)
	}
	b, _ := json.Marshal(NewDate(2025, 1, 5))
	if string(b) != `"2025-01-05"` {
		t.Fatalf("unexpected encoding %s", b)
	}
	if err := json.Unmarshal([]byte(`"05/01/2025"`), &d); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestInvoiceValidate(t *testing.T) {
	if err := validInvoice().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Invoice)
		want   error
	}{
		{"empty description", func(i *Invoice) { i.Description = "  " }, ErrEmptyDescription},
		{"unknown category", func(i *Invoice) { i.Category = "lazer" }, ErrInvalidCategory},
		{"zero amount", func(i *Invoice) { i.TotalAmount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(i *Invoice) { i.TotalAmount = Money{Cents: -5} }, ErrInvalidAmount},
		{"zero due date", func(i *Invoice) { i.DueDate = Date{} }, nil},
		{"zero month", func(i *Invoice) { i.ReferenceMonth = Month{} }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := validInvoice()
			tc.mutate(&inv)
			err := inv.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPaymentValidate(t *testing.T) {
	good := Payment{InvoiceID: "inv-1", Amount: Money{Cents: 100}, Date: NewDate(2025, 3, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Payment{
		{InvoiceID: "", Amount: Money{Cents: 100}, Date: NewDate(2025, 3, 1)},
		{InvoiceID: "inv-1", Amount: Money{Cents: 0}, Date: NewDate(2025, 3, 1)},
		{InvoiceID: "inv-1", Amount: Money{Cents: 100}},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestInvoicePatch(t *testing.T) {
	if err := (InvoicePatch{}).Validate(); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}

	desc := "Internet fibra"
	card := ""
	patch := InvoicePatch{Description: &desc, Card: &card}
	if err := patch.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	inv := validInvoice()
	inv.Card = "Nubank"
	got := patch.Apply(inv)
	if got.Description != desc {
		t.Errorf("description not applied: %q", got.Description)
	}
	if got.Card != "" {
		t.Errorf("card should be cleared, got %q", got.Card)
	}
	if got.TotalAmount != inv.TotalAmount || got.Category != inv.Category {
		t.Error("untouched fields changed")
	}
	if inv.Description == desc {
		t.Error("Apply must not modify its input")
	}

	bad := Category("nope")
	if err := (InvoicePatch{Category: &bad}).Validate(); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}

	long := strings.Repeat("x", 201)
	if err := (InvoicePatch{Description: &long}).Validate(); !errors.Is(err, ErrDescriptionTooLong) {
		t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
	}
	edge := strings.Repeat("x", 200)
	if err := (InvoicePatch{Description: &edge}).Validate(); err != nil {
		t.Fatalf("200 characters must be accepted, got %v", err)
	}
}

func TestInvoicePatchJSONOmitsUntouched(t *testing.T) {
	var p InvoicePatch
	if err := json.Unmarshal([]byte(`{"description":"Y"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Description == nil || *p.Description != "Y" {
		t.Fatal("description not decoded")
	}
	if p.TotalAmount != nil || p.Card != nil || p.DueDate != nil {
		t.Fatal("absent fields must stay nil")
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"zero date", Date{}.Validate(), true},
		{"bad month", Month{}.Validate(), true},
		{"wrapped amount", fmt.Errorf("add: %w", ErrInvalidAmount), true},
		{"payment without invoice", Payment{Amount: Cents(1), Date: NewDate(2025, 1, 1)}.Validate(), true},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Fatalf("IsValidation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
