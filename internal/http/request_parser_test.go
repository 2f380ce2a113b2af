package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"faturas/internal/core"
)

func TestParseMonthParam(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	m, err := ParseMonthParam(url.Values{}, now)
	if err != nil || m != core.NewMonth(2025, time.July) {
		t.Fatalf("default month = %v, %v", m, err)
	}
	m, err = ParseMonthParam(url.Values{"month": {"2024-02"}}, now)
	if err != nil || m != core.NewMonth(2024, time.February) {
		t.Fatalf("month = %v, %v", m, err)
	}
	if _, err := ParseMonthParam(url.Values{"month": {"02/2024"}}, now); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(url.Values{
		"month":    {"2025-03"},
		"status":   {"overdue"},
		"category": {"cartao"},
		"card":     {"  Nubank\x00 "},
		"q":        {"luz"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := core.Filter{Month: core.NewMonth(2025, 3), Status: core.StatusOverdue, Category: core.CategoryCard, Card: "Nubank", Query: "luz"}
	if f != want {
		t.Fatalf("got %+v", f)
	}
	if _, err := ParseFilter(url.Values{"category": {"x"}}); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestCreateInvoiceRequest(t *testing.T) {
	req := CreateInvoiceRequest{
		Description:  " Internet ",
		Category:     core.CategoryInternet,
		Amount:       "99,90",
		DueDate:      core.NewDate(2025, 4, 10),
		Installments: 2,
	}
	inv, plan, err := req.Invoice()
	if err != nil {
		t.Fatal(err)
	}
	if inv.TotalAmount.Cents != 9990 || inv.Description != "Internet" {
		t.Fatalf("invoice %+v", inv)
	}
	if inv.ReferenceMonth != core.NewMonth(2025, time.April) {
		t.Fatalf("reference month defaults to the due month, got %v", inv.ReferenceMonth)
	}
	if plan.Count != 2 {
		t.Fatalf("plan %+v", plan)
	}

	req.Amount = "-1"
	if _, _, err := req.Invoice(); !core.IsValidation(err) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestUpdateInvoiceRequestPatch(t *testing.T) {
	amount, card := "10.5", ""
	p, err := UpdateInvoiceRequest{Amount: &amount, Card: &card}.Patch()
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalAmount == nil || p.TotalAmount.Cents != 1050 {
		t.Fatalf("amount %+v", p.TotalAmount)
	}
	if p.Card == nil || *p.Card != "" || p.Description != nil {
		t.Fatalf("patch %+v", p)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"amount":"1"}`, false},
		{"empty", ``, true},
		{"trailing", `{"amount":"1"} {}`, true},
		{"unknown", `{"amount":"1","x":2}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var req PaymentRequest
			if err := DecodeJSON(r, &req); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
