// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: JSON bodies, month and filter query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"faturas/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// DecodeJSON reads a single JSON value from r into dst, rejecting unknown
// fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON value")
	}
	return nil
}

// ParseMonthParam reads month=YYYY-MM, defaulting to the month of now.
func ParseMonthParam(query url.Values, now time.Time) (core.Month, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return core.MonthOf(now), nil
	}
	return core.ParseMonth(v)
}

// ParseFilter builds a list filter from month, status, category, card and q.
// Every parameter is optional.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			return core.Filter{}, err
		}
		f.Month = m
	}
	if v := strings.TrimSpace(query.Get("status")); v != "" {
		f.Status = core.Status(v)
		if !f.Status.IsValid() {
			return core.Filter{}, fmt.Errorf("unknown status %q", v)
		}
	}
	if v := strings.TrimSpace(query.Get("category")); v != "" {
		f.Category = core.Category(v)
		if !f.Category.IsValid() {
			return core.Filter{}, fmt.Errorf("%w: %q", core.ErrInvalidCategory, v)
		}
	}
	f.Card = SanitizeInput(query.Get("card"))
	f.Query = SanitizeInput(query.Get("q"))
	return f, nil
}

// CreateInvoiceRequest is the body of POST /api/invoices. Amount is the
// total of the whole plan and accepts 12.34 or 12,34.
type CreateInvoiceRequest struct {
	Description      string        `json:"description"`
	Category         core.Category `json:"category"`
	Amount           string        `json:"amount"`
	DueDate          core.Date     `json:"due_date"`
	ReferenceMonth   core.Month    `json:"reference_month"`
	Card             string        `json:"card"`
	PaymentMethod    string        `json:"payment_method"`
	Notes            string        `json:"notes"`
	Installments     int           `json:"installments"`
	StartInstallment int           `json:"start_installment"`
}

// Invoice converts the request into the base invoice and plan. A missing
// reference month defaults to the due date's month.
func (req CreateInvoiceRequest) Invoice() (core.Invoice, core.InstallmentPlan, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.Invoice{}, core.InstallmentPlan{}, err
	}
	ref := req.ReferenceMonth
	if ref.IsZero() && !req.DueDate.IsZero() {
		ref = core.MonthOf(req.DueDate.Time)
	}
	inv := core.Invoice{
		Description:    SanitizeInput(req.Description),
		Category:       req.Category,
		TotalAmount:    amount,
		DueDate:        req.DueDate,
		ReferenceMonth: ref,
		Card:           SanitizeInput(req.Card),
		PaymentMethod:  SanitizeInput(req.PaymentMethod),
		Notes:          SanitizeInput(req.Notes),
	}
	plan := core.InstallmentPlan{Count: req.Installments, Start: req.StartInstallment}
	return inv, plan, nil
}

// UpdateInvoiceRequest is the body of PATCH /api/invoices/{id}. Absent
// fields are left untouched.
type UpdateInvoiceRequest struct {
	Description    *string        `json:"description"`
	Category       *core.Category `json:"category"`
	Amount         *string        `json:"amount"`
	DueDate        *core.Date     `json:"due_date"`
	ReferenceMonth *core.Month    `json:"reference_month"`
	Card           *string        `json:"card"`
	PaymentMethod  *string        `json:"payment_method"`
	Notes          *string        `json:"notes"`
}

func (req UpdateInvoiceRequest) Patch() (core.InvoicePatch, error) {
	p := core.InvoicePatch{
		Category:       req.Category,
		DueDate:        req.DueDate,
		ReferenceMonth: req.ReferenceMonth,
		Description:    sanitizePtr(req.Description),
		Card:           sanitizePtr(req.Card),
		PaymentMethod:  sanitizePtr(req.PaymentMethod),
		Notes:          sanitizePtr(req.Notes),
	}
	if req.Amount != nil {
		amount, err := core.ParseMoney(*req.Amount)
		if err != nil {
			return core.InvoicePatch{}, err
		}
		p.TotalAmount = &amount
	}
	return p, nil
}

// PaymentRequest is the body of POST /api/invoices/{id}/payments. A
// missing date means today.
type PaymentRequest struct {
	Amount  string    `json:"amount"`
	Date    core.Date `json:"date"`
	IsEarly bool      `json:"is_early"`
	Notes   string    `json:"notes"`
}

func (req PaymentRequest) Payment(invoiceID string) (core.Payment, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.Payment{}, err
	}
	return core.Payment{
		InvoiceID: invoiceID,
		Amount:    amount,
		Date:      req.Date,
		IsEarly:   req.IsEarly,
		Notes:     SanitizeInput(req.Notes),
	}, nil
}

// BatchPaymentRequest is the body of POST /api/payments/batch. An empty
// id list settles every unpaid invoice of the month.
type BatchPaymentRequest struct {
	Month      core.Month `json:"month"`
	InvoiceIDs []string   `json:"invoice_ids"`
	Date       core.Date  `json:"date"`
	IsEarly    bool       `json:"is_early"`
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := SanitizeInput(*s)
	return &v
}
