package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CategoryRent      Category = "aluguel"
	CategoryCard      Category = "cartao"
	CategoryPower     Category = "energia"
	CategoryInternet  Category = "internet"
	CategoryWater     Category = "agua"
	CategoryPhone     Category = "telefone"
	CategoryEducation Category = "educacao"
	CategoryHealth    Category = "saude"
	CategoryTransport Category = "transporte"
	CategoryFood      Category = "alimentacao"
	CategoryOther     Category = "outros"
)

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

type (
	Category string

	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Invoice is the row shape stored by the remote gateway.
	Invoice struct {
		ID                string    `json:"id"`
		OwnerID           string    `json:"owner_id"`
		Description       string    `json:"description"`
		Category          Category  `json:"category"`
		TotalAmount       Money     `json:"total_amount"`
		DueDate           Date      `json:"due_date"`
		ReferenceMonth    Month     `json:"reference_month"`
		Card              string    `json:"card,omitempty"`
		PaymentMethod     string    `json:"payment_method,omitempty"`
		Notes             string    `json:"notes,omitempty"`
		InstallmentGroup  string    `json:"installment_group,omitempty"`
		InstallmentNumber int       `json:"installment_number,omitempty"`
		InstallmentCount  int       `json:"installment_count,omitempty"`
		CreatedAt         time.Time `json:"created_at"`
	}

	Payment struct {
		ID        string    `json:"id"`
		OwnerID   string    `json:"owner_id"`
		InvoiceID string    `json:"invoice_id"`
		Amount    Money     `json:"amount"`
		Date      Date      `json:"date"`
		IsEarly   bool      `json:"is_early"`
		Notes     string    `json:"notes,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	// InvoicePatch is a partial update; nil fields are left untouched.
	// Empty strings for Card and PaymentMethod clear the field.
	InvoicePatch struct {
		Description    *string   `json:"description,omitempty"`
		Category       *Category `json:"category,omitempty"`
		TotalAmount    *Money    `json:"total_amount,omitempty"`
		DueDate        *Date     `json:"due_date,omitempty"`
		ReferenceMonth *Month    `json:"reference_month,omitempty"`
		Card           *string   `json:"card,omitempty"`
		PaymentMethod  *string   `json:"payment_method,omitempty"`
		Notes          *string   `json:"notes,omitempty"`
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidInstallment = errors.New("invalid installment")
	ErrEmptyPatch         = errors.New("empty patch")
	ErrInvalidDate        = errors.New("invalid date")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrMissingInvoice     = errors.New("payment without invoice")
)

const maxDescriptionLen = 200

// validationErrors are the rejections of locally checkable input.
var validationErrors = []error{
	ErrInvalidDay, ErrInvalidMonth, ErrInvalidAmount, ErrEmptyDescription, ErrInvalidCategory,
	ErrInvalidInstallment, ErrEmptyPatch, ErrInvalidDate, ErrDescriptionTooLong, ErrMissingInvoice,
}

// IsValidation reports whether err is an input rejection from this package.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var categories = []Category{
	CategoryRent, CategoryCard, CategoryPower, CategoryInternet, CategoryWater, CategoryPhone,
	CategoryEducation, CategoryHealth, CategoryTransport, CategoryFood, CategoryOther,
}

// Categories returns every known category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) IsValid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// AddMonths shifts the date by n whole months, clamping the day to the
// last day of the target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return Date{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps as well, keeping only the calendar day.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Cents)
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &m.Cents)
}

func (i Invoice) Validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return ErrEmptyDescription
	}
	if len(i.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if !i.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, i.Category)
	}
	if err := i.TotalAmount.Validate(); err != nil {
		return err
	}
	if err := i.DueDate.Validate(); err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}
	if err := i.ReferenceMonth.Validate(); err != nil {
		return fmt.Errorf("invalid reference month: %w", err)
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.InvoiceID) == "" {
		return ErrMissingInvoice
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if err := p.Date.Validate(); err != nil {
		return fmt.Errorf("invalid payment date: %w", err)
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p InvoicePatch) IsEmpty() bool {
	return p.Description == nil && p.Category == nil && p.TotalAmount == nil && p.DueDate == nil &&
		p.ReferenceMonth == nil && p.Card == nil && p.PaymentMethod == nil && p.Notes == nil
}

func (p InvoicePatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return ErrEmptyDescription
		}
		if len(*p.Description) > maxDescriptionLen {
			return ErrDescriptionTooLong
		}
	}
	if p.Category != nil && !p.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, *p.Category)
	}
	if p.TotalAmount != nil {
		if err := p.TotalAmount.Validate(); err != nil {
			return err
		}
	}
	if p.DueDate != nil {
		if err := p.DueDate.Validate(); err != nil {
			return fmt.Errorf("invalid due date: %w", err)
		}
	}
	if p.ReferenceMonth != nil {
		if err := p.ReferenceMonth.Validate(); err != nil {
			return fmt.Errorf("invalid reference month: %w", err)
		}
	}
	return nil
}

// Apply returns a copy of inv with the patch fields applied.
func (p InvoicePatch) Apply(inv Invoice) Invoice {
	if p.Description != nil {
		inv.Description = *p.Description
	}
	if p.Category != nil {
		inv.Category = *p.Category
	}
	if p.TotalAmount != nil {
		inv.TotalAmount = *p.TotalAmount
	}
	if p.DueDate != nil {
		inv.DueDate = *p.DueDate
	}
	if p.ReferenceMonth != nil {
		inv.ReferenceMonth = *p.ReferenceMonth
	}
	if p.Card != nil {
		inv.Card = *p.Card
	}
	if p.PaymentMethod != nil {
		inv.PaymentMethod = *p.PaymentMethod
	}
	if p.Notes != nil {
		inv.Notes = *p.Notes
	}
	return inv
}
