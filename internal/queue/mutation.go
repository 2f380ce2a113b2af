package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"faturas/internal/core"
)

// Kind names a mutation variant in the persisted list.
type Kind string

const (
	KindAddInvoice       Kind = "add_invoice"
	KindUpdateInvoice    Kind = "update_invoice"
	KindDeleteInvoice    Kind = "delete_invoice"
	KindAddPayment       Kind = "add_payment"
	KindAddPaymentsBatch Kind = "add_payments_batch"
)

var (
	ErrStorageUnavailable = errors.New("queue storage unavailable")
	ErrUnknownMutation    = errors.New("unknown mutation kind")
)

// Mutation is a write intent in the exact shape the gateway needs to
// replay it. The set of variants is closed.
type Mutation interface {
	Kind() Kind
	mutation()
}

type (
	// AddInvoice inserts fully built rows (ids, owner and group assigned).
	AddInvoice struct {
		Rows []core.Invoice `json:"rows"`
	}

	UpdateInvoice struct {
		ID    string            `json:"id"`
		Patch core.InvoicePatch `json:"patch"`
	}

	// DeleteInvoice removes a whole installment plan when Group is set,
	// otherwise the single invoice ID.
	DeleteInvoice struct {
		ID    string `json:"id"`
		Group string `json:"group,omitempty"`
	}

	AddPayment struct {
		Payment core.Payment `json:"payment"`
	}

	AddPaymentsBatch struct {
		Payments []core.Payment `json:"payments"`
	}
)

func (AddInvoice) Kind() Kind       { return KindAddInvoice }
func (UpdateInvoice) Kind() Kind    { return KindUpdateInvoice }
func (DeleteInvoice) Kind() Kind    { return KindDeleteInvoice }
func (AddPayment) Kind() Kind       { return KindAddPayment }
func (AddPaymentsBatch) Kind() Kind { return KindAddPaymentsBatch }

func (AddInvoice) mutation()       {}
func (UpdateInvoice) mutation()    {}
func (DeleteInvoice) mutation()    {}
func (AddPayment) mutation()       {}
func (AddPaymentsBatch) mutation() {}

// QueuedMutation is one entry of the queue. Entries are immutable.
type QueuedMutation struct {
	ID        uint64
	Mutation  Mutation
	CreatedAt time.Time
}

func (q QueuedMutation) Kind() Kind {
	if q.Mutation == nil {
		return ""
	}
	return q.Mutation.Kind()
}

type envelope struct {
	ID        uint64          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func (q QueuedMutation) MarshalJSON() ([]byte, error) {
	if q.Mutation == nil {
		return nil, fmt.Errorf("marshal entry %d: nil mutation", q.ID)
	}
	payload, err := json.Marshal(q.Mutation)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", q.Mutation.Kind(), err)
	}
	return json.Marshal(envelope{
		ID:        q.ID,
		Kind:      q.Mutation.Kind(),
		Payload:   payload,
		CreatedAt: q.CreatedAt,
	})
}

func (q *QueuedMutation) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	m, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return fmt.Errorf("entry %d: %w", env.ID, err)
	}
	*q = QueuedMutation{ID: env.ID, Mutation: m, CreatedAt: env.CreatedAt}
	return nil
}

func decodePayload(kind Kind, payload json.RawMessage) (Mutation, error) {
	var m Mutation
	switch kind {
	case KindAddInvoice:
		var v AddInvoice
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		m = v
	case KindUpdateInvoice:
		var v UpdateInvoice
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		m = v
	case KindDeleteInvoice:
		var v DeleteInvoice
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		m = v
	case KindAddPayment:
		var v AddPayment
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		m = v
	case KindAddPaymentsBatch:
		var v AddPaymentsBatch
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, kind)
	}
	return m, nil
}

// Describe returns a short human readable summary, used in logs and by
// the operator CLI.
func Describe(m Mutation) string {
	switch v := m.(type) {
	case AddInvoice:
		if len(v.Rows) == 1 {
			return fmt.Sprintf("add invoice %q", v.Rows[0].Description)
		}
		return fmt.Sprintf("add %d invoices", len(v.Rows))
	case UpdateInvoice:
		return fmt.Sprintf("update invoice %s", v.ID)
	case DeleteInvoice:
		if v.Group != "" {
			return fmt.Sprintf("delete installment group %s", v.Group)
		}
		return fmt.Sprintf("delete invoice %s", v.ID)
	case AddPayment:
		return fmt.Sprintf("add payment of %s to %s", v.Payment.Amount, v.Payment.InvoiceID)
	case AddPaymentsBatch:
		return fmt.Sprintf("settle %d invoices", len(v.Payments))
	}
	return "unknown mutation"
}
