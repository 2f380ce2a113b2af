// Package gateway defines the remote data store the invoice service writes
// through, and how its failures are classified.
package gateway

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	"github.com/omeid/pgerror"

	"faturas/internal/core"
)

var (
	// ErrRemote wraps every failure reported by the remote store.
	ErrRemote = errors.New("remote store error")
	// ErrNotFound means the targeted row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrConflict means a row with the same id already exists.
	ErrConflict = errors.New("conflicting row")
)

// Gateway performs the actual writes and reads against the remote store.
// Inserts return the stored ids.
type Gateway interface {
	InsertInvoices(ctx context.Context, rows []core.Invoice) ([]string, error)
	UpdateInvoice(ctx context.Context, id string, patch core.InvoicePatch) error
	// DeleteInvoice and DeleteInvoiceGroup also remove the payments of the
	// deleted invoices.
	DeleteInvoice(ctx context.Context, id string) error
	DeleteInvoiceGroup(ctx context.Context, group string) error
	InsertPayments(ctx context.Context, payments []core.Payment) ([]string, error)
	SelectInvoices(ctx context.Context, owner string) ([]core.Invoice, error)
	SelectPayments(ctx context.Context, owner string) ([]core.Payment, error)
	Ping(ctx context.Context) error
}

// IsTransient reports whether err is a reachability problem rather than a
// rejected request: retrying later may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 covers every connection failure subcode.
		return pgerror.ConnectionException(pqErr) != nil || pqErr.Code.Class() == "08"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsConflict reports a duplicate row, e.g. a replayed insert that an
// earlier pass already committed.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pgerror.UniqueViolation(pqErr) != nil
}
