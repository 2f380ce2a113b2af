// Package storage implements the invoice gateway on SQL databases: SQLite
// for a local single-file setup and Postgres for a shared remote store.
// The local SQLite file also holds the persisted mutation queue.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"faturas/internal/core"
	"faturas/internal/gateway"
	applog "faturas/internal/log"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *applog.Logger
}

var _ gateway.Gateway = (*Repository)(nil)

// OpenSQLite opens (creating if needed) the database file and migrates it.
func OpenSQLite(dbPath string, logger *applog.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, dbPath, logger)
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string, logger *applog.Logger) (*Repository, error) {
	return open(DialectPostgres, dsn, logger)
}

func open(dialect Dialect, dsn string, logger *applog.Logger) (*Repository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time avoids SQLITE_BUSY between the queue and
		// the gateway sharing the file.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		dialect: dialect,
		logger:  logger.WithComponent(applog.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Dialect() Dialect { return r.dialect }

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return r.wrap("ping", err)
	}
	return nil
}

const invoiceColumns = `id, owner_id, description, category, total_cents, due_date, reference_month,
	card, payment_method, notes, installment_group, installment_number, installment_count, created_at`

const paymentColumns = `id, owner_id, invoice_id, amount_cents, paid_on, is_early, notes, created_at`

func (r *Repository) InsertInvoices(ctx context.Context, rows []core.Invoice) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt := r.rebind(`INSERT INTO invoices (` + invoiceColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, inv := range rows {
			_, err := tx.ExecContext(ctx, stmt,
				inv.ID, inv.OwnerID, inv.Description, string(inv.Category), inv.TotalAmount.Cents,
				inv.DueDate.String(), inv.ReferenceMonth.String(),
				inv.Card, inv.PaymentMethod, inv.Notes,
				inv.InstallmentGroup, inv.InstallmentNumber, inv.InstallmentCount,
				formatTime(inv.CreatedAt))
			if err != nil {
				return fmt.Errorf("invoice %s: %w", inv.ID, err)
			}
			ids = append(ids, inv.ID)
		}
		return nil
	})
	if err != nil {
		return nil, r.wrap("insert invoices", err)
	}
	r.logger.DebugContext(ctx, "Invoices inserted", "count", len(ids))
	return ids, nil
}

func (r *Repository) UpdateInvoice(ctx context.Context, id string, patch core.InvoicePatch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", string(*patch.Category))
	}
	if patch.TotalAmount != nil {
		set("total_cents", patch.TotalAmount.Cents)
	}
	if patch.DueDate != nil {
		set("due_date", patch.DueDate.String())
	}
	if patch.ReferenceMonth != nil {
		set("reference_month", patch.ReferenceMonth.String())
	}
	if patch.Card != nil {
		set("card", *patch.Card)
	}
	if patch.PaymentMethod != nil {
		set("payment_method", *patch.PaymentMethod)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if len(sets) == 0 {
		return core.ErrEmptyPatch
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, r.rebind("UPDATE invoices SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return r.wrap("update invoice", err)
	}
	return expectRows(res, "update invoice "+id)
}

func (r *Repository) DeleteInvoice(ctx context.Context, id string) error {
	return r.deleteInvoices(ctx, "delete invoice "+id, "id = ?", id)
}

func (r *Repository) DeleteInvoiceGroup(ctx context.Context, group string) error {
	if group == "" {
		return fmt.Errorf("delete invoice group: empty group: %w", gateway.ErrNotFound)
	}
	return r.deleteInvoices(ctx, "delete invoice group "+group, "installment_group = ?", group)
}

// deleteInvoices removes payments first so the cascade does not depend on
// SQLite foreign key enforcement being switched on.
func (r *Repository) deleteInvoices(ctx context.Context, op, where string, arg string) error {
	var res sql.Result
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(
			"DELETE FROM payments WHERE invoice_id IN (SELECT id FROM invoices WHERE "+where+")"), arg); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		var err error
		res, err = tx.ExecContext(ctx, r.rebind("DELETE FROM invoices WHERE "+where), arg)
		return err
	})
	if err != nil {
		return r.wrap(op, err)
	}
	return expectRows(res, op)
}

func (r *Repository) InsertPayments(ctx context.Context, payments []core.Payment) ([]string, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(payments))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		exists := r.rebind("SELECT COUNT(*) FROM invoices WHERE id = ?")
		stmt := r.rebind(`INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, p := range payments {
			var n int
			if err := tx.QueryRowContext(ctx, exists, p.InvoiceID).Scan(&n); err != nil {
				return fmt.Errorf("check invoice %s: %w", p.InvoiceID, err)
			}
			if n == 0 {
				return fmt.Errorf("payment for invoice %s: %w", p.InvoiceID, gateway.ErrNotFound)
			}
			if _, err := tx.ExecContext(ctx, stmt,
				p.ID, p.OwnerID, p.InvoiceID, p.Amount.Cents, p.Date.String(), p.IsEarly, p.Notes,
				formatTime(p.CreatedAt)); err != nil {
				return fmt.Errorf("payment %s: %w", p.ID, err)
			}
			ids = append(ids, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, r.wrap("insert payments", err)
	}
	return ids, nil
}

func (r *Repository) SelectInvoices(ctx context.Context, owner string) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		"SELECT "+invoiceColumns+" FROM invoices WHERE owner_id = ? ORDER BY due_date, created_at"), owner)
	if err != nil {
		return nil, r.wrap("select invoices", err)
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		var (
			inv                       core.Invoice
			category, due, month, cat string
		)
		if err := rows.Scan(&inv.ID, &inv.OwnerID, &inv.Description, &category, &inv.TotalAmount.Cents,
			&due, &month, &inv.Card, &inv.PaymentMethod, &inv.Notes,
			&inv.InstallmentGroup, &inv.InstallmentNumber, &inv.InstallmentCount, &cat); err != nil {
			return nil, r.wrap("scan invoice", err)
		}
		inv.Category = core.Category(category)
		if inv.DueDate, err = core.ParseDate(due); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		if inv.ReferenceMonth, err = core.ParseMonth(month); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		inv.CreatedAt = parseTime(cat)
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("select invoices", err)
	}
	return out, nil
}

func (r *Repository) SelectPayments(ctx context.Context, owner string) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		"SELECT "+paymentColumns+" FROM payments WHERE owner_id = ? ORDER BY paid_on, created_at"), owner)
	if err != nil {
		return nil, r.wrap("select payments", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		var (
			p           core.Payment
			paidOn, cat string
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.InvoiceID, &p.Amount.Cents, &paidOn, &p.IsEarly, &p.Notes, &cat); err != nil {
			return nil, r.wrap("scan payment", err)
		}
		if p.Date, err = core.ParseDate(paidOn); err != nil {
			return nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}
		p.CreatedAt = parseTime(cat)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("select payments", err)
	}
	return out, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// wrap classifies a driver error into the gateway taxonomy.
func (r *Repository) wrap(op string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	case isUniqueViolation(err) || gateway.IsConflict(err):
		return fmt.Errorf("%s: %w: %w", op, gateway.ErrConflict, err)
	case gateway.IsTransient(err):
		return fmt.Errorf("%s: %w: %w", op, gateway.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, gateway.ErrRemote, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func expectRows(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, gateway.ErrNotFound)
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
