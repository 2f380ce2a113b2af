// Package worker keeps the spreadsheet month reports in line with the
// remote store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/core"
	"faturas/internal/gateway"
	applog "faturas/internal/log"
	"faturas/internal/sheets"
)

// ExportWorker rewrites month reports from the remote store's rows.
type ExportWorker struct {
	gw     gateway.Gateway
	writer sheets.ReportWriter
	logger *applog.Logger
	now    func() time.Time
}

func NewExportWorker(gw gateway.Gateway, writer sheets.ReportWriter, logger *applog.Logger) *ExportWorker {
	return &ExportWorker{
		gw:     gw,
		writer: writer,
		logger: logger.WithComponent(applog.ComponentWorker),
		now:    time.Now,
	}
}

// HandleInvoicesChanged re-exports the months named in msg, or every month
// the owner has invoices in when the message names none.
func (w *ExportWorker) HandleInvoicesChanged(ctx context.Context, msg *amqp.InvoicesChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing change event",
		applog.FieldOwner, msg.OwnerID,
		"months", msg.Months,
		"source", msg.Source)

	views, err := w.load(ctx, msg.OwnerID)
	if err != nil {
		return err
	}

	var months []core.Month
	for _, s := range msg.Months {
		m, err := core.ParseMonth(s)
		if err != nil {
			w.logger.WarnContext(ctx, "Skipping malformed month", applog.FieldMonth, s, applog.FieldError, err)
			continue
		}
		months = append(months, m)
	}
	if len(msg.Months) == 0 {
		months = monthsOf(views)
	}

	var errs []error
	for _, m := range months {
		if _, err := w.write(ctx, views, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportMonth writes the report of one month for owner.
func (w *ExportWorker) ExportMonth(ctx context.Context, owner string, m core.Month) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	views, err := w.load(ctx, owner)
	if err != nil {
		return "", err
	}
	return w.write(ctx, views, m)
}

func (w *ExportWorker) load(ctx context.Context, owner string) ([]core.InvoiceView, error) {
	invoices, err := w.gw.SelectInvoices(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	payments, err := w.gw.SelectPayments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return core.BuildViews(invoices, payments, w.now()), nil
}

func (w *ExportWorker) write(ctx context.Context, views []core.InvoiceView, m core.Month) (string, error) {
	ref, err := w.writer.WriteMonthReport(ctx, sheets.BuildMonthReport(views, m))
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export month",
			applog.FieldMonth, m.String(),
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		return "", fmt.Errorf("export %s: %w", m, err)
	}
	w.logger.InfoContext(ctx, "Month exported",
		applog.FieldMonth, m.String(),
		applog.FieldSheetsRef, ref)
	return ref, nil
}

func monthsOf(views []core.InvoiceView) []core.Month {
	var out []core.Month
	for _, v := range views {
		if !slices.Contains(out, v.ReferenceMonth) {
			out = append(out, v.ReferenceMonth)
		}
	}
	slices.SortFunc(out, func(a, b core.Month) int {
		if a.Year != b.Year {
			return a.Year - b.Year
		}
		return int(a.Month) - int(b.Month)
	})
	return out
}
