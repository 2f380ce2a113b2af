package http

import (
	"net/http"

	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/services"
)

// InvoiceList is the body of GET /api/invoices.
type InvoiceList struct {
	Invoices []core.InvoiceView `json:"invoices"`
	Count    int                `json:"count"`
	Online   bool               `json:"online"`
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		ErrorResponse(http.StatusUnprocessableEntity, CodeValidation, err.Error()).Write(w)
		return
	}
	views, err := s.deps.Invoices.ListInvoices(r.Context(), f)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Data(InvoiceList{
		Invoices: views,
		Count:    len(views),
		Online:   s.deps.Oracle.Online(),
	}).Write(w)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	base, plan, err := req.Invoice()
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	res, err := s.deps.Invoices.AddInvoice(r.Context(), base, plan)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	s.mutationDone(w, r, applog.OpCreate, "", base.TotalAmount.Cents, res, http.StatusCreated)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdateInvoiceRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	patch, err := req.Patch()
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	res, err := s.deps.Invoices.UpdateInvoice(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.mutationDone(w, r, applog.OpUpdate, id, 0, res, http.StatusOK)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.deps.Invoices.DeleteInvoice(r.Context(), id)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	s.mutationDone(w, r, applog.OpDelete, id, 0, res, http.StatusOK)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req PaymentRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p, err := req.Payment(id)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	res, err := s.deps.Invoices.AddPayment(r.Context(), p)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	s.mutationDone(w, r, applog.OpCreate, id, p.Amount.Cents, res, http.StatusCreated)
}

func (s *Server) handleBatchPayments(w http.ResponseWriter, r *http.Request) {
	var req BatchPaymentRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	res, err := s.deps.Invoices.AddPaymentsBatch(r.Context(), req.Month, req.InvoiceIDs, req.Date, req.IsEarly)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	status := http.StatusCreated
	if !res.Queued && len(res.IDs) == 0 {
		status = http.StatusOK
	}
	s.mutationDone(w, r, applog.OpCreate, "", 0, res, status)
}

// mutationDone answers a write. The queued flag in the body tells pending
// from confirmed writes.
func (s *Server) mutationDone(w http.ResponseWriter, r *http.Request, op, invoiceID string, cents int64, res services.Result, status int) {
	s.structured.LogMutation(r.Context(), op, invoiceID, cents, res.Queued)
	NewJSONResponse().Status(status).Data(res).Write(w)
}
