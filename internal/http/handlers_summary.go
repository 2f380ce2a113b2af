package http

import (
	"net/http"

	"faturas/internal/core"
	applog "faturas/internal/log"
)

// MonthReport is the body of GET /api/summary.
type MonthReport struct {
	Summary    core.MonthSummary     `json:"summary"`
	Index      core.FinancialIndex   `json:"index"`
	Categories []core.CategoryAmount `json:"categories"`
	Cards      []core.CardAmount     `json:"cards"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	m, err := ParseMonthParam(r.URL.Query(), s.deps.Now())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	ctx := r.Context()

	summary, err := s.deps.Invoices.MonthSummary(ctx, m)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	cats, err := s.deps.Invoices.CategoryBreakdown(ctx, m)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	cards, err := s.deps.Invoices.CardBreakdown(ctx, m)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	NewJSONResponse().Data(MonthReport{
		Summary:    summary,
		Index:      core.Index(summary),
		Categories: cats,
		Cards:      cards,
	}).Write(w)
}
