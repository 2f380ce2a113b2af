package http

import (
	"net/http"

	applog "faturas/internal/log"
	"faturas/internal/queue"
	"faturas/internal/services"
)

// SyncStatus is the body of GET /api/sync.
type SyncStatus struct {
	Online  bool                   `json:"online"`
	Syncing bool                   `json:"syncing"`
	Pending int                    `json:"pending"`
	Entries []queue.QueuedMutation `json:"entries"`
}

// SyncResult is the body of POST /api/sync.
type SyncResult struct {
	services.SyncReport
	Error string `json:"error,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Queue.List()
	NewJSONResponse().Data(SyncStatus{
		Online:  s.deps.Oracle.Online(),
		Syncing: s.deps.Sync.State() == services.SyncSyncing,
		Pending: len(entries),
		Entries: entries,
	}).Write(w)
}

// handleSyncNow runs a replay pass. A halted pass reports how far it got
// along with the error status of the entry that stopped it.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sync.SyncNow(r.Context())
	if err == nil {
		NewJSONResponse().Data(SyncResult{SyncReport: report}).Write(w)
		return
	}
	status, _ := StatusForError(err)
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Manual sync halted",
		applog.FieldReplayed, report.Replayed,
		applog.FieldPending, report.Remaining,
		applog.FieldError, err)
	NewJSONResponse().Status(status).Data(SyncResult{SyncReport: report, Error: err.Error()}).Write(w)
}

// handleClearQueue drops every pending write.
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	dropped := s.deps.Queue.Len()
	if err := s.deps.Queue.Clear(r.Context()); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	// Drop the optimistic rows of the discarded writes.
	if err := s.deps.Invoices.Refresh(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Refresh after queue clear failed",
			applog.FieldError, err)
	}
	NewJSONResponse().Data(map[string]int{"dropped": dropped}).Write(w)
}
