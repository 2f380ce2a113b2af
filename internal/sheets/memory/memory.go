package memory

import (
	"context"
	"fmt"
	"sync"

	"faturas/internal/sheets"
)

// Store keeps the last report written per month.
type Store struct {
	mu      sync.Mutex
	reports map[string]sheets.MonthReport
	writes  int
}

var _ sheets.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{reports: make(map[string]sheets.MonthReport)}
}

// WriteMonthReport stores r and returns a synthetic reference.
func (s *Store) WriteMonthReport(_ context.Context, r sheets.MonthReport) (string, error) {
	if err := r.Month.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Month.String()] = r
	s.writes++
	return fmt.Sprintf("mem:%s#%d", r.Month, s.writes), nil
}

// Report returns the last report written for month (YYYY-MM).
func (s *Store) Report(month string) (sheets.MonthReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[month]
	return r, ok
}

// Writes counts every report written so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
