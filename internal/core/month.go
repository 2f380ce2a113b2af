package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Month is a calendar month an invoice is billed to (YYYY-MM),
// independent of its due date.
type Month struct {
	Year  int
	Month time.Month
}

const monthLayout = "2006-01"

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q: %v", ErrInvalidMonth, s, err)
	}
	return MonthOf(t), nil
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) Validate() error {
	if m.IsZero() {
		return fmt.Errorf("%w: zero", ErrInvalidMonth)
	}
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// AddMonths returns the month n months later (or earlier for negative n).
func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
