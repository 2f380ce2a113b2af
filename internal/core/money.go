// Package core holds the invoice domain: rows, payments, status derivation,
// installment plans and month summaries.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDecimalToCents reads a positive amount typed by the user, with
// either a dot or a comma before the cents. Digits past the second decimal
// only round the cents half-up on the third: "9,995" is 1000.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	units, frac, _ := strings.Cut(s, ".")
	if s == "" || strings.Contains(frac, ".") || !onlyDigits(units) || !onlyDigits(frac) {
		return 0, ErrInvalidAmount
	}
	if units == "" {
		units = "0"
	}

	// Whole units must leave room for the * 100.
	const maxUnits = (1<<63 - 1) / 100
	whole, err := strconv.ParseInt(units, 10, 64)
	if err != nil || whole > maxUnits {
		return 0, ErrInvalidAmount
	}

	var cents int64
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(frac) {
			cents += int64(frac[i] - '0')
		}
	}
	if len(frac) > 2 && frac[2] >= '5' {
		cents++
	}

	total := whole*100 + cents
	if total <= 0 {
		return 0, ErrInvalidAmount
	}
	return total, nil
}

func onlyDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

// ParseMoney is ParseDecimalToCents wrapped in a Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

func Cents(c int64) Money {
	return Money{Cents: c}
}

// Units returns the value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two decimals and a dot separator.
func (m Money) String() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
