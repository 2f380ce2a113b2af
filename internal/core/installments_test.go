package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestInstallmentAmountsSumExactly(t *testing.T) {
	totals := []int64{10000, 12345, 99999, 120000, 1000003}
	for _, total := range totals {
		for n := 1; n <= 24; n++ {
			amounts := InstallmentAmounts(Money{Cents: total}, n)
			if len(amounts) != n {
				t.Fatalf("total %d n %d: expected %d amounts, got %d", total, n, n, len(amounts))
			}
			var sum int64
			for _, a := range amounts {
				sum += a.Cents
			}
			if sum != total {
				t.Fatalf("total %d n %d: amounts sum to %d", total, n, sum)
			}
			for i := 0; i < n; i++ {
				if amounts[i].Cents <= 0 {
					t.Fatalf("total %d n %d: installment %d is %d", total, n, i+1, amounts[i].Cents)
				}
				if i < n-1 && amounts[i] != amounts[0] {
					t.Fatalf("total %d n %d: installment %d differs from the first", total, n, i+1)
				}
			}
		}
	}
}

func TestInstallmentAmountsScenarios(t *testing.T) {
	cases := []struct {
		total int64
		n     int
		want  []int64
	}{
		{120000, 3, []int64{40000, 40000, 40000}},
		{10000, 3, []int64{3333, 3333, 3334}},
		{10000, 6, []int64{1667, 1667, 1667, 1667, 1667, 1665}},
		{500, 1, []int64{500}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d", tc.total, tc.n), func(t *testing.T) {
			got := InstallmentAmounts(Money{Cents: tc.total}, tc.n)
			for i, want := range tc.want {
				if got[i].Cents != want {
					t.Fatalf("installment %d: expected %d, got %d", i+1, want, got[i].Cents)
				}
			}
		})
	}
}

func TestBuildInstallments(t *testing.T) {
	base := validInvoice()
	base.Description = "Notebook"
	base.Category = CategoryCard
	base.TotalAmount = Money{Cents: 10000}
	base.DueDate = NewDate(2025, 1, 31)
	base.ReferenceMonth = NewMonth(2025, time.January)

	rows, err := BuildInstallments(base, InstallmentPlan{Count: 3, Start: 1}, seqIDs())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	wantDue := []string{"2025-01-31", "2025-02-28", "2025-03-31"}
	wantMonth := []string{"2025-01", "2025-02", "2025-03"}
	wantAmount := []int64{3333, 3333, 3334}
	group := rows[0].InstallmentGroup
	if group == "" {
		t.Fatal("multi-installment plan needs a group")
	}
	for i, r := range rows {
		if r.DueDate.String() != wantDue[i] {
			t.Errorf("row %d due: expected %s, got %s", i, wantDue[i], r.DueDate)
		}
		if r.ReferenceMonth.String() != wantMonth[i] {
			t.Errorf("row %d month: expected %s, got %s", i, wantMonth[i], r.ReferenceMonth)
		}
		if r.TotalAmount.Cents != wantAmount[i] {
			t.Errorf("row %d amount: expected %d, got %d", i, wantAmount[i], r.TotalAmount.Cents)
		}
		if r.InstallmentGroup != group {
			t.Errorf("row %d has group %q, expected %q", i, r.InstallmentGroup, group)
		}
		if want := fmt.Sprintf("Notebook (%d/3)", i+1); r.Description != want {
			t.Errorf("row %d description %q, expected %q", i, r.Description, want)
		}
		if r.ID == "" || r.ID == group {
			t.Errorf("row %d has bad id %q", i, r.ID)
		}
	}
}

func TestBuildInstallmentsFromStart(t *testing.T) {
	base := validInvoice()
	base.TotalAmount = Money{Cents: 120000}
	base.DueDate = NewDate(2025, 5, 10)
	base.ReferenceMonth = NewMonth(2025, time.May)

	rows, err := BuildInstallments(base, InstallmentPlan{Count: 3, Start: 2}, seqIDs())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected rows 2..3, got %d rows", len(rows))
	}
	if rows[0].InstallmentNumber != 2 || rows[1].InstallmentNumber != 3 {
		t.Fatalf("unexpected numbering %d, %d", rows[0].InstallmentNumber, rows[1].InstallmentNumber)
	}
	// The first generated row keeps the base dates.
	if rows[0].DueDate.String() != "2025-05-10" || rows[1].DueDate.String() != "2025-06-10" {
		t.Fatalf("unexpected due dates %s, %s", rows[0].DueDate, rows[1].DueDate)
	}
	for _, r := range rows {
		if r.TotalAmount.Cents != 40000 {
			t.Fatalf("expected 40000, got %d", r.TotalAmount.Cents)
		}
	}
}

func TestBuildInstallmentsSingle(t *testing.T) {
	rows, err := BuildInstallments(validInvoice(), InstallmentPlan{}, seqIDs())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.InstallmentGroup != "" || r.InstallmentCount != 0 {
		t.Fatalf("single invoice must not carry a plan: %+v", r)
	}
	if r.Description != "Aluguel" {
		t.Fatalf("single invoice keeps its description, got %q", r.Description)
	}
}

func TestBuildInstallmentsRejects(t *testing.T) {
	plans := []InstallmentPlan{
		{Count: -1},
		{Count: 3, Start: 4},
		{Count: 3, Start: -2},
		{Count: 1000},
	}
	for _, p := range plans {
		if _, err := BuildInstallments(validInvoice(), p, seqIDs()); !errors.Is(err, ErrInvalidInstallment) {
			t.Errorf("plan %+v: expected ErrInvalidInstallment, got %v", p, err)
		}
	}
	bad := validInvoice()
	bad.TotalAmount = Money{}
	if _, err := BuildInstallments(bad, InstallmentPlan{Count: 2}, seqIDs()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBuildInstallmentsRejectsNonPositiveSplit(t *testing.T) {
	cases := []struct {
		total int64
		plan  InstallmentPlan
	}{
		{10000, InstallmentPlan{Count: 240}},
		{10000, InstallmentPlan{Count: 240, Start: 239}},
		{2, InstallmentPlan{Count: 4}},
		{1, InstallmentPlan{Count: 3}},
		{99, InstallmentPlan{Count: 22}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d", tc.total, tc.plan.Count), func(t *testing.T) {
			base := validInvoice()
			base.TotalAmount = Money{Cents: tc.total}
			rows, err := BuildInstallments(base, tc.plan, seqIDs())
			if !errors.Is(err, ErrInvalidInstallment) {
				t.Fatalf("expected ErrInvalidInstallment, got %v", err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if rows != nil {
				t.Fatalf("expected no rows, got %d", len(rows))
			}
		})
	}
}

func TestBuildInstallmentsDescriptionWithSuffix(t *testing.T) {
	base := validInvoice()
	base.TotalAmount = Money{Cents: 30000}
	base.Description = strings.Repeat("d", 198)

	if _, err := BuildInstallments(base, InstallmentPlan{Count: 3}, seqIDs()); !errors.Is(err, ErrDescriptionTooLong) {
		t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
	}

	// A single invoice carries no suffix.
	if _, err := BuildInstallments(base, InstallmentPlan{}, seqIDs()); err != nil {
		t.Fatalf("single invoice: %v", err)
	}

	base.Description = strings.Repeat("d", 194)
	rows, err := BuildInstallments(base, InstallmentPlan{Count: 3}, seqIDs())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, r := range rows {
		if len(r.Description) != 200 {
			t.Fatalf("expected 200 characters, got %d", len(r.Description))
		}
	}
}
