package core

import (
	"fmt"
)

// InstallmentPlan describes how a new invoice is split. Count 1 (or 0) is a
// plain invoice; Start is the 1-based installment the plan begins at.
type InstallmentPlan struct {
	Count int `json:"installments"`
	Start int `json:"start_installment"`
}

func (p InstallmentPlan) normalized() InstallmentPlan {
	if p.Count == 0 {
		p.Count = 1
	}
	if p.Start == 0 {
		p.Start = 1
	}
	return p
}

func (p InstallmentPlan) Validate() error {
	p = p.normalized()
	if p.Count < 1 || p.Count > 360 {
		return fmt.Errorf("%w: count %d", ErrInvalidInstallment, p.Count)
	}
	if p.Start < 1 || p.Start > p.Count {
		return fmt.Errorf("%w: start %d of %d", ErrInvalidInstallment, p.Start, p.Count)
	}
	return nil
}

// InstallmentAmounts splits total into n amounts: every amount is
// total/n rounded half-up to the cent, and the last absorbs the remainder
// so the amounts always sum to total.
func InstallmentAmounts(total Money, n int) []Money {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []Money{total}
	}
	c := int64(n)
	per := (2*total.Cents + c) / (2 * c)
	out := make([]Money, n)
	for i := 0; i < n-1; i++ {
		out[i] = Money{Cents: per}
	}
	out[n-1] = Money{Cents: total.Cents - per*(c-1)}
	return out
}

// BuildInstallments expands base into the rows of plan, from installment
// Start to Count. base.TotalAmount is the total of the whole plan, and
// base.DueDate/ReferenceMonth belong to the first generated row. Each later
// row is shifted forward one month. newID is called once per row, and once
// more for the group id when the plan has more than one installment.
//
// A plan whose split leaves any installment at zero or below is rejected,
// and so is a row whose suffixed description no longer validates.
func BuildInstallments(base Invoice, plan InstallmentPlan, newID func() string) ([]Invoice, error) {
	plan = plan.normalized()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	amounts := InstallmentAmounts(base.TotalAmount, plan.Count)
	for i, a := range amounts {
		if a.Cents <= 0 {
			return nil, fmt.Errorf("%w: %s over %d installments leaves installment %d at %s",
				ErrInvalidInstallment, base.TotalAmount, plan.Count, i+1, a)
		}
	}

	group := ""
	if plan.Count > 1 {
		group = newID()
	}

	rows := make([]Invoice, 0, plan.Count-plan.Start+1)
	for i := plan.Start; i <= plan.Count; i++ {
		offset := i - plan.Start
		row := base
		row.ID = newID()
		row.TotalAmount = amounts[i-1]
		row.DueDate = base.DueDate.AddMonths(offset)
		row.ReferenceMonth = base.ReferenceMonth.AddMonths(offset)
		if plan.Count > 1 {
			row.Description = fmt.Sprintf("%s (%d/%d)", base.Description, i, plan.Count)
			row.InstallmentGroup = group
			row.InstallmentNumber = i
			row.InstallmentCount = plan.Count
		}
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("installment %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
