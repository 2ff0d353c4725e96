package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// DeductionResolver collects what an employee owes for a period. It never
// writes; settling happens when the period is saved and paid.
type DeductionResolver struct {
	deductions payroll.DeductionRepository
	loans      payroll.LoanRepository
}

func NewDeductionResolver(deductions payroll.DeductionRepository, loans payroll.LoanRepository) *DeductionResolver {
	return &DeductionResolver{deductions: deductions, loans: loans}
}

func (r *DeductionResolver) Resolve(ctx context.Context, employeeID int64, start, end time.Time) (payroll.DeductionInputs, error) {
	return r.ResolveReplacing(ctx, employeeID, start, end, 0)
}

// ResolveReplacing is Resolve for a re-run of replacePeriodID: deductions
// that period already claimed count as pending. Loan installments held by
// other unpaid periods are taken off the balance first, so a loan is never
// charged beyond what is left on it.
func (r *DeductionResolver) ResolveReplacing(ctx context.Context, employeeID int64, start, end time.Time, replacePeriodID int64) (payroll.DeductionInputs, error) {
	inputs := payroll.DeductionInputs{
		LoanInstallment: decimal.Zero,
		PenaltyTotal:    decimal.Zero,
	}

	pending, err := r.deductions.ListPendingByEmployee(ctx, employeeID, start, end, replacePeriodID)
	if err != nil {
		return payroll.DeductionInputs{}, fmt.Errorf("failed to load deductions for employee %d: %w", employeeID, err)
	}
	for _, d := range pending {
		if !chargeable(d, replacePeriodID) || !d.Amount.IsPositive() {
			continue
		}
		if d.DateIncurred.Before(start) || d.DateIncurred.After(end) {
			continue
		}
		inputs.PenaltyTotal = inputs.PenaltyTotal.Add(d.Amount)
		inputs.DeductionIDs = append(inputs.DeductionIDs, d.ID)
	}

	loans, err := r.loans.ListActiveByEmployee(ctx, employeeID)
	if err != nil {
		return payroll.DeductionInputs{}, fmt.Errorf("failed to load loans for employee %d: %w", employeeID, err)
	}
	var reserved map[int64]decimal.Decimal
	if len(loans) > 0 {
		reserved, err = r.loans.ReservedByEmployee(ctx, employeeID, replacePeriodID)
		if err != nil {
			return payroll.DeductionInputs{}, fmt.Errorf("failed to load reserved installments for employee %d: %w", employeeID, err)
		}
	}
	for _, l := range loans {
		if l.Status != payroll.LoanStatusActive || !l.MonthlyDeduction.IsPositive() {
			continue
		}
		available := l.Balance.Sub(reserved[l.ID])
		if !available.IsPositive() {
			continue
		}
		installment := decimal.Min(l.MonthlyDeduction, available)
		inputs.LoanInstallment = inputs.LoanInstallment.Add(installment)
		inputs.Installments = append(inputs.Installments, payroll.LoanInstallment{LoanID: l.ID, Amount: installment})
	}

	inputs.PenaltyTotal = round2(inputs.PenaltyTotal)
	inputs.LoanInstallment = round2(inputs.LoanInstallment)
	return inputs, nil
}

func chargeable(d payroll.Deduction, replacePeriodID int64) bool {
	if d.Status == payroll.DeductionStatusPending {
		return true
	}
	return replacePeriodID != 0 &&
		d.Status == payroll.DeductionStatusApplied &&
		d.PayrollPeriodID != nil && *d.PayrollPeriodID == replacePeriodID
}
