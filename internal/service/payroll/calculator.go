package payroll

import (
	"errors"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// Calculator builds pay lines against one tax table and contribution rate.
// It holds no state between lines.
type Calculator struct {
	table        TaxTable
	contribution Contribution
}

func NewCalculator(table TaxTable, contribution Contribution) *Calculator {
	return &Calculator{table: table, contribution: contribution}
}

// BuildLine computes one record for summary. Deductions are applied as given;
// callers decide which line of an employee carries them.
func (c *Calculator) BuildLine(summary payroll.TripSummary, rate decimal.Decimal, deductions payroll.DeductionInputs, currency string) payroll.PayrollRecord {
	commission := round2(summary.TotalRevenue.Mul(rate).Div(hundred))
	bonuses := round2(summary.TotalBonuses)
	gross := commission.Add(bonuses)

	var warnings []string
	paye, err := c.table.Tax(gross)
	warnings = appendConfigWarning(warnings, err)
	nssa, err := c.contribution.Amount(gross)
	warnings = appendConfigWarning(warnings, err)

	loans := round2(deductions.LoanInstallment)
	penalties := round2(deductions.PenaltyTotal)
	total := paye.Add(nssa).Add(loans).Add(penalties)

	net := gross.Sub(total)
	shortfall := decimal.Zero
	if net.IsNegative() {
		shortfall = net.Neg()
		net = decimal.Zero
		warnings = append(warnings, payroll.WarningNetPayFloored)
	}

	return payroll.PayrollRecord{
		EmployeeID:        summary.EmployeeID,
		EmployeeName:      summary.EmployeeName,
		Role:              summary.Role,
		TotalTrips:        summary.TotalTrips,
		DaysWorked:        summary.DaysWorked,
		TotalRevenue:      round2(summary.TotalRevenue),
		TotalPassengers:   summary.TotalPassengers,
		CommissionRate:    rate,
		CommissionAmount:  commission,
		Bonuses:           bonuses,
		GrossEarnings:     gross,
		PayeTax:           paye,
		NssaEmployee:      nssa,
		NssaEmployer:      nssa,
		LoanDeductions:    loans,
		PenaltyDeductions: penalties,
		TotalDeductions:   total,
		NetPay:            net,
		Shortfall:         shortfall,
		Currency:          currency,
		Status:            payroll.PeriodStatusDraft,
		Warnings:          warnings,
		DeductionIDs:      deductions.DeductionIDs,
		Installments:      deductions.Installments,
	}
}

func appendConfigWarning(warnings []string, err error) []string {
	var cfgErr *payroll.ConfigurationError
	if errors.As(err, &cfgErr) {
		return append(warnings, cfgErr.Code)
	}
	return warnings
}
