package payroll

import (
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
)

// BuildPayslip projects a saved record into labeled payslip sections. Only
// approved or paid periods produce payslips.
func BuildPayslip(record payroll.PayrollRecord, period payroll.PayrollPeriod, issuer string) (payroll.PayslipData, error) {
	if period.Status != payroll.PeriodStatusApproved && period.Status != payroll.PeriodStatusPaid {
		return payroll.PayslipData{}, payroll.ErrPayslipNotAvailable
	}
	if record.PeriodID != period.ID {
		return payroll.PayslipData{}, payroll.ErrRecordNotFound
	}

	return payroll.PayslipData{
		Issuer:       issuer,
		PeriodName:   period.PeriodName,
		PeriodStart:  period.StartDate,
		PeriodEnd:    period.EndDate,
		EmployeeID:   record.EmployeeID,
		EmployeeName: record.EmployeeName,
		Role:         record.Role,
		Currency:     record.Currency,
		Earnings: []payroll.LabeledAmount{
			{Label: "Commission", Amount: record.CommissionAmount},
			{Label: "Bonuses", Amount: record.Bonuses},
		},
		GrossEarnings: record.GrossEarnings,
		Deductions: []payroll.LabeledAmount{
			{Label: "PAYE Tax", Amount: record.PayeTax},
			{Label: "NSSA", Amount: record.NssaEmployee},
			{Label: "Loans", Amount: record.LoanDeductions},
			{Label: "Penalties", Amount: record.PenaltyDeductions},
		},
		TotalDeductions: record.TotalDeductions,
		NetPay:          record.NetPay,
	}, nil
}
