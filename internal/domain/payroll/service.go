package payroll

import "context"

type PayrollService interface {
	Preview(ctx context.Context, req GeneratePayrollRequest) (PayrollPreviewResponse, error)
	GenerateAndSave(ctx context.Context, req SavePayrollRequest) (PeriodDetailResponse, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]PeriodResponse, error)
	GetPeriod(ctx context.Context, id int64) (PeriodDetailResponse, error)
	Approve(ctx context.Context, id int64) (PeriodResponse, error)
	MarkPaid(ctx context.Context, id int64) (PeriodResponse, error)
	GetPayslip(ctx context.Context, periodID, recordID int64) (PayslipResponse, error)
}
