package payroll

import (
	"time"

	"github.com/busfleet/payroll-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== REQUEST DTOs ==========

type GeneratePayrollRequest struct {
	PeriodType              string           `json:"period_type"`
	StartDate               string           `json:"start_date,omitempty"`
	EndDate                 string           `json:"end_date,omitempty"`
	Month                   int              `json:"month,omitempty"`
	Year                    int              `json:"year,omitempty"`
	DriverCommissionRate    *decimal.Decimal `json:"driver_commission_rate,omitempty"`
	ConductorCommissionRate *decimal.Decimal `json:"conductor_commission_rate,omitempty"`
	Currency                string           `json:"currency,omitempty"`
}

var hundred = decimal.NewFromInt(100)

func (r *GeneratePayrollRequest) Validate() error {
	var errs validator.ValidationErrors

	switch PeriodType(r.PeriodType) {
	case PeriodTypeMonthly:
		if r.Month < 1 || r.Month > 12 {
			errs = append(errs, validator.ValidationError{Field: "month", Message: "must be between 1 and 12"})
		}
		if r.Year < 2000 || r.Year > 9999 {
			errs = append(errs, validator.ValidationError{Field: "year", Message: "must be a four digit year"})
		}
	case PeriodTypeWeekly:
		if _, ok := validator.IsValidDate(r.EndDate); !ok {
			errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must be a date in YYYY-MM-DD format"})
		}
	case PeriodTypeCustom:
		start, startOK := validator.IsValidDate(r.StartDate)
		end, endOK := validator.IsValidDate(r.EndDate)
		if !startOK {
			errs = append(errs, validator.ValidationError{Field: "start_date", Message: "must be a date in YYYY-MM-DD format"})
		}
		if !endOK {
			errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must be a date in YYYY-MM-DD format"})
		}
		if startOK && endOK && start.After(end) {
			errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must not be before start_date"})
		}
	default:
		errs = append(errs, validator.ValidationError{Field: "period_type", Message: "must be 'weekly', 'monthly' or 'custom'"})
	}

	if r.DriverCommissionRate != nil && !isPercent(*r.DriverCommissionRate) {
		errs = append(errs, validator.ValidationError{Field: "driver_commission_rate", Message: "must be between 0 and 100"})
	}
	if r.ConductorCommissionRate != nil && !isPercent(*r.ConductorCommissionRate) {
		errs = append(errs, validator.ValidationError{Field: "conductor_commission_rate", Message: "must be between 0 and 100"})
	}
	if r.Currency != "" && !validator.IsValidCurrency(r.Currency) {
		errs = append(errs, validator.ValidationError{Field: "currency", Message: "must be a currency code such as USD or ZiG"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

type SavePayrollRequest struct {
	GeneratePayrollRequest
	ReplacePeriodID *int64 `json:"replace_period_id,omitempty"`
}

func (r *SavePayrollRequest) Validate() error {
	var errs validator.ValidationErrors
	if err := r.GeneratePayrollRequest.Validate(); err != nil {
		errs = append(errs, err.(validator.ValidationErrors)...)
	}
	if r.ReplacePeriodID != nil && *r.ReplacePeriodID <= 0 {
		errs = append(errs, validator.ValidationError{Field: "replace_period_id", Message: "must be a positive id"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ParsePeriodStatus accepts only the four lifecycle states.
func ParsePeriodStatus(s string) (PeriodStatus, bool) {
	switch st := PeriodStatus(s); st {
	case PeriodStatusDraft, PeriodStatusProcessing, PeriodStatusApproved, PeriodStatusPaid:
		return st, true
	}
	return "", false
}

// ========== RESPONSE DTOs ==========

type PeriodResponse struct {
	ID                      int64           `json:"id,omitempty"`
	PeriodName              string          `json:"period_name"`
	PeriodType              string          `json:"period_type"`
	StartDate               string          `json:"start_date"`
	EndDate                 string          `json:"end_date"`
	DriverCommissionRate    decimal.Decimal `json:"driver_commission_rate"`
	ConductorCommissionRate decimal.Decimal `json:"conductor_commission_rate"`
	Currency                string          `json:"currency"`
	Status                  string          `json:"status"`
	CreatedBy               string          `json:"created_by,omitempty"`
	CreatedAt               *time.Time      `json:"created_at,omitempty"`
	ProcessedBy             *string         `json:"processed_by,omitempty"`
	ProcessedAt             *time.Time      `json:"processed_at,omitempty"`
	ApprovedBy              *string         `json:"approved_by,omitempty"`
	ApprovedAt              *time.Time      `json:"approved_at,omitempty"`
	PaidBy                  *string         `json:"paid_by,omitempty"`
	PaidAt                  *time.Time      `json:"paid_at,omitempty"`
}

type RecordResponse struct {
	ID                int64           `json:"id,omitempty"`
	PeriodID          int64           `json:"period_id,omitempty"`
	EmployeeID        int64           `json:"employee_id"`
	EmployeeName      string          `json:"employee_name"`
	Role              string          `json:"role"`
	TotalTrips        int             `json:"total_trips"`
	DaysWorked        int             `json:"days_worked"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalPassengers   int             `json:"total_passengers"`
	CommissionRate    decimal.Decimal `json:"commission_rate"`
	CommissionAmount  decimal.Decimal `json:"commission_amount"`
	Bonuses           decimal.Decimal `json:"bonuses"`
	GrossEarnings     decimal.Decimal `json:"gross_earnings"`
	PayeTax           decimal.Decimal `json:"paye_tax"`
	NssaEmployee      decimal.Decimal `json:"nssa_employee"`
	NssaEmployer      decimal.Decimal `json:"nssa_employer"`
	LoanDeductions    decimal.Decimal `json:"loan_deductions"`
	PenaltyDeductions decimal.Decimal `json:"penalty_deductions"`
	TotalDeductions   decimal.Decimal `json:"total_deductions"`
	NetPay            decimal.Decimal `json:"net_pay"`
	Shortfall         decimal.Decimal `json:"shortfall"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	Warnings          []string        `json:"warnings,omitempty"`
}

type TotalsResponse struct {
	EmployeeCount   int             `json:"employee_count"`
	RecordCount     int             `json:"record_count"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalPaye       decimal.Decimal `json:"total_paye"`
	TotalNssa       decimal.Decimal `json:"total_nssa"`
	TotalLoans      decimal.Decimal `json:"total_loans"`
	TotalPenalties  decimal.Decimal `json:"total_penalties"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TotalNet        decimal.Decimal `json:"total_net"`
	TotalShortfall  decimal.Decimal `json:"total_shortfall"`
}

type PayrollPreviewResponse struct {
	Period             PeriodResponse   `json:"period"`
	Records            []RecordResponse `json:"records"`
	Totals             TotalsResponse   `json:"totals"`
	Warnings           []string         `json:"warnings,omitempty"`
	OverlappingPeriods []PeriodResponse `json:"overlapping_periods,omitempty"`
}

type PeriodDetailResponse struct {
	Period  PeriodResponse       `json:"period"`
	Records []RecordResponse     `json:"records"`
	Totals  TotalsResponse       `json:"totals"`
	History []AuditEntryResponse `json:"history,omitempty"`
}

type AuditEntryResponse struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type LabeledAmountResponse struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type PayslipResponse struct {
	Issuer          string                  `json:"issuer"`
	PeriodName      string                  `json:"period_name"`
	PeriodStart     string                  `json:"period_start"`
	PeriodEnd       string                  `json:"period_end"`
	EmployeeID      int64                   `json:"employee_id"`
	EmployeeName    string                  `json:"employee_name"`
	Role            string                  `json:"role"`
	Currency        string                  `json:"currency"`
	Earnings        []LabeledAmountResponse `json:"earnings"`
	GrossEarnings   decimal.Decimal         `json:"gross_earnings"`
	Deductions      []LabeledAmountResponse `json:"deductions"`
	TotalDeductions decimal.Decimal         `json:"total_deductions"`
	NetPay          decimal.Decimal         `json:"net_pay"`
}
