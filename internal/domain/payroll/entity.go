package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role enum
type Role string

const (
	RoleDriver    Role = "Driver"
	RoleConductor Role = "Conductor"
)

// Rank orders roles inside an employee's lines. Driver comes first.
func (r Role) Rank() int {
	switch r {
	case RoleDriver:
		return 0
	case RoleConductor:
		return 1
	default:
		return 2
	}
}

// PeriodType enum
type PeriodType string

const (
	PeriodTypeWeekly  PeriodType = "weekly"
	PeriodTypeMonthly PeriodType = "monthly"
	PeriodTypeCustom  PeriodType = "custom"
)

// PeriodStatus enum
type PeriodStatus string

const (
	PeriodStatusDraft      PeriodStatus = "draft"
	PeriodStatusProcessing PeriodStatus = "processing"
	PeriodStatusApproved   PeriodStatus = "approved"
	PeriodStatusPaid       PeriodStatus = "paid"
)

// DeductionStatus enum
type DeductionStatus string

const (
	DeductionStatusPending DeductionStatus = "pending"
	DeductionStatusApplied DeductionStatus = "applied"
	DeductionStatusWaived  DeductionStatus = "waived"
)

// LoanStatus enum
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusClosed LoanStatus = "closed"
)

// TaxBracket - one row of the progressive tax table for a currency.
// MaxAmount nil means the bracket is unbounded above.
type TaxBracket struct {
	ID          int64
	Currency    string
	MinAmount   decimal.Decimal
	MaxAmount   *decimal.Decimal
	Rate        decimal.Decimal
	FixedAmount decimal.Decimal
	IsActive    bool
}

// Contains reports whether gross falls in (MinAmount, MaxAmount].
func (b TaxBracket) Contains(gross decimal.Decimal) bool {
	if !gross.GreaterThan(b.MinAmount) {
		return false
	}
	return b.MaxAmount == nil || gross.LessThanOrEqual(*b.MaxAmount)
}

// TripRecord - one income row. A trip pays both crew members on it.
type TripRecord struct {
	ID                  int64
	Date                time.Time
	Amount              decimal.Decimal
	Passengers          int
	DriverEmployeeID    *int64
	ConductorEmployeeID *int64
	DriverBonus         decimal.Decimal
	ConductorBonus      decimal.Decimal
}

// TripSummary - aggregated work of one employee in one role over a date range
type TripSummary struct {
	EmployeeID      int64
	EmployeeName    string
	Role            Role
	TotalTrips      int
	DaysWorked      int
	TotalRevenue    decimal.Decimal
	TotalPassengers int
	TotalBonuses    decimal.Decimal
}

// Deduction - disciplinary penalty charged against pay
type Deduction struct {
	ID              int64
	EmployeeID      int64
	Amount          decimal.Decimal
	DateIncurred    time.Time
	Status          DeductionStatus
	Reason          string
	PayrollPeriodID *int64
}

// Loan - outstanding employee loan repaid by installments
type Loan struct {
	ID               int64
	EmployeeID       int64
	Balance          decimal.Decimal
	MonthlyDeduction decimal.Decimal
	Status           LoanStatus
}

// LoanInstallment - amount taken from one loan on one payroll record
type LoanInstallment struct {
	RecordID int64
	LoanID   int64
	Amount   decimal.Decimal
}

// DeductionInputs - what the resolver found for one employee
type DeductionInputs struct {
	LoanInstallment decimal.Decimal
	PenaltyTotal    decimal.Decimal
	DeductionIDs    []int64
	Installments    []LoanInstallment
}

// PayrollPeriod - one payroll run
type PayrollPeriod struct {
	ID                      int64
	PeriodName              string
	PeriodType              PeriodType
	StartDate               time.Time
	EndDate                 time.Time
	DriverCommissionRate    decimal.Decimal
	ConductorCommissionRate decimal.Decimal
	Currency                string
	Status                  PeriodStatus
	CreatedBy               string
	CreatedAt               time.Time
	ProcessedBy             *string
	ProcessedAt             *time.Time
	ApprovedBy              *string
	ApprovedAt              *time.Time
	PaidBy                  *string
	PaidAt                  *time.Time
	UpdatedAt               time.Time
}

// Overlaps reports whether the period shares at least one day with [start, end].
func (p PayrollPeriod) Overlaps(start, end time.Time) bool {
	return !p.StartDate.After(end) && !p.EndDate.Before(start)
}

// CommissionRate returns the period rate for a role.
func (p PayrollPeriod) CommissionRate(role Role) decimal.Decimal {
	if role == RoleConductor {
		return p.ConductorCommissionRate
	}
	return p.DriverCommissionRate
}

// PayrollRecord - one computed pay line for an employee in a role
type PayrollRecord struct {
	ID                int64
	PeriodID          int64
	EmployeeID        int64
	EmployeeName      string
	Role              Role
	TotalTrips        int
	DaysWorked        int
	TotalRevenue      decimal.Decimal
	TotalPassengers   int
	CommissionRate    decimal.Decimal
	CommissionAmount  decimal.Decimal
	Bonuses           decimal.Decimal
	GrossEarnings     decimal.Decimal
	PayeTax           decimal.Decimal
	NssaEmployee      decimal.Decimal
	NssaEmployer      decimal.Decimal
	LoanDeductions    decimal.Decimal
	PenaltyDeductions decimal.Decimal
	TotalDeductions   decimal.Decimal
	NetPay            decimal.Decimal
	Shortfall         decimal.Decimal
	Currency          string
	Status            PeriodStatus
	Warnings          []string
	CreatedAt         time.Time

	// Captured at preview time, persisted on save
	DeductionIDs []int64
	Installments []LoanInstallment
}

// LedgerEntry - aggregate expense posted when a period is paid
type LedgerEntry struct {
	ID             int64
	IdempotencyKey string
	PeriodID       int64
	EntryDate      time.Time
	Category       string
	Description    string
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	Status         string
	CreatedBy      string
	CreatedAt      time.Time
}

// LabeledAmount - one payslip line
type LabeledAmount struct {
	Label  string
	Amount decimal.Decimal
}

// PayslipData - immutable projection of a record for rendering
type PayslipData struct {
	Issuer          string
	PeriodName      string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	EmployeeID      int64
	EmployeeName    string
	Role            Role
	Currency        string
	Earnings        []LabeledAmount
	GrossEarnings   decimal.Decimal
	Deductions      []LabeledAmount
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal
}

// PeriodFilter - list filter for periods
type PeriodFilter struct {
	Status *PeriodStatus
}

// Warning codes attached to records
const (
	WarningNetPayFloored       = "net_pay_floored"
	WarningTaxTableMissing     = "tax_table_missing"
	WarningContributionMissing = "contribution_rate_missing"
)
