package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PayrollRepository stores periods, their records and the loan installments
// captured on each record.
type PayrollRepository interface {
	// Periods
	CreatePeriod(ctx context.Context, period PayrollPeriod) (PayrollPeriod, error)
	GetPeriodByID(ctx context.Context, id int64) (PayrollPeriod, error)
	GetPeriodByIDForUpdate(ctx context.Context, id int64) (PayrollPeriod, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]PayrollPeriod, error)
	FindOverlappingPeriods(ctx context.Context, start, end time.Time, excludeID int64) ([]PayrollPeriod, error)
	UpdatePeriodRun(ctx context.Context, period PayrollPeriod) error
	// TransitionPeriod moves a period from one status to another and stamps
	// the actor column of the target status. It reports false when the
	// period was not in the from status.
	TransitionPeriod(ctx context.Context, id int64, from, to PeriodStatus, actor string, at time.Time) (bool, error)

	// Records
	CreateRecords(ctx context.Context, records []PayrollRecord) ([]PayrollRecord, error)
	GetRecordByID(ctx context.Context, periodID, recordID int64) (PayrollRecord, error)
	ListRecordsByPeriod(ctx context.Context, periodID int64) ([]PayrollRecord, error)
	DeleteRecordsByPeriod(ctx context.Context, periodID int64) error
	UpdateRecordStatusByPeriod(ctx context.Context, periodID int64, status PeriodStatus) error

	// Loan installments
	CreateInstallments(ctx context.Context, installments []LoanInstallment) error
	ListInstallmentsByPeriod(ctx context.Context, periodID int64) ([]LoanInstallment, error)
}

// TaxBracketRepository reads the active bracket table.
type TaxBracketRepository interface {
	ListActiveByCurrency(ctx context.Context, currency string) ([]TaxBracket, error)
}

// SettingRepository reads key/value system settings.
type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// TripRepository reads income rows.
type TripRepository interface {
	ListByDateRange(ctx context.Context, start, end time.Time) ([]TripRecord, error)
}

// DeductionRepository reads and settles disciplinary deductions.
type DeductionRepository interface {
	// ListPendingByEmployee returns pending deductions dated in [start, end].
	// A non-zero includePeriodID also returns deductions already applied to
	// that period so a re-run can charge them again.
	ListPendingByEmployee(ctx context.Context, employeeID int64, start, end time.Time, includePeriodID int64) ([]Deduction, error)
	// MarkApplied moves pending deductions to applied and returns how many
	// rows actually changed.
	MarkApplied(ctx context.Context, periodID int64, ids []int64) (int64, error)
	ReleaseByPeriod(ctx context.Context, periodID int64) error
}

// LoanRepository reads and repays employee loans.
type LoanRepository interface {
	ListActiveByEmployee(ctx context.Context, employeeID int64) ([]Loan, error)
	// ReservedByEmployee sums, per loan, the installments captured on
	// processing or approved periods other than excludePeriodID. Those
	// amounts are owed but not yet taken off the balance.
	ReservedByEmployee(ctx context.Context, employeeID, excludePeriodID int64) (map[int64]decimal.Decimal, error)
	ApplyInstallment(ctx context.Context, loanID int64, amount decimal.Decimal) error
}

// LedgerSink receives the one aggregate expense of a paid period.
type LedgerSink interface {
	HasEntry(ctx context.Context, idempotencyKey string) (bool, error)
	Post(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
}
