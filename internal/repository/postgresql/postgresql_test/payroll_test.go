package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/audit"
	"github.com/busfleet/payroll-backend-go/internal/domain/employee"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/repository/postgresql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Helper untuk membuat employee untuk testing
func createTestEmployee(t *testing.T, setup *TestDatabaseSetup, number, name string) int64 {
	t.Helper()
	var id int64
	err := setup.DB.QueryRow(context.Background(), `
		INSERT INTO employees (employee_number, full_name, position)
		VALUES ($1, $2, 'Driver')
		RETURNING id
	`, number, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestPeriod(t *testing.T, repo payroll.PayrollRepository, start, end string) payroll.PayrollPeriod {
	t.Helper()
	actor := "clerk"
	now := time.Now()
	p, err := repo.CreatePeriod(context.Background(), payroll.PayrollPeriod{
		PeriodName:              "Custom: " + start + " to " + end,
		PeriodType:              payroll.PeriodTypeCustom,
		StartDate:               date(start),
		EndDate:                 date(end),
		DriverCommissionRate:    dec("8"),
		ConductorCommissionRate: dec("5"),
		Currency:                "USD",
		Status:                  payroll.PeriodStatusProcessing,
		CreatedBy:               actor,
		ProcessedBy:             &actor,
		ProcessedAt:             &now,
	})
	require.NoError(t, err)
	return p
}

func TestEmployeeRepository_GetByIDs(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewEmployeeRepository(setup.DB)
	ctx := context.Background()

	a := createTestEmployee(t, setup, "EMP001", "Tendai Moyo")
	b := createTestEmployee(t, setup, "EMP002", "Rudo Dube")

	got, err := repo.GetByIDs(ctx, []int64{b, a, 9999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Tendai Moyo", got[0].FullName)
	assert.Equal(t, employee.EmploymentStatusActive, got[0].Status)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, employee.ErrEmployeeNotFound)
}

func TestTripRepository_ListByDateRange(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewTripRepository(setup.DB)
	ctx := context.Background()

	driver := createTestEmployee(t, setup, "EMP001", "Tendai Moyo")
	_, err := setup.DB.Exec(ctx, `
		INSERT INTO income (bus_number, route, date, amount, passengers, driver_employee_id, conductor_employee_id, driver_bonus)
		VALUES ('PC-01', 'Harare - Bulawayo', '2026-01-01', 120.50, 30, $1, NULL, 5),
		       ('PC-01', 'Bulawayo - Harare', '2026-01-31', 99.00, 25, $1, NULL, 0),
		       ('PC-02', 'Harare - Mutare', '2026-02-01', 80.00, 20, $1, NULL, 0)
	`, driver)
	require.NoError(t, err)

	trips, err := repo.ListByDateRange(ctx, date("2026-01-01"), date("2026-01-31"))
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "120.5", trips[0].Amount.String())
	require.NotNil(t, trips[0].DriverEmployeeID)
	assert.Equal(t, driver, *trips[0].DriverEmployeeID)
	assert.Nil(t, trips[0].ConductorEmployeeID)
	assert.True(t, dec("5").Equal(trips[0].DriverBonus))
}

func TestTaxBracketAndSettingRepositories(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()

	_, err := setup.DB.Exec(ctx, `
		INSERT INTO tax_brackets (currency, min_amount, max_amount, rate, fixed_amount, is_active)
		VALUES ('USD', 800, NULL, 20, 40, TRUE),
		       ('USD', 0, 300, 0, 0, TRUE),
		       ('USD', 300, 800, 8, 0, TRUE),
		       ('USD', 0, 100, 50, 0, FALSE);
		INSERT INTO system_settings (key, value) VALUES ('nssa_employee_rate', '4.5');
	`)
	require.NoError(t, err)

	brackets, err := postgresql.NewTaxBracketRepository(setup.DB).ListActiveByCurrency(ctx, "USD")
	require.NoError(t, err)
	require.Len(t, brackets, 3)
	assert.True(t, brackets[0].MinAmount.IsZero())
	assert.Nil(t, brackets[2].MaxAmount)

	settings := postgresql.NewSettingRepository(setup.DB)
	v, err := settings.GetSetting(ctx, "nssa_employee_rate")
	require.NoError(t, err)
	assert.Equal(t, "4.5", v)

	_, err = settings.GetSetting(ctx, "company_name")
	assert.ErrorIs(t, err, payroll.ErrSettingNotFound)
}

func TestPayrollRepository_Periods(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewPayrollRepository(setup.DB)
	ctx := context.Background()

	jan := createTestPeriod(t, repo, "2026-01-01", "2026-01-31")
	assert.NotZero(t, jan.ID)
	assert.Equal(t, payroll.PeriodStatusProcessing, jan.Status)

	overlaps, err := repo.FindOverlappingPeriods(ctx, date("2026-01-31"), date("2026-02-06"), 0)
	require.NoError(t, err)
	require.Len(t, overlaps, 1)

	overlaps, err = repo.FindOverlappingPeriods(ctx, date("2026-01-31"), date("2026-02-06"), jan.ID)
	require.NoError(t, err)
	assert.Empty(t, overlaps)

	ok, err := repo.TransitionPeriod(ctx, jan.ID, payroll.PeriodStatusProcessing, payroll.PeriodStatusApproved, "manager", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionPeriod(ctx, jan.ID, payroll.PeriodStatusProcessing, payroll.PeriodStatusApproved, "manager", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetPeriodByID(ctx, jan.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "manager", *got.ApprovedBy)
	assert.Nil(t, got.PaidBy)

	approved := payroll.PeriodStatusApproved
	list, err := repo.ListPeriods(ctx, payroll.PeriodFilter{Status: &approved})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetPeriodByID(ctx, 424242)
	assert.ErrorIs(t, err, payroll.ErrPeriodNotFound)
}

func TestPayrollRepository_RecordsAndInstallments(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewPayrollRepository(setup.DB)
	ctx := context.Background()

	emp := createTestEmployee(t, setup, "EMP001", "Tendai Moyo")
	var loanID int64
	err := setup.DB.QueryRow(ctx, `
		INSERT INTO employee_loans (employee_id, principal, balance, monthly_deduction)
		VALUES ($1, 100, 50, 100) RETURNING id
	`, emp).Scan(&loanID)
	require.NoError(t, err)

	period := createTestPeriod(t, repo, "2026-01-01", "2026-01-31")
	records, err := repo.CreateRecords(ctx, []payroll.PayrollRecord{
		{
			PeriodID: period.ID, EmployeeID: emp, EmployeeName: "Tendai Moyo", Role: payroll.RoleDriver,
			TotalRevenue: dec("12500"), CommissionRate: dec("8"), CommissionAmount: dec("1000"),
			Bonuses: decimal.Zero, GrossEarnings: dec("1000"), PayeTax: dec("80"), NssaEmployee: dec("45"),
			NssaEmployer: dec("45"), LoanDeductions: dec("50"), PenaltyDeductions: decimal.Zero,
			TotalDeductions: dec("175"), NetPay: dec("825"), Shortfall: decimal.Zero,
			Currency: "USD", Status: payroll.PeriodStatusProcessing,
		},
		{
			PeriodID: period.ID, EmployeeID: emp, EmployeeName: "Tendai Moyo", Role: payroll.RoleConductor,
			TotalRevenue: dec("10"), CommissionRate: dec("5"), CommissionAmount: dec("0.5"),
			Bonuses: decimal.Zero, GrossEarnings: dec("0.5"), PayeTax: decimal.Zero, NssaEmployee: decimal.Zero,
			NssaEmployer: decimal.Zero, LoanDeductions: decimal.Zero, PenaltyDeductions: decimal.Zero,
			TotalDeductions: decimal.Zero, NetPay: dec("0.5"), Shortfall: decimal.Zero,
			Currency: "USD", Status: payroll.PeriodStatusProcessing, Warnings: []string{payroll.WarningContributionMissing},
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Less(t, records[0].ID, records[1].ID)

	require.NoError(t, repo.CreateInstallments(ctx, []payroll.LoanInstallment{
		{RecordID: records[0].ID, LoanID: loanID, Amount: dec("50")},
	}))

	stored, err := repo.ListRecordsByPeriod(ctx, period.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Empty(t, stored[0].Warnings)
	assert.Equal(t, []string{payroll.WarningContributionMissing}, stored[1].Warnings)
	assert.Equal(t, "825.00", stored[0].NetPay.StringFixed(2))

	_, err = repo.GetRecordByID(ctx, period.ID+1, records[0].ID)
	assert.ErrorIs(t, err, payroll.ErrRecordNotFound)

	installments, err := repo.ListInstallmentsByPeriod(ctx, period.ID)
	require.NoError(t, err)
	require.Len(t, installments, 1)

	loans := postgresql.NewLoanRepository(setup.DB)
	reserved, err := loans.ReservedByEmployee(ctx, emp, 0)
	require.NoError(t, err)
	assert.Equal(t, "50.00", reserved[loanID].StringFixed(2))
	reserved, err = loans.ReservedByEmployee(ctx, emp, period.ID)
	require.NoError(t, err)
	assert.Empty(t, reserved, "the excluded period holds nothing")

	ok, err := repo.TransitionPeriod(ctx, period.ID, payroll.PeriodStatusProcessing, payroll.PeriodStatusApproved, "manager", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	reserved, err = loans.ReservedByEmployee(ctx, emp, 0)
	require.NoError(t, err)
	assert.Len(t, reserved, 1)

	require.NoError(t, loans.ApplyInstallment(ctx, loanID, installments[0].Amount))
	active, err := loans.ListActiveByEmployee(ctx, emp)
	require.NoError(t, err)
	assert.Empty(t, active, "a loan repaid to zero is closed")

	require.NoError(t, repo.DeleteRecordsByPeriod(ctx, period.ID))
	installments, err = repo.ListInstallmentsByPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Empty(t, installments)
}

func TestDeductionRepository_MarkAppliedAndRelease(t *testing.T) {
	setup := NewTestDatabase(t)
	deductions := postgresql.NewDeductionRepository(setup.DB)
	periods := postgresql.NewPayrollRepository(setup.DB)
	ctx := context.Background()

	emp := createTestEmployee(t, setup, "EMP001", "Tendai Moyo")
	_, err := setup.DB.Exec(ctx, `
		INSERT INTO employee_deductions (employee_id, amount, reason, date_incurred)
		VALUES ($1, 15, 'late return', '2026-01-04'), ($1, 5, 'uniform', '2026-02-04')
	`, emp)
	require.NoError(t, err)

	pending, err := deductions.ListPendingByEmployee(ctx, emp, date("2026-01-01"), date("2026-01-31"), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	first := createTestPeriod(t, periods, "2026-01-01", "2026-01-31")
	n, err := deductions.MarkApplied(ctx, first.ID, []int64{pending[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = deductions.MarkApplied(ctx, first.ID, []int64{pending[0].ID})
	require.NoError(t, err)
	assert.Zero(t, n, "an applied deduction cannot be applied again")

	pending, err = deductions.ListPendingByEmployee(ctx, emp, date("2026-01-01"), date("2026-01-31"), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = deductions.ListPendingByEmployee(ctx, emp, date("2026-01-01"), date("2026-01-31"), first.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, deductions.ReleaseByPeriod(ctx, first.ID))
	pending, err = deductions.ListPendingByEmployee(ctx, emp, date("2026-01-01"), date("2026-01-31"), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExpenseLedger_PostOnce(t *testing.T) {
	setup := NewTestDatabase(t)
	ledger := postgresql.NewExpenseLedger(setup.DB)
	period := createTestPeriod(t, postgresql.NewPayrollRepository(setup.DB), "2026-01-01", "2026-01-31")
	ctx := context.Background()

	entry := payroll.LedgerEntry{
		IdempotencyKey: "1",
		PeriodID:       period.ID,
		EntryDate:      date("2026-02-01"),
		Category:       "Salaries & Wages",
		Description:    "Payroll - January 2026",
		Amount:         dec("825.50"),
		Currency:       "USD",
		PaymentMethod:  "Bank Transfer",
		Status:         "Paid",
		CreatedBy:      "finance",
	}

	exists, err := ledger.HasEntry(ctx, "1")
	require.NoError(t, err)
	assert.False(t, exists)

	posted, err := ledger.Post(ctx, entry)
	require.NoError(t, err)
	assert.NotZero(t, posted.ID)

	_, err = ledger.Post(ctx, entry)
	assert.ErrorIs(t, err, payroll.ErrLedgerEntryExists)

	exists, err = ledger.HasEntry(ctx, "1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransactor_RollsBackAndJoins(t *testing.T) {
	setup := NewTestDatabase(t)
	tx := postgresql.NewTransactor(setup.DB)
	repo := postgresql.NewPayrollRepository(setup.DB)
	auditRepo := postgresql.NewAuditRepository(setup.DB)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		createTestPeriod(t, repo, "2026-01-01", "2026-01-31")
		return tx.WithinTransaction(txCtx, func(inner context.Context) error {
			p := createTestPeriod(t, repo, "2026-03-01", "2026-03-31")
			require.NoError(t, auditRepo.Record(inner, audit.NewEntry("clerk", audit.ActionCreate, audit.EntityPayrollPeriod, p.ID, nil)))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	periods, err := repo.ListPeriods(ctx, payroll.PeriodFilter{})
	require.NoError(t, err)
	assert.Len(t, periods, 2, "periods created outside the transaction context are committed")

	err = tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		p, err := repo.CreatePeriod(txCtx, payroll.PayrollPeriod{
			PeriodName: "April 2026", PeriodType: payroll.PeriodTypeMonthly,
			StartDate: date("2026-04-01"), EndDate: date("2026-04-30"),
			DriverCommissionRate: dec("8"), ConductorCommissionRate: dec("5"),
			Currency: "USD", Status: payroll.PeriodStatusProcessing, CreatedBy: "clerk",
		})
		require.NoError(t, err)
		require.NoError(t, auditRepo.Record(txCtx, audit.NewEntry("clerk", audit.ActionCreate, audit.EntityPayrollPeriod, p.ID, map[string]any{"record_count": 0})))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	periods, err = repo.ListPeriods(ctx, payroll.PeriodFilter{})
	require.NoError(t, err)
	assert.Len(t, periods, 2, "the April period was rolled back")
}
