package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type payrollRepository struct {
	db *database.DB
}

func NewPayrollRepository(db *database.DB) payroll.PayrollRepository {
	return &payrollRepository{db: db}
}

const periodColumns = `
	id, period_name, period_type, start_date, end_date,
	driver_commission_rate, conductor_commission_rate, currency, status,
	created_by, created_at, processed_by, processed_at,
	approved_by, approved_at, paid_by, paid_at, updated_at
`

func scanPeriod(row pgx.Row) (payroll.PayrollPeriod, error) {
	var p payroll.PayrollPeriod
	err := row.Scan(
		&p.ID, &p.PeriodName, &p.PeriodType, &p.StartDate, &p.EndDate,
		&p.DriverCommissionRate, &p.ConductorCommissionRate, &p.Currency, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.ProcessedBy, &p.ProcessedAt,
		&p.ApprovedBy, &p.ApprovedAt, &p.PaidBy, &p.PaidAt, &p.UpdatedAt,
	)
	return p, err
}

// ========== PERIODS ==========

func (r *payrollRepository) CreatePeriod(ctx context.Context, period payroll.PayrollPeriod) (payroll.PayrollPeriod, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_periods (
			period_name, period_type, start_date, end_date,
			driver_commission_rate, conductor_commission_rate, currency, status,
			created_by, processed_by, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING` + periodColumns

	p, err := scanPeriod(q.QueryRow(ctx, query,
		period.PeriodName, period.PeriodType, period.StartDate, period.EndDate,
		period.DriverCommissionRate, period.ConductorCommissionRate, period.Currency, period.Status,
		period.CreatedBy, period.ProcessedBy, period.ProcessedAt,
	))
	if err != nil {
		return payroll.PayrollPeriod{}, fmt.Errorf("failed to create payroll period: %w", err)
	}

	return p, nil
}

func (r *payrollRepository) GetPeriodByID(ctx context.Context, id int64) (payroll.PayrollPeriod, error) {
	return r.getPeriod(ctx, id, "")
}

func (r *payrollRepository) GetPeriodByIDForUpdate(ctx context.Context, id int64) (payroll.PayrollPeriod, error) {
	return r.getPeriod(ctx, id, "FOR UPDATE")
}

func (r *payrollRepository) getPeriod(ctx context.Context, id int64, lock string) (payroll.PayrollPeriod, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + periodColumns + `FROM payroll_periods WHERE id = $1 ` + lock

	p, err := scanPeriod(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return payroll.PayrollPeriod{}, payroll.ErrPeriodNotFound
		}
		return payroll.PayrollPeriod{}, fmt.Errorf("failed to get payroll period: %w", err)
	}

	return p, nil
}

func (r *payrollRepository) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.PayrollPeriod, error) {
	q := GetQuerier(ctx, r.db)

	var (
		whereClauses []string
		args         []interface{}
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT` + periodColumns + `FROM payroll_periods`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY start_date DESC, id DESC"

	return r.queryPeriods(ctx, q, query, args...)
}

func (r *payrollRepository) FindOverlappingPeriods(ctx context.Context, start, end time.Time, excludeID int64) ([]payroll.PayrollPeriod, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + periodColumns + `
		FROM payroll_periods
		WHERE start_date <= $2 AND end_date >= $1 AND id <> $3
		ORDER BY start_date
	`

	return r.queryPeriods(ctx, q, query, start, end, excludeID)
}

func (r *payrollRepository) queryPeriods(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]payroll.PayrollPeriod, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll periods: %w", err)
	}
	defer rows.Close()

	var periods []payroll.PayrollPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll period: %w", err)
		}
		periods = append(periods, p)
	}

	return periods, rows.Err()
}

func (r *payrollRepository) UpdatePeriodRun(ctx context.Context, period payroll.PayrollPeriod) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_periods
		SET period_name = $2, driver_commission_rate = $3, conductor_commission_rate = $4,
			currency = $5, processed_by = $6, processed_at = $7, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query,
		period.ID, period.PeriodName, period.DriverCommissionRate, period.ConductorCommissionRate,
		period.Currency, period.ProcessedBy, period.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payroll period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payroll.ErrPeriodNotFound
	}

	return nil
}

func (r *payrollRepository) TransitionPeriod(ctx context.Context, id int64, from, to payroll.PeriodStatus, actor string, at time.Time) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_periods
		SET status = $3::varchar,
			processed_by = CASE WHEN $3::varchar = 'processing' THEN $4::varchar ELSE processed_by END,
			processed_at = CASE WHEN $3::varchar = 'processing' THEN $5::timestamptz ELSE processed_at END,
			approved_by = CASE WHEN $3::varchar = 'approved' THEN $4::varchar ELSE approved_by END,
			approved_at = CASE WHEN $3::varchar = 'approved' THEN $5::timestamptz ELSE approved_at END,
			paid_by = CASE WHEN $3::varchar = 'paid' THEN $4::varchar ELSE paid_by END,
			paid_at = CASE WHEN $3::varchar = 'paid' THEN $5::timestamptz ELSE paid_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := q.Exec(ctx, query, id, from, to, actor, at)
	if err != nil {
		return false, fmt.Errorf("failed to update payroll period status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ========== RECORDS ==========

const recordColumns = `
	id, payroll_period_id, employee_id, employee_name, role, total_trips, days_worked,
	total_revenue, total_passengers, commission_rate, commission_amount, bonuses,
	gross_earnings, paye_tax, nssa_employee, nssa_employer, loan_deductions,
	penalty_deductions, total_deductions, net_pay, shortfall, currency, status,
	warnings, created_at
`

func scanRecord(row pgx.Row) (payroll.PayrollRecord, error) {
	var rec payroll.PayrollRecord
	err := row.Scan(
		&rec.ID, &rec.PeriodID, &rec.EmployeeID, &rec.EmployeeName, &rec.Role, &rec.TotalTrips, &rec.DaysWorked,
		&rec.TotalRevenue, &rec.TotalPassengers, &rec.CommissionRate, &rec.CommissionAmount, &rec.Bonuses,
		&rec.GrossEarnings, &rec.PayeTax, &rec.NssaEmployee, &rec.NssaEmployer, &rec.LoanDeductions,
		&rec.PenaltyDeductions, &rec.TotalDeductions, &rec.NetPay, &rec.Shortfall, &rec.Currency, &rec.Status,
		&rec.Warnings, &rec.CreatedAt,
	)
	return rec, err
}

// CreateRecords inserts records in order and returns them with ids assigned.
func (r *payrollRepository) CreateRecords(ctx context.Context, records []payroll.PayrollRecord) ([]payroll.PayrollRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_records (
			payroll_period_id, employee_id, employee_name, role, total_trips, days_worked,
			total_revenue, total_passengers, commission_rate, commission_amount, bonuses,
			gross_earnings, paye_tax, nssa_employee, nssa_employer, loan_deductions,
			penalty_deductions, total_deductions, net_pay, shortfall, currency, status, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id, created_at
	`

	saved := make([]payroll.PayrollRecord, len(records))
	for i, rec := range records {
		warnings := rec.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		err := q.QueryRow(ctx, query,
			rec.PeriodID, rec.EmployeeID, rec.EmployeeName, rec.Role, rec.TotalTrips, rec.DaysWorked,
			rec.TotalRevenue, rec.TotalPassengers, rec.CommissionRate, rec.CommissionAmount, rec.Bonuses,
			rec.GrossEarnings, rec.PayeTax, rec.NssaEmployee, rec.NssaEmployer, rec.LoanDeductions,
			rec.PenaltyDeductions, rec.TotalDeductions, rec.NetPay, rec.Shortfall, rec.Currency, rec.Status, warnings,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "uk_payroll_record_line") {
				return nil, fmt.Errorf("duplicate payroll line for employee %d as %s: %w", rec.EmployeeID, rec.Role, err)
			}
			return nil, fmt.Errorf("failed to create payroll record for employee %d: %w", rec.EmployeeID, err)
		}
		saved[i] = rec
	}

	return saved, nil
}

func (r *payrollRepository) GetRecordByID(ctx context.Context, periodID, recordID int64) (payroll.PayrollRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + recordColumns + `FROM payroll_records WHERE id = $1 AND payroll_period_id = $2`

	rec, err := scanRecord(q.QueryRow(ctx, query, recordID, periodID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return payroll.PayrollRecord{}, payroll.ErrRecordNotFound
		}
		return payroll.PayrollRecord{}, fmt.Errorf("failed to get payroll record: %w", err)
	}

	return rec, nil
}

func (r *payrollRepository) ListRecordsByPeriod(ctx context.Context, periodID int64) ([]payroll.PayrollRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + recordColumns + `FROM payroll_records WHERE payroll_period_id = $1 ORDER BY id`

	rows, err := q.Query(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll records: %w", err)
	}
	defer rows.Close()

	var records []payroll.PayrollRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *payrollRepository) DeleteRecordsByPeriod(ctx context.Context, periodID int64) error {
	q := GetQuerier(ctx, r.db)

	// installments cascade with their records
	_, err := q.Exec(ctx, `DELETE FROM payroll_records WHERE payroll_period_id = $1`, periodID)
	if err != nil {
		return fmt.Errorf("failed to delete payroll records: %w", err)
	}

	return nil
}

func (r *payrollRepository) UpdateRecordStatusByPeriod(ctx context.Context, periodID int64, status payroll.PeriodStatus) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `UPDATE payroll_records SET status = $2 WHERE payroll_period_id = $1`, periodID, status)
	if err != nil {
		return fmt.Errorf("failed to update payroll record status: %w", err)
	}

	return nil
}

// ========== LOAN INSTALLMENTS ==========

func (r *payrollRepository) CreateInstallments(ctx context.Context, installments []payroll.LoanInstallment) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_loan_installments (payroll_record_id, loan_id, amount)
		VALUES ($1, $2, $3)
	`

	for _, inst := range installments {
		if _, err := q.Exec(ctx, query, inst.RecordID, inst.LoanID, inst.Amount); err != nil {
			return fmt.Errorf("failed to create loan installment for loan %d: %w", inst.LoanID, err)
		}
	}

	return nil
}

func (r *payrollRepository) ListInstallmentsByPeriod(ctx context.Context, periodID int64) ([]payroll.LoanInstallment, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT pli.payroll_record_id, pli.loan_id, pli.amount
		FROM payroll_loan_installments pli
		JOIN payroll_records pr ON pli.payroll_record_id = pr.id
		WHERE pr.payroll_period_id = $1
		ORDER BY pli.payroll_record_id, pli.loan_id
	`

	rows, err := q.Query(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan installments: %w", err)
	}
	defer rows.Close()

	var installments []payroll.LoanInstallment
	for rows.Next() {
		var inst payroll.LoanInstallment
		if err := rows.Scan(&inst.RecordID, &inst.LoanID, &inst.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan loan installment: %w", err)
		}
		installments = append(installments, inst)
	}

	return installments, rows.Err()
}
