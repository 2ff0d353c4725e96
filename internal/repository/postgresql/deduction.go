package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/shopspring/decimal"
)

// ========== DEDUCTIONS ==========

type deductionRepository struct {
	db *database.DB
}

func NewDeductionRepository(db *database.DB) payroll.DeductionRepository {
	return &deductionRepository{db: db}
}

func (r *deductionRepository) ListPendingByEmployee(ctx context.Context, employeeID int64, start, end time.Time, includePeriodID int64) ([]payroll.Deduction, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_id, amount, date_incurred, status, COALESCE(reason, ''), payroll_period_id
		FROM employee_deductions
		WHERE employee_id = $1
		  AND date_incurred BETWEEN $2 AND $3
		  AND (status = 'pending' OR ($4::bigint <> 0 AND status = 'applied' AND payroll_period_id = $4::bigint))
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, employeeID, start, end, includePeriodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deductions: %w", err)
	}
	defer rows.Close()

	var deductions []payroll.Deduction
	for rows.Next() {
		var d payroll.Deduction
		if err := rows.Scan(&d.ID, &d.EmployeeID, &d.Amount, &d.DateIncurred, &d.Status, &d.Reason, &d.PayrollPeriodID); err != nil {
			return nil, fmt.Errorf("failed to scan deduction: %w", err)
		}
		deductions = append(deductions, d)
	}

	return deductions, rows.Err()
}

func (r *deductionRepository) MarkApplied(ctx context.Context, periodID int64, ids []int64) (int64, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE employee_deductions
		SET status = 'applied', payroll_period_id = $1
		WHERE id = ANY($2) AND status = 'pending'
	`

	tag, err := q.Exec(ctx, query, periodID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark deductions applied: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *deductionRepository) ReleaseByPeriod(ctx context.Context, periodID int64) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE employee_deductions
		SET status = 'pending', payroll_period_id = NULL
		WHERE payroll_period_id = $1 AND status = 'applied'
	`

	if _, err := q.Exec(ctx, query, periodID); err != nil {
		return fmt.Errorf("failed to release deductions: %w", err)
	}

	return nil
}

// ========== LOANS ==========

type loanRepository struct {
	db *database.DB
}

func NewLoanRepository(db *database.DB) payroll.LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) ListActiveByEmployee(ctx context.Context, employeeID int64) ([]payroll.Loan, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_id, balance, monthly_deduction, status
		FROM employee_loans
		WHERE employee_id = $1 AND status = 'active' AND balance > 0
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active loans: %w", err)
	}
	defer rows.Close()

	var loans []payroll.Loan
	for rows.Next() {
		var l payroll.Loan
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.Balance, &l.MonthlyDeduction, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}

	return loans, rows.Err()
}

func (r *loanRepository) ReservedByEmployee(ctx context.Context, employeeID, excludePeriodID int64) (map[int64]decimal.Decimal, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT i.loan_id, SUM(i.amount)
		FROM payroll_loan_installments i
		JOIN payroll_records pr ON pr.id = i.payroll_record_id
		JOIN payroll_periods pp ON pp.id = pr.payroll_period_id
		WHERE pr.employee_id = $1
			AND pp.status IN ('processing', 'approved')
			AND pp.id <> $2
		GROUP BY i.loan_id
	`

	rows, err := q.Query(ctx, query, employeeID, excludePeriodID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum reserved installments: %w", err)
	}
	defer rows.Close()

	reserved := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var (
			loanID int64
			amount decimal.Decimal
		)
		if err := rows.Scan(&loanID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan reserved installment: %w", err)
		}
		reserved[loanID] = amount
	}

	return reserved, rows.Err()
}

// ApplyInstallment reduces the balance, never below zero, and closes the
// loan once it reaches zero.
func (r *loanRepository) ApplyInstallment(ctx context.Context, loanID int64, amount decimal.Decimal) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE employee_loans
		SET balance = GREATEST(balance - $2, 0),
			status = CASE WHEN balance - $2 <= 0 THEN 'closed' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, loanID, amount)
	if err != nil {
		return fmt.Errorf("failed to apply installment to loan %d: %w", loanID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("loan %d not found", loanID)
	}

	return nil
}
