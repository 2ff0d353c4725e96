package postgresql

import (
	"context"
	"fmt"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// expenseLedger posts payroll expenses into the general expenses table.
type expenseLedger struct {
	db *database.DB
}

func NewExpenseLedger(db *database.DB) payroll.LedgerSink {
	return &expenseLedger{db: db}
}

func (r *expenseLedger) HasEntry(ctx context.Context, idempotencyKey string) (bool, error) {
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM expenses WHERE idempotency_key = $1)`, idempotencyKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check expense entry: %w", err)
	}

	return exists, nil
}

// Post inserts the entry once per idempotency key. A second post for the
// same key returns payroll.ErrLedgerEntryExists.
func (r *expenseLedger) Post(ctx context.Context, entry payroll.LedgerEntry) (payroll.LedgerEntry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO expenses (
			idempotency_key, payroll_period_id, date, category, description,
			amount, currency, payment_method, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		entry.IdempotencyKey, entry.PeriodID, entry.EntryDate, entry.Category, entry.Description,
		entry.Amount, entry.Currency, entry.PaymentMethod, entry.Status, entry.CreatedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return payroll.LedgerEntry{}, payroll.ErrLedgerEntryExists
		}
		return payroll.LedgerEntry{}, fmt.Errorf("failed to post expense: %w", err)
	}

	return entry, nil
}
