package postgresql

import (
	"context"
	"fmt"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
)

type taxBracketRepository struct {
	db *database.DB
}

func NewTaxBracketRepository(db *database.DB) payroll.TaxBracketRepository {
	return &taxBracketRepository{db: db}
}

func (r *taxBracketRepository) ListActiveByCurrency(ctx context.Context, currency string) ([]payroll.TaxBracket, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, currency, min_amount, max_amount, rate, fixed_amount, is_active
		FROM tax_brackets
		WHERE currency = $1 AND is_active = TRUE
		ORDER BY min_amount
	`

	rows, err := q.Query(ctx, query, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax brackets: %w", err)
	}
	defer rows.Close()

	var brackets []payroll.TaxBracket
	for rows.Next() {
		var b payroll.TaxBracket
		if err := rows.Scan(&b.ID, &b.Currency, &b.MinAmount, &b.MaxAmount, &b.Rate, &b.FixedAmount, &b.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan tax bracket: %w", err)
		}
		brackets = append(brackets, b)
	}

	return brackets, rows.Err()
}
