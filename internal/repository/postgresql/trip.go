package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
)

type tripRepository struct {
	db *database.DB
}

func NewTripRepository(db *database.DB) payroll.TripRepository {
	return &tripRepository{db: db}
}

// ListByDateRange reads income rows dated in [start, end].
func (r *tripRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]payroll.TripRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, date, amount, passengers, driver_employee_id, conductor_employee_id,
			   driver_bonus, conductor_bonus
		FROM income
		WHERE date BETWEEN $1 AND $2
		ORDER BY date, id
	`

	rows, err := q.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []payroll.TripRecord
	for rows.Next() {
		var t payroll.TripRecord
		if err := rows.Scan(
			&t.ID, &t.Date, &t.Amount, &t.Passengers, &t.DriverEmployeeID, &t.ConductorEmployeeID,
			&t.DriverBonus, &t.ConductorBonus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}

	return trips, rows.Err()
}
