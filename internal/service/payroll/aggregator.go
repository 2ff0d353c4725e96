package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/employee"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type TripAggregator struct {
	trips     payroll.TripRepository
	employees employee.EmployeeRepository
}

func NewTripAggregator(trips payroll.TripRepository, employees employee.EmployeeRepository) *TripAggregator {
	return &TripAggregator{trips: trips, employees: employees}
}

type summaryKey struct {
	employeeID int64
	role       payroll.Role
}

type summaryAccumulator struct {
	summary payroll.TripSummary
	days    map[string]struct{}
}

// Aggregate summarizes every trip dated in [start, end] per employee and
// role. A trip counts once for its driver and once for its conductor.
func (a *TripAggregator) Aggregate(ctx context.Context, start, end time.Time) ([]payroll.TripSummary, error) {
	if start.After(end) {
		return nil, validator.ValidationErrors{{Field: "end_date", Message: "must not be before start_date"}}
	}

	trips, err := a.trips.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load trips: %w", err)
	}

	acc := make(map[summaryKey]*summaryAccumulator)
	add := func(employeeID *int64, role payroll.Role, trip payroll.TripRecord, bonus decimal.Decimal) {
		if employeeID == nil {
			return
		}
		key := summaryKey{employeeID: *employeeID, role: role}
		entry, ok := acc[key]
		if !ok {
			entry = &summaryAccumulator{
				summary: payroll.TripSummary{
					EmployeeID:   *employeeID,
					Role:         role,
					TotalRevenue: decimal.Zero,
					TotalBonuses: decimal.Zero,
				},
				days: make(map[string]struct{}),
			}
			acc[key] = entry
		}
		entry.summary.TotalTrips++
		entry.summary.TotalRevenue = entry.summary.TotalRevenue.Add(trip.Amount)
		entry.summary.TotalPassengers += trip.Passengers
		entry.summary.TotalBonuses = entry.summary.TotalBonuses.Add(bonus)
		entry.days[trip.Date.Format("2006-01-02")] = struct{}{}
	}

	for _, trip := range trips {
		if trip.Date.Before(start) || trip.Date.After(end) {
			continue
		}
		add(trip.DriverEmployeeID, payroll.RoleDriver, trip, trip.DriverBonus)
		add(trip.ConductorEmployeeID, payroll.RoleConductor, trip, trip.ConductorBonus)
	}

	if len(acc) == 0 {
		return []payroll.TripSummary{}, nil
	}

	ids := make([]int64, 0, len(acc))
	seen := make(map[int64]struct{}, len(acc))
	for key := range acc {
		if _, ok := seen[key.employeeID]; !ok {
			seen[key.employeeID] = struct{}{}
			ids = append(ids, key.employeeID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	employees, err := a.employees.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load employees: %w", err)
	}
	names := make(map[int64]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.DisplayName()
	}

	summaries := make([]payroll.TripSummary, 0, len(acc))
	for _, entry := range acc {
		s := entry.summary
		s.DaysWorked = len(entry.days)
		s.EmployeeName = names[s.EmployeeID]
		if s.EmployeeName == "" {
			s.EmployeeName = fmt.Sprintf("Employee #%d", s.EmployeeID)
		}
		summaries = append(summaries, s)
	}
	sortSummaries(summaries)

	return summaries, nil
}

func sortSummaries(summaries []payroll.TripSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].EmployeeID != summaries[j].EmployeeID {
			return summaries[i].EmployeeID < summaries[j].EmployeeID
		}
		return summaries[i].Role.Rank() < summaries[j].Role.Rank()
	})
}
