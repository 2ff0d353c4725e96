package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/config"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
)

const dateLayout = "2006-01-02"

// ResolvePeriod turns a request into an unsaved draft period with its date
// window, display name, rates and currency filled in.
func ResolvePeriod(req payroll.GeneratePayrollRequest, defaults config.PayrollConfig) (payroll.PayrollPeriod, error) {
	if err := req.Validate(); err != nil {
		return payroll.PayrollPeriod{}, err
	}

	period := payroll.PayrollPeriod{
		PeriodType:              payroll.PeriodType(req.PeriodType),
		Status:                  payroll.PeriodStatusDraft,
		DriverCommissionRate:    defaults.DefaultDriverCommissionRate,
		ConductorCommissionRate: defaults.DefaultConductorCommissionRate,
		Currency:                defaults.DefaultCurrency,
	}
	if req.DriverCommissionRate != nil {
		period.DriverCommissionRate = *req.DriverCommissionRate
	}
	if req.ConductorCommissionRate != nil {
		period.ConductorCommissionRate = *req.ConductorCommissionRate
	}
	if c := strings.TrimSpace(req.Currency); c != "" {
		period.Currency = c
	}

	switch period.PeriodType {
	case payroll.PeriodTypeMonthly:
		period.StartDate = time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		period.EndDate = period.StartDate.AddDate(0, 1, -1)
		period.PeriodName = period.StartDate.Format("January 2006")
	case payroll.PeriodTypeWeekly:
		end, _ := time.Parse(dateLayout, req.EndDate)
		period.EndDate = end
		period.StartDate = end.AddDate(0, 0, -6)
		period.PeriodName = "Week ending " + end.Format(dateLayout)
	case payroll.PeriodTypeCustom:
		start, _ := time.Parse(dateLayout, req.StartDate)
		end, _ := time.Parse(dateLayout, req.EndDate)
		period.StartDate = start
		period.EndDate = end
		period.PeriodName = fmt.Sprintf("Custom: %s to %s", start.Format(dateLayout), end.Format(dateLayout))
	}

	return period, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
