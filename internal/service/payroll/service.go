package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/config"
	"github.com/busfleet/payroll-backend-go/internal/domain/audit"
	"github.com/busfleet/payroll-backend-go/internal/domain/employee"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/go-chi/jwtauth/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type PayrollServiceImpl struct {
	repo       payroll.PayrollRepository
	settings   payroll.SettingRepository
	audit      audit.AuditRepository
	tax        *TaxCalculator
	aggregator *TripAggregator
	resolver   *DeductionResolver
	periods    *PeriodManager
	cfg        config.PayrollConfig
	logger     *slog.Logger
}

func NewPayrollService(
	tx database.Transactor,
	payrollRepo payroll.PayrollRepository,
	bracketRepo payroll.TaxBracketRepository,
	settingRepo payroll.SettingRepository,
	tripRepo payroll.TripRepository,
	deductionRepo payroll.DeductionRepository,
	loanRepo payroll.LoanRepository,
	ledger payroll.LedgerSink,
	employeeRepo employee.EmployeeRepository,
	auditRepo audit.AuditRepository,
	cfg config.PayrollConfig,
	logger *slog.Logger,
) payroll.PayrollService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayrollServiceImpl{
		repo:       payrollRepo,
		settings:   settingRepo,
		audit:      auditRepo,
		tax:        NewTaxCalculator(bracketRepo, settingRepo, cfg.ContributionSettingKey),
		aggregator: NewTripAggregator(tripRepo, employeeRepo),
		resolver:   NewDeductionResolver(deductionRepo, loanRepo),
		periods:    NewPeriodManager(tx, payrollRepo, deductionRepo, loanRepo, ledger, auditRepo, cfg, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Helper to get the acting user from JWT context
func getActorFromContext(ctx context.Context) (string, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payroll.ErrActorRequired, err)
	}

	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	if email, ok := claims["email"].(string); ok && email != "" {
		return email, nil
	}
	return "", payroll.ErrActorRequired
}

// ========== PREVIEW & SAVE ==========

func (s *PayrollServiceImpl) Preview(ctx context.Context, req payroll.GeneratePayrollRequest) (payroll.PayrollPreviewResponse, error) {
	period, err := ResolvePeriod(req, s.cfg)
	if err != nil {
		return payroll.PayrollPreviewResponse{}, err
	}

	records, warnings, err := s.buildLines(ctx, period, 0)
	if err != nil {
		return payroll.PayrollPreviewResponse{}, err
	}

	overlaps, err := s.repo.FindOverlappingPeriods(ctx, period.StartDate, period.EndDate, 0)
	if err != nil {
		return payroll.PayrollPreviewResponse{}, err
	}

	resp := payroll.PayrollPreviewResponse{
		Period:   mapToPeriodResponse(period),
		Records:  mapToRecordResponses(records),
		Totals:   computeTotals(records),
		Warnings: warnings,
	}
	for _, p := range overlaps {
		resp.OverlappingPeriods = append(resp.OverlappingPeriods, mapToPeriodResponse(p))
	}
	return resp, nil
}

func (s *PayrollServiceImpl) GenerateAndSave(ctx context.Context, req payroll.SavePayrollRequest) (payroll.PeriodDetailResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PeriodDetailResponse{}, err
	}
	actor, err := getActorFromContext(ctx)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}

	period, err := ResolvePeriod(req.GeneratePayrollRequest, s.cfg)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}

	var replaceID int64
	if req.ReplacePeriodID != nil {
		replaceID = *req.ReplacePeriodID
	}
	// Amounts are recomputed server-side.
	lines, _, err := s.buildLines(ctx, period, replaceID)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}

	saved, records, err := s.periods.CreateAndSave(ctx, period, lines, actor, req.ReplacePeriodID)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}

	return payroll.PeriodDetailResponse{
		Period:  mapToPeriodResponse(saved),
		Records: mapToRecordResponses(records),
		Totals:  computeTotals(records),
	}, nil
}

const noTripsMessage = "no trips found for this period"

// buildLines aggregates trips, resolves deductions concurrently and computes
// one line per employee and role. Loans and penalties land on an employee's
// first line only.
func (s *PayrollServiceImpl) buildLines(ctx context.Context, period payroll.PayrollPeriod, replaceID int64) ([]payroll.PayrollRecord, []string, error) {
	summaries, err := s.aggregator.Aggregate(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return nil, nil, err
	}

	table, err := s.tax.LoadTable(ctx, period.Currency)
	if err != nil {
		return nil, nil, err
	}
	contribution, err := s.tax.LoadContribution(ctx)
	if err != nil {
		return nil, nil, err
	}

	var ids []int64
	index := make(map[int64]int)
	for _, sm := range summaries {
		if _, ok := index[sm.EmployeeID]; !ok {
			index[sm.EmployeeID] = len(ids)
			ids = append(ids, sm.EmployeeID)
		}
	}

	resolved := make([]payroll.DeductionInputs, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.ResolveConcurrency))
	for i, id := range ids {
		g.Go(func() error {
			in, err := s.resolver.ResolveReplacing(gctx, id, period.StartDate, period.EndDate, replaceID)
			if err != nil {
				return err
			}
			resolved[i] = in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	calc := NewCalculator(table, contribution)
	charged := make(map[int64]bool, len(ids))
	records := make([]payroll.PayrollRecord, 0, len(summaries))
	floored := 0
	for _, sm := range summaries {
		deductions := payroll.DeductionInputs{LoanInstallment: decimal.Zero, PenaltyTotal: decimal.Zero}
		if !charged[sm.EmployeeID] {
			deductions = resolved[index[sm.EmployeeID]]
			charged[sm.EmployeeID] = true
		}
		rec := calc.BuildLine(sm, period.CommissionRate(sm.Role), deductions, period.Currency)
		if rec.Shortfall.IsPositive() {
			floored++
		}
		records = append(records, rec)
	}

	var warnings []string
	if len(summaries) == 0 {
		warnings = append(warnings, noTripsMessage)
	}
	if len(table.Brackets) == 0 {
		warnings = append(warnings, fmt.Sprintf("no tax table configured for currency %s; PAYE computed as zero", period.Currency))
	}
	if !contribution.Configured {
		warnings = append(warnings, fmt.Sprintf("setting %s is not configured; NSSA computed as zero", s.cfg.ContributionSettingKey))
	}
	if floored > 0 {
		warnings = append(warnings, fmt.Sprintf("net pay floored at zero for %d line(s)", floored))
	}
	for _, w := range warnings {
		s.logger.Warn("Payroll preview warning", slog.String("period_name", period.PeriodName), slog.String("warning", w))
	}

	return records, warnings, nil
}

// ========== PERIODS ==========

func (s *PayrollServiceImpl) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.PeriodResponse, error) {
	periods, err := s.repo.ListPeriods(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]payroll.PeriodResponse, 0, len(periods))
	for _, p := range periods {
		resp = append(resp, mapToPeriodResponse(p))
	}
	return resp, nil
}

func (s *PayrollServiceImpl) GetPeriod(ctx context.Context, id int64) (payroll.PeriodDetailResponse, error) {
	period, err := s.repo.GetPeriodByID(ctx, id)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}
	records, err := s.repo.ListRecordsByPeriod(ctx, id)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}
	entries, err := s.audit.ListByEntity(ctx, audit.EntityPayrollPeriod, id)
	if err != nil {
		return payroll.PeriodDetailResponse{}, err
	}

	resp := payroll.PeriodDetailResponse{
		Period:  mapToPeriodResponse(period),
		Records: mapToRecordResponses(records),
		Totals:  computeTotals(records),
	}
	for _, e := range entries {
		resp.History = append(resp.History, payroll.AuditEntryResponse{
			ID:        e.ID.String(),
			Actor:     e.Actor,
			Action:    string(e.Action),
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp, nil
}

func (s *PayrollServiceImpl) Approve(ctx context.Context, id int64) (payroll.PeriodResponse, error) {
	actor, err := getActorFromContext(ctx)
	if err != nil {
		return payroll.PeriodResponse{}, err
	}

	period, err := s.periods.Approve(ctx, id, actor)
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(period), nil
}

func (s *PayrollServiceImpl) MarkPaid(ctx context.Context, id int64) (payroll.PeriodResponse, error) {
	actor, err := getActorFromContext(ctx)
	if err != nil {
		return payroll.PeriodResponse{}, err
	}

	period, err := s.periods.MarkPaid(ctx, id, actor)
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(period), nil
}

// ========== PAYSLIP ==========

func (s *PayrollServiceImpl) GetPayslip(ctx context.Context, periodID, recordID int64) (payroll.PayslipResponse, error) {
	period, err := s.repo.GetPeriodByID(ctx, periodID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	record, err := s.repo.GetRecordByID(ctx, periodID, recordID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	issuer, err := s.settings.GetSetting(ctx, s.cfg.IssuerSettingKey)
	if err != nil {
		if !errors.Is(err, payroll.ErrSettingNotFound) {
			return payroll.PayslipResponse{}, err
		}
		issuer = s.cfg.DefaultIssuer
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = s.cfg.DefaultIssuer
	}

	slip, err := BuildPayslip(record, period, issuer)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	return mapToPayslipResponse(slip), nil
}

// ========== MAPPERS ==========

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func mapToPeriodResponse(p payroll.PayrollPeriod) payroll.PeriodResponse {
	resp := payroll.PeriodResponse{
		ID:                      p.ID,
		PeriodName:              p.PeriodName,
		PeriodType:              string(p.PeriodType),
		StartDate:               formatDate(p.StartDate),
		EndDate:                 formatDate(p.EndDate),
		DriverCommissionRate:    p.DriverCommissionRate,
		ConductorCommissionRate: p.ConductorCommissionRate,
		Currency:                p.Currency,
		Status:                  string(p.Status),
		CreatedBy:               p.CreatedBy,
		ProcessedBy:             p.ProcessedBy,
		ProcessedAt:             p.ProcessedAt,
		ApprovedBy:              p.ApprovedBy,
		ApprovedAt:              p.ApprovedAt,
		PaidBy:                  p.PaidBy,
		PaidAt:                  p.PaidAt,
	}
	if !p.CreatedAt.IsZero() {
		createdAt := p.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}

func mapToRecordResponses(records []payroll.PayrollRecord) []payroll.RecordResponse {
	resp := make([]payroll.RecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, payroll.RecordResponse{
			ID:                r.ID,
			PeriodID:          r.PeriodID,
			EmployeeID:        r.EmployeeID,
			EmployeeName:      r.EmployeeName,
			Role:              string(r.Role),
			TotalTrips:        r.TotalTrips,
			DaysWorked:        r.DaysWorked,
			TotalRevenue:      r.TotalRevenue,
			TotalPassengers:   r.TotalPassengers,
			CommissionRate:    r.CommissionRate,
			CommissionAmount:  r.CommissionAmount,
			Bonuses:           r.Bonuses,
			GrossEarnings:     r.GrossEarnings,
			PayeTax:           r.PayeTax,
			NssaEmployee:      r.NssaEmployee,
			NssaEmployer:      r.NssaEmployer,
			LoanDeductions:    r.LoanDeductions,
			PenaltyDeductions: r.PenaltyDeductions,
			TotalDeductions:   r.TotalDeductions,
			NetPay:            r.NetPay,
			Shortfall:         r.Shortfall,
			Currency:          r.Currency,
			Status:            string(r.Status),
			Warnings:          r.Warnings,
		})
	}
	return resp
}

func computeTotals(records []payroll.PayrollRecord) payroll.TotalsResponse {
	totals := payroll.TotalsResponse{
		RecordCount:     len(records),
		TotalRevenue:    decimal.Zero,
		TotalGross:      decimal.Zero,
		TotalPaye:       decimal.Zero,
		TotalNssa:       decimal.Zero,
		TotalLoans:      decimal.Zero,
		TotalPenalties:  decimal.Zero,
		TotalDeductions: decimal.Zero,
		TotalNet:        decimal.Zero,
		TotalShortfall:  decimal.Zero,
	}
	employees := make(map[int64]struct{})
	for _, r := range records {
		employees[r.EmployeeID] = struct{}{}
		totals.TotalRevenue = totals.TotalRevenue.Add(r.TotalRevenue)
		totals.TotalGross = totals.TotalGross.Add(r.GrossEarnings)
		totals.TotalPaye = totals.TotalPaye.Add(r.PayeTax)
		totals.TotalNssa = totals.TotalNssa.Add(r.NssaEmployee)
		totals.TotalLoans = totals.TotalLoans.Add(r.LoanDeductions)
		totals.TotalPenalties = totals.TotalPenalties.Add(r.PenaltyDeductions)
		totals.TotalDeductions = totals.TotalDeductions.Add(r.TotalDeductions)
		totals.TotalNet = totals.TotalNet.Add(r.NetPay)
		totals.TotalShortfall = totals.TotalShortfall.Add(r.Shortfall)
	}
	totals.EmployeeCount = len(employees)
	return totals
}

func mapToPayslipResponse(p payroll.PayslipData) payroll.PayslipResponse {
	resp := payroll.PayslipResponse{
		Issuer:          p.Issuer,
		PeriodName:      p.PeriodName,
		PeriodStart:     formatDate(p.PeriodStart),
		PeriodEnd:       formatDate(p.PeriodEnd),
		EmployeeID:      p.EmployeeID,
		EmployeeName:    p.EmployeeName,
		Role:            string(p.Role),
		Currency:        p.Currency,
		GrossEarnings:   p.GrossEarnings,
		TotalDeductions: p.TotalDeductions,
		NetPay:          p.NetPay,
	}
	for _, e := range p.Earnings {
		resp.Earnings = append(resp.Earnings, payroll.LabeledAmountResponse{Label: e.Label, Amount: e.Amount})
	}
	for _, d := range p.Deductions {
		resp.Deductions = append(resp.Deductions, payroll.LabeledAmountResponse{Label: d.Label, Amount: d.Amount})
	}
	return resp
}
