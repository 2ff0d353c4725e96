package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/config"
	"github.com/busfleet/payroll-backend-go/internal/domain/audit"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/busfleet/payroll-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// PeriodManager owns the period lifecycle:
// draft -> processing -> approved -> paid.
type PeriodManager struct {
	tx         database.Transactor
	repo       payroll.PayrollRepository
	deductions payroll.DeductionRepository
	loans      payroll.LoanRepository
	ledger     payroll.LedgerSink
	audit      audit.AuditRepository
	cfg        config.PayrollConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewPeriodManager(
	tx database.Transactor,
	repo payroll.PayrollRepository,
	deductions payroll.DeductionRepository,
	loans payroll.LoanRepository,
	ledger payroll.LedgerSink,
	auditRepo audit.AuditRepository,
	cfg config.PayrollConfig,
	logger *slog.Logger,
) *PeriodManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodManager{
		tx:         tx,
		repo:       repo,
		deductions: deductions,
		loans:      loans,
		ledger:     ledger,
		audit:      auditRepo,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateAndSave persists a previewed period with all of its lines in one
// transaction and leaves it in processing. With replaceID set, the lines of
// that processing period are replaced instead of creating a new period.
func (m *PeriodManager) CreateAndSave(ctx context.Context, period payroll.PayrollPeriod, lines []payroll.PayrollRecord, actor string, replaceID *int64) (payroll.PayrollPeriod, []payroll.PayrollRecord, error) {
	if period.ID != 0 || period.Status != payroll.PeriodStatusDraft {
		return payroll.PayrollPeriod{}, nil, &payroll.StateConflictError{PeriodID: period.ID, Current: period.Status, Target: payroll.PeriodStatusProcessing}
	}
	if err := validateRun(period, lines); err != nil {
		return payroll.PayrollPeriod{}, nil, err
	}
	if actor == "" {
		return payroll.PayrollPeriod{}, nil, payroll.ErrActorRequired
	}

	var (
		saved        payroll.PayrollPeriod
		savedRecords []payroll.PayrollRecord
	)
	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		now := m.now()
		excludeID := int64(0)
		action := audit.ActionCreate

		if replaceID != nil {
			existing, err := m.repo.GetPeriodByIDForUpdate(txCtx, *replaceID)
			if err != nil {
				return err
			}
			if existing.Status != payroll.PeriodStatusProcessing {
				return &payroll.StateConflictError{PeriodID: existing.ID, Current: existing.Status, Target: payroll.PeriodStatusProcessing}
			}
			if !sameDay(existing.StartDate, period.StartDate) || !sameDay(existing.EndDate, period.EndDate) {
				return validator.ValidationErrors{{Field: "replace_period_id", Message: "must cover the same date range"}}
			}
			if err := m.deductions.ReleaseByPeriod(txCtx, existing.ID); err != nil {
				return err
			}
			if err := m.repo.DeleteRecordsByPeriod(txCtx, existing.ID); err != nil {
				return err
			}
			excludeID = existing.ID
			action = audit.ActionReplace
		}

		overlaps, err := m.repo.FindOverlappingPeriods(txCtx, period.StartDate, period.EndDate, excludeID)
		if err != nil {
			return err
		}
		if len(overlaps) > 0 {
			return fmt.Errorf("%w: %s", payroll.ErrPeriodOverlap, overlaps[0].PeriodName)
		}

		period.Status = payroll.PeriodStatusProcessing
		period.ProcessedBy = &actor
		period.ProcessedAt = &now
		if replaceID != nil {
			period.ID = *replaceID
			if err := m.repo.UpdatePeriodRun(txCtx, period); err != nil {
				return err
			}
			saved, err = m.repo.GetPeriodByID(txCtx, period.ID)
		} else {
			period.CreatedBy = actor
			saved, err = m.repo.CreatePeriod(txCtx, period)
		}
		if err != nil {
			return err
		}

		records := make([]payroll.PayrollRecord, len(lines))
		for i, line := range lines {
			line.ID = 0
			line.PeriodID = saved.ID
			line.Status = payroll.PeriodStatusProcessing
			line.Currency = saved.Currency
			records[i] = line
		}
		savedRecords, err = m.repo.CreateRecords(txCtx, records)
		if err != nil {
			return err
		}

		var installments []payroll.LoanInstallment
		for i, rec := range savedRecords {
			for _, inst := range lines[i].Installments {
				inst.RecordID = rec.ID
				installments = append(installments, inst)
			}
		}
		if len(installments) > 0 {
			if err := m.repo.CreateInstallments(txCtx, installments); err != nil {
				return err
			}
		}

		deductionIDs := collectDeductionIDs(lines)
		if len(deductionIDs) > 0 {
			applied, err := m.deductions.MarkApplied(txCtx, saved.ID, deductionIDs)
			if err != nil {
				return err
			}
			if applied != int64(len(deductionIDs)) {
				return payroll.ErrDeductionAlreadyApplied
			}
		}

		return m.audit.Record(txCtx, audit.NewEntry(actor, action, audit.EntityPayrollPeriod, saved.ID, map[string]any{
			"period_name":  saved.PeriodName,
			"record_count": len(savedRecords),
			"total_net":    sumNet(savedRecords).StringFixed(2),
		}))
	})
	if err != nil {
		if isCallerError(err) {
			return payroll.PayrollPeriod{}, nil, err
		}
		return payroll.PayrollPeriod{}, nil, &payroll.PersistenceError{
			Op:          "save payroll period",
			EmployeeIDs: employeeIDs(lines),
			Err:         err,
		}
	}

	m.logger.Info("Payroll period saved",
		slog.Int64("period_id", saved.ID),
		slog.String("period_name", saved.PeriodName),
		slog.Int("records", len(savedRecords)),
		slog.String("actor", actor),
	)
	return saved, savedRecords, nil
}

// Approve moves a processing period to approved. A preview has no id and is
// still a draft, so it cannot be approved.
func (m *PeriodManager) Approve(ctx context.Context, periodID int64, approver string) (payroll.PayrollPeriod, error) {
	if periodID <= 0 {
		return payroll.PayrollPeriod{}, &payroll.StateConflictError{Current: payroll.PeriodStatusDraft, Target: payroll.PeriodStatusApproved}
	}
	if approver == "" {
		return payroll.PayrollPeriod{}, payroll.ErrActorRequired
	}

	var approved payroll.PayrollPeriod
	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		ok, err := m.repo.TransitionPeriod(txCtx, periodID, payroll.PeriodStatusProcessing, payroll.PeriodStatusApproved, approver, m.now())
		if err != nil {
			return err
		}
		if !ok {
			current, err := m.repo.GetPeriodByID(txCtx, periodID)
			if err != nil {
				return err
			}
			return &payroll.StateConflictError{PeriodID: periodID, Current: current.Status, Target: payroll.PeriodStatusApproved}
		}
		if err := m.repo.UpdateRecordStatusByPeriod(txCtx, periodID, payroll.PeriodStatusApproved); err != nil {
			return err
		}
		if err := m.audit.Record(txCtx, audit.NewEntry(approver, audit.ActionApprove, audit.EntityPayrollPeriod, periodID, nil)); err != nil {
			return err
		}
		approved, err = m.repo.GetPeriodByID(txCtx, periodID)
		return err
	})
	if err != nil {
		return payroll.PayrollPeriod{}, err
	}

	m.logger.Info("Payroll period approved", slog.Int64("period_id", periodID), slog.String("actor", approver))
	return approved, nil
}

// MarkPaid moves an approved period to paid, posts the aggregate expense
// once and repays the loans captured on its records.
func (m *PeriodManager) MarkPaid(ctx context.Context, periodID int64, approver string) (payroll.PayrollPeriod, error) {
	if periodID <= 0 {
		return payroll.PayrollPeriod{}, &payroll.StateConflictError{Current: payroll.PeriodStatusDraft, Target: payroll.PeriodStatusPaid}
	}
	if approver == "" {
		return payroll.PayrollPeriod{}, payroll.ErrActorRequired
	}

	var (
		paid      payroll.PayrollPeriod
		records   []payroll.PayrollRecord
		totalNet  decimal.Decimal
		posted    bool
		loanCount int
	)
	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		period, err := m.repo.GetPeriodByIDForUpdate(txCtx, periodID)
		if err != nil {
			return err
		}
		if period.Status != payroll.PeriodStatusApproved {
			return &payroll.StateConflictError{PeriodID: periodID, Current: period.Status, Target: payroll.PeriodStatusPaid}
		}

		records, err = m.repo.ListRecordsByPeriod(txCtx, periodID)
		if err != nil {
			return err
		}
		totalNet = sumNet(records)

		key := ledgerKey(periodID)
		exists, err := m.ledger.HasEntry(txCtx, key)
		if err != nil {
			return err
		}
		if !exists {
			now := m.now()
			_, err := m.ledger.Post(txCtx, payroll.LedgerEntry{
				IdempotencyKey: key,
				PeriodID:       periodID,
				EntryDate:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
				Category:       m.cfg.ExpenseCategory,
				Description:    "Payroll - " + period.PeriodName,
				Amount:         totalNet,
				Currency:       period.Currency,
				PaymentMethod:  m.cfg.ExpensePaymentMethod,
				Status:         "Paid",
				CreatedBy:      approver,
			})
			if err != nil && !errors.Is(err, payroll.ErrLedgerEntryExists) {
				return err
			}
			posted = err == nil
		}

		installments, err := m.repo.ListInstallmentsByPeriod(txCtx, periodID)
		if err != nil {
			return err
		}
		for _, inst := range installments {
			if err := m.loans.ApplyInstallment(txCtx, inst.LoanID, inst.Amount); err != nil {
				return err
			}
		}
		loanCount = len(installments)

		ok, err := m.repo.TransitionPeriod(txCtx, periodID, payroll.PeriodStatusApproved, payroll.PeriodStatusPaid, approver, m.now())
		if err != nil {
			return err
		}
		if !ok {
			return &payroll.StateConflictError{PeriodID: periodID, Current: period.Status, Target: payroll.PeriodStatusPaid}
		}
		if err := m.repo.UpdateRecordStatusByPeriod(txCtx, periodID, payroll.PeriodStatusPaid); err != nil {
			return err
		}
		if err := m.audit.Record(txCtx, audit.NewEntry(approver, audit.ActionPay, audit.EntityPayrollPeriod, periodID, map[string]any{
			"total_net":    totalNet.StringFixed(2),
			"ledger_key":   key,
			"installments": len(installments),
		})); err != nil {
			return err
		}
		paid, err = m.repo.GetPeriodByID(txCtx, periodID)
		return err
	})
	if err != nil {
		if isCallerError(err) {
			return payroll.PayrollPeriod{}, err
		}
		return payroll.PayrollPeriod{}, &payroll.PersistenceError{
			Op:          "mark payroll period paid",
			EmployeeIDs: employeeIDs(records),
			Err:         err,
		}
	}

	m.logger.Info("Payroll period paid",
		slog.Int64("period_id", periodID),
		slog.String("total_net", totalNet.StringFixed(2)),
		slog.Bool("ledger_posted", posted),
		slog.Int("loan_installments", loanCount),
		slog.String("actor", approver),
	)
	return paid, nil
}

// ledgerKey is the period id, so a period can only ever post once.
func ledgerKey(periodID int64) string {
	return strconv.FormatInt(periodID, 10)
}

func validateRun(period payroll.PayrollPeriod, lines []payroll.PayrollRecord) error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(period.PeriodName) {
		errs = append(errs, validator.ValidationError{Field: "period_name", Message: "is required"})
	}
	if period.StartDate.IsZero() || period.EndDate.IsZero() {
		errs = append(errs, validator.ValidationError{Field: "start_date", Message: "period dates are required"})
	} else if period.StartDate.After(period.EndDate) {
		errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must not be before start_date"})
	}
	if period.Currency == "" {
		errs = append(errs, validator.ValidationError{Field: "currency", Message: "is required"})
	}
	if len(lines) == 0 {
		errs = append(errs, validator.ValidationError{Field: "records", Message: noTripsMessage})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isCallerError(err error) bool {
	var (
		validationErrs validator.ValidationErrors
		conflict       *payroll.StateConflictError
	)
	return errors.As(err, &validationErrs) ||
		errors.As(err, &conflict) ||
		errors.Is(err, payroll.ErrPeriodOverlap) ||
		errors.Is(err, payroll.ErrPeriodNotFound)
}

func collectDeductionIDs(lines []payroll.PayrollRecord) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, line := range lines {
		for _, id := range line.DeductionIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func employeeIDs(lines []payroll.PayrollRecord) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, line := range lines {
		if _, ok := seen[line.EmployeeID]; ok {
			continue
		}
		seen[line.EmployeeID] = struct{}{}
		ids = append(ids, line.EmployeeID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sumNet(records []payroll.PayrollRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.NetPay)
	}
	return total
}
