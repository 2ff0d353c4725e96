package payroll

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/busfleet/payroll-backend-go/internal/domain/audit"
	"github.com/busfleet/payroll-backend-go/internal/domain/employee"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// memStore backs every repository the payroll service needs. Transactions
// snapshot the whole store and restore it when fn fails.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	brackets     map[string][]payroll.TaxBracket
	settings     map[string]string
	trips        []payroll.TripRecord
	employees    map[int64]employee.Employee
	deductions   map[int64]payroll.Deduction
	loans        map[int64]payroll.Loan
	periods      map[int64]payroll.PayrollPeriod
	records      map[int64]payroll.PayrollRecord
	installments []payroll.LoanInstallment
	ledger       map[string]payroll.LedgerEntry
	auditLog     []audit.Entry

	nextID    int64
	failOn    map[string]error
	postCalls int
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		brackets:   make(map[string][]payroll.TaxBracket),
		settings:   make(map[string]string),
		employees:  make(map[int64]employee.Employee),
		deductions: make(map[int64]payroll.Deduction),
		loans:      make(map[int64]payroll.Loan),
		periods:    make(map[int64]payroll.PayrollPeriod),
		records:    make(map[int64]payroll.PayrollRecord),
		ledger:     make(map[string]payroll.LedgerEntry),
		failOn:     make(map[string]error),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) fail(op string) error {
	return s.failOn[op]
}

type memSnapshot struct {
	deductions   map[int64]payroll.Deduction
	loans        map[int64]payroll.Loan
	periods      map[int64]payroll.PayrollPeriod
	records      map[int64]payroll.PayrollRecord
	installments []payroll.LoanInstallment
	ledger       map[string]payroll.LedgerEntry
	auditLog     []audit.Entry
	nextID       int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		deductions:   copyMap(s.deductions),
		loans:        copyMap(s.loans),
		periods:      copyMap(s.periods),
		records:      copyMap(s.records),
		installments: append([]payroll.LoanInstallment(nil), s.installments...),
		ledger:       copyMap(s.ledger),
		auditLog:     append([]audit.Entry(nil), s.auditLog...),
		nextID:       s.nextID,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deductions = snap.deductions
	s.loans = snap.loans
	s.periods = snap.periods
	s.records = snap.records
	s.installments = snap.installments
	s.ledger = snap.ledger
	s.auditLog = snap.auditLog
	s.nextID = snap.nextID
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ========== SEEDING ==========

func (s *memStore) addEmployee(id int64, name string) {
	s.employees[id] = employee.Employee{ID: id, FullName: name, Status: employee.EmploymentStatusActive}
}

func (s *memStore) addTrip(date string, amount string, passengers int, driver, conductor *int64, driverBonus, conductorBonus string) {
	s.trips = append(s.trips, payroll.TripRecord{
		ID:                  int64(len(s.trips) + 1),
		Date:                day(date),
		Amount:              dec(amount),
		Passengers:          passengers,
		DriverEmployeeID:    driver,
		ConductorEmployeeID: conductor,
		DriverBonus:         dec(driverBonus),
		ConductorBonus:      dec(conductorBonus),
	})
}

func (s *memStore) addDeduction(employeeID int64, amount, date string) int64 {
	id := s.id()
	s.deductions[id] = payroll.Deduction{
		ID:           id,
		EmployeeID:   employeeID,
		Amount:       dec(amount),
		DateIncurred: day(date),
		Status:       payroll.DeductionStatusPending,
		Reason:       "late return",
	}
	return id
}

func (s *memStore) addLoan(employeeID int64, balance, monthly string) int64 {
	id := s.id()
	s.loans[id] = payroll.Loan{
		ID:               id,
		EmployeeID:       employeeID,
		Balance:          dec(balance),
		MonthlyDeduction: dec(monthly),
		Status:           payroll.LoanStatusActive,
	}
	return id
}

// ========== TAX & SETTINGS ==========

func (s *memStore) ListActiveByCurrency(ctx context.Context, currency string) ([]payroll.TaxBracket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListActiveByCurrency"); err != nil {
		return nil, err
	}
	var out []payroll.TaxBracket
	for _, b := range s.brackets[currency] {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSetting"); err != nil {
		return "", err
	}
	v, ok := s.settings[key]
	if !ok {
		return "", payroll.ErrSettingNotFound
	}
	return v, nil
}

// ========== TRIPS & EMPLOYEES ==========

func (s *memStore) ListByDateRange(ctx context.Context, start, end time.Time) ([]payroll.TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByDateRange"); err != nil {
		return nil, err
	}
	var out []payroll.TripRecord
	for _, t := range s.trips {
		if !t.Date.Before(start) && !t.Date.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (employee.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return employee.Employee{}, employee.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *memStore) GetByIDs(ctx context.Context, ids []int64) ([]employee.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []employee.Employee
	for _, id := range ids {
		if e, ok := s.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ========== DEDUCTIONS & LOANS ==========

func (s *memStore) ListPendingByEmployee(ctx context.Context, employeeID int64, start, end time.Time, includePeriodID int64) ([]payroll.Deduction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListPendingByEmployee"); err != nil {
		return nil, err
	}
	var out []payroll.Deduction
	for _, d := range s.deductions {
		if d.EmployeeID != employeeID || d.DateIncurred.Before(start) || d.DateIncurred.After(end) {
			continue
		}
		claimed := includePeriodID != 0 && d.PayrollPeriodID != nil && *d.PayrollPeriodID == includePeriodID
		if d.Status == payroll.DeductionStatusPending || claimed {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) MarkApplied(ctx context.Context, periodID int64, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkApplied"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		d, ok := s.deductions[id]
		if !ok || d.Status != payroll.DeductionStatusPending {
			continue
		}
		pid := periodID
		d.Status = payroll.DeductionStatusApplied
		d.PayrollPeriodID = &pid
		s.deductions[id] = d
		n++
	}
	return n, nil
}

func (s *memStore) ReleaseByPeriod(ctx context.Context, periodID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.deductions {
		if d.Status == payroll.DeductionStatusApplied && d.PayrollPeriodID != nil && *d.PayrollPeriodID == periodID {
			d.Status = payroll.DeductionStatusPending
			d.PayrollPeriodID = nil
			s.deductions[id] = d
		}
	}
	return nil
}

func (s *memStore) ListActiveByEmployee(ctx context.Context, employeeID int64) ([]payroll.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListActiveByEmployee"); err != nil {
		return nil, err
	}
	var out []payroll.Loan
	for _, l := range s.loans {
		if l.EmployeeID == employeeID && l.Status == payroll.LoanStatusActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ReservedByEmployee(ctx context.Context, employeeID, excludePeriodID int64) (map[int64]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReservedByEmployee"); err != nil {
		return nil, err
	}
	reserved := make(map[int64]decimal.Decimal)
	for _, inst := range s.installments {
		r, ok := s.records[inst.RecordID]
		if !ok || r.EmployeeID != employeeID || r.PeriodID == excludePeriodID {
			continue
		}
		p := s.periods[r.PeriodID]
		if p.Status != payroll.PeriodStatusProcessing && p.Status != payroll.PeriodStatusApproved {
			continue
		}
		reserved[inst.LoanID] = reserved[inst.LoanID].Add(inst.Amount)
	}
	return reserved, nil
}

func (s *memStore) ApplyInstallment(ctx context.Context, loanID int64, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ApplyInstallment"); err != nil {
		return err
	}
	l, ok := s.loans[loanID]
	if !ok {
		return errors.New("loan not found")
	}
	l.Balance = decimal.Max(l.Balance.Sub(amount), decimal.Zero)
	if l.Balance.IsZero() {
		l.Status = payroll.LoanStatusClosed
	}
	s.loans[loanID] = l
	return nil
}

// ========== LEDGER & AUDIT ==========

func (s *memStore) HasEntry(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[key]
	return ok, nil
}

func (s *memStore) Post(ctx context.Context, entry payroll.LedgerEntry) (payroll.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postCalls++
	if err := s.fail("Post"); err != nil {
		return payroll.LedgerEntry{}, err
	}
	if _, ok := s.ledger[entry.IdempotencyKey]; ok {
		return payroll.LedgerEntry{}, payroll.ErrLedgerEntryExists
	}
	entry.ID = s.id()
	s.ledger[entry.IdempotencyKey] = entry
	return entry, nil
}

func (s *memStore) Record(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Record"); err != nil {
		return err
	}
	entry.CreatedAt = time.Now()
	s.auditLog = append(s.auditLog, entry)
	return nil
}

func (s *memStore) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.auditLog {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ========== PERIODS & RECORDS ==========

func (s *memStore) CreatePeriod(ctx context.Context, period payroll.PayrollPeriod) (payroll.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePeriod"); err != nil {
		return payroll.PayrollPeriod{}, err
	}
	period.ID = s.id()
	period.CreatedAt = time.Now()
	period.UpdatedAt = period.CreatedAt
	s.periods[period.ID] = period
	return period, nil
}

func (s *memStore) GetPeriodByID(ctx context.Context, id int64) (payroll.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[id]
	if !ok {
		return payroll.PayrollPeriod{}, payroll.ErrPeriodNotFound
	}
	return p, nil
}

func (s *memStore) GetPeriodByIDForUpdate(ctx context.Context, id int64) (payroll.PayrollPeriod, error) {
	return s.GetPeriodByID(ctx, id)
}

func (s *memStore) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payroll.PayrollPeriod
	for _, p := range s.periods {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *memStore) FindOverlappingPeriods(ctx context.Context, start, end time.Time, excludeID int64) ([]payroll.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payroll.PayrollPeriod
	for _, p := range s.periods {
		if p.ID != excludeID && p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) UpdatePeriodRun(ctx context.Context, period payroll.PayrollPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.periods[period.ID]
	if !ok {
		return payroll.ErrPeriodNotFound
	}
	existing.PeriodName = period.PeriodName
	existing.DriverCommissionRate = period.DriverCommissionRate
	existing.ConductorCommissionRate = period.ConductorCommissionRate
	existing.Currency = period.Currency
	existing.ProcessedBy = period.ProcessedBy
	existing.ProcessedAt = period.ProcessedAt
	s.periods[period.ID] = existing
	return nil
}

func (s *memStore) TransitionPeriod(ctx context.Context, id int64, from, to payroll.PeriodStatus, actor string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("TransitionPeriod"); err != nil {
		return false, err
	}
	p, ok := s.periods[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	switch to {
	case payroll.PeriodStatusApproved:
		p.ApprovedBy, p.ApprovedAt = &actor, &at
	case payroll.PeriodStatusPaid:
		p.PaidBy, p.PaidAt = &actor, &at
	case payroll.PeriodStatusProcessing:
		p.ProcessedBy, p.ProcessedAt = &actor, &at
	}
	s.periods[id] = p
	return true, nil
}

func (s *memStore) CreateRecords(ctx context.Context, records []payroll.PayrollRecord) ([]payroll.PayrollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRecords"); err != nil {
		return nil, err
	}
	out := make([]payroll.PayrollRecord, len(records))
	for i, r := range records {
		r.ID = s.id()
		r.CreatedAt = time.Now()
		s.records[r.ID] = r
		out[i] = r
	}
	return out, nil
}

func (s *memStore) GetRecordByID(ctx context.Context, periodID, recordID int64) (payroll.PayrollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok || r.PeriodID != periodID {
		return payroll.PayrollRecord{}, payroll.ErrRecordNotFound
	}
	return r, nil
}

func (s *memStore) ListRecordsByPeriod(ctx context.Context, periodID int64) ([]payroll.PayrollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payroll.PayrollRecord
	for _, r := range s.records {
		if r.PeriodID == periodID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DeleteRecordsByPeriod(ctx context.Context, periodID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make(map[int64]bool)
	for id, r := range s.records {
		if r.PeriodID == periodID {
			removed[id] = true
			delete(s.records, id)
		}
	}
	kept := s.installments[:0:0]
	for _, inst := range s.installments {
		if !removed[inst.RecordID] {
			kept = append(kept, inst)
		}
	}
	s.installments = kept
	return nil
}

func (s *memStore) UpdateRecordStatusByPeriod(ctx context.Context, periodID int64, status payroll.PeriodStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.PeriodID == periodID {
			r.Status = status
			s.records[id] = r
		}
	}
	return nil
}

func (s *memStore) CreateInstallments(ctx context.Context, installments []payroll.LoanInstallment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateInstallments"); err != nil {
		return err
	}
	s.installments = append(s.installments, installments...)
	return nil
}

func (s *memStore) ListInstallmentsByPeriod(ctx context.Context, periodID int64) ([]payroll.LoanInstallment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payroll.LoanInstallment
	for _, inst := range s.installments {
		if r, ok := s.records[inst.RecordID]; ok && r.PeriodID == periodID {
			out = append(out, inst)
		}
	}
	return out, nil
}

// ========== HELPERS ==========

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T {
	return &v
}
