package payroll

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrPeriodNotFound          = errors.New("payroll period not found")
	ErrRecordNotFound          = errors.New("payroll record not found")
	ErrPayslipNotAvailable     = errors.New("payslip not available until the period is approved")
	ErrPeriodOverlap           = errors.New("payroll period overlaps an existing period")
	ErrDeductionAlreadyApplied = errors.New("deduction already applied to another payroll period")
	ErrLedgerEntryExists       = errors.New("ledger entry already posted for this payroll period")
	ErrSettingNotFound         = errors.New("system setting not found")
	ErrActorRequired           = errors.New("authenticated user is required")
)

// ConfigurationError reports missing or invalid reference data. Computation
// continues with a zero amount and the error becomes a warning.
type ConfigurationError struct {
	Code    string
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// StateConflictError reports a lifecycle transition that is not allowed
// from the period's current status.
type StateConflictError struct {
	PeriodID int64
	Current  PeriodStatus
	Target   PeriodStatus
}

func (e *StateConflictError) Error() string {
	if e.PeriodID == 0 {
		return fmt.Sprintf("unsaved payroll period is %s and cannot move to %s", e.Current, e.Target)
	}
	return fmt.Sprintf("payroll period %d is %s and cannot move to %s", e.PeriodID, e.Current, e.Target)
}

// PersistenceError wraps a failed save. Nothing from the save was kept.
type PersistenceError struct {
	Op          string
	EmployeeIDs []int64
	Err         error
}

func (e *PersistenceError) Error() string {
	ids := make([]string, 0, len(e.EmployeeIDs))
	for _, id := range e.EmployeeIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%s failed for employees [%s]: %v", e.Op, strings.Join(ids, ", "), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
