package response

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/busfleet/payroll-backend-go/internal/domain/auth"
	"github.com/busfleet/payroll-backend-go/internal/domain/employee"
	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/pkg/validator"
	"github.com/go-chi/jwtauth/v5"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	// Lifecycle conflicts can arrive wrapped in a persistence error
	var stateErr *payroll.StateConflictError
	if errors.As(err, &stateErr) {
		Conflict(w, CodePeriodStateConflict, stateErr.Error(), stateConflictDetails(stateErr))
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, jwtauth.ErrExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, jwtauth.ErrNoTokenFound),
		errors.Is(err, jwtauth.ErrUnauthorized):
		Unauthorized(w, "Invalid or missing token")
	case errors.Is(err, payroll.ErrActorRequired):
		Unauthorized(w, "Authenticated user is required")
	case errors.Is(err, auth.ErrInsufficientPermission):
		Forbidden(w, "Insufficient permissions")

	// Employee domain errors
	case errors.Is(err, employee.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")

	// Payroll domain errors
	case errors.Is(err, payroll.ErrPeriodNotFound):
		NotFound(w, "Payroll period not found")
	case errors.Is(err, payroll.ErrRecordNotFound):
		NotFound(w, "Payroll record not found")
	case errors.Is(err, payroll.ErrPayslipNotAvailable):
		NotFound(w, "Payslip is not available until the period is approved")
	case errors.Is(err, payroll.ErrPeriodOverlap):
		Conflict(w, CodePeriodOverlap, err.Error(), nil)
	case errors.Is(err, payroll.ErrDeductionAlreadyApplied):
		Conflict(w, CodeDeductionAlreadyApplied, "A deduction was already applied to another payroll period", nil)

	default:
		var persistErr *payroll.PersistenceError
		if errors.As(err, &persistErr) {
			InternalServerError(w, CodePersistenceFailed,
				fmt.Sprintf("Payroll could not be saved for employees %v; no changes were kept", persistErr.EmployeeIDs),
				map[string]string{"operation": persistErr.Op, "employee_ids": joinIDs(persistErr.EmployeeIDs)})
			return
		}
		InternalServerError(w, CodeInternal, "An unexpected error occurred", nil)
	}
}

func stateConflictDetails(e *payroll.StateConflictError) map[string]string {
	details := map[string]string{
		"current_status": string(e.Current),
		"target_status":  string(e.Target),
	}
	if e.PeriodID != 0 {
		details["period_id"] = strconv.FormatInt(e.PeriodID, 10)
	}
	return details
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
