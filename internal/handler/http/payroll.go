package http

import (
	"encoding/json"
	"net/http"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/busfleet/payroll-backend-go/internal/handler/http/response"
	"github.com/busfleet/payroll-backend-go/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type PayrollHandler interface {
	// Computation
	Preview(w http.ResponseWriter, r *http.Request)
	CreatePeriod(w http.ResponseWriter, r *http.Request)

	// Periods
	ListPeriods(w http.ResponseWriter, r *http.Request)
	GetPeriod(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	MarkPaid(w http.ResponseWriter, r *http.Request)

	// Payslips
	GetPayslip(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	payrollService payroll.PayrollService
}

func NewPayrollHandler(payrollService payroll.PayrollService) PayrollHandler {
	return &payrollHandlerImpl{payrollService: payrollService}
}

// ========== COMPUTATION ==========

func (h *payrollHandlerImpl) Preview(w http.ResponseWriter, r *http.Request) {
	var req payroll.GeneratePayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.Preview(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req payroll.SavePayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.GenerateAndSave(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Payroll period saved", result)
}

// ========== PERIODS ==========

func (h *payrollHandlerImpl) ListPeriods(w http.ResponseWriter, r *http.Request) {
	var filter payroll.PeriodFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := payroll.ParsePeriodStatus(s)
		if !ok {
			response.HandleError(w, validator.ValidationErrors{
				{Field: "status", Message: "must be one of draft, processing, approved, paid"},
			})
			return
		}
		filter.Status = &status
	}

	result, err := h.payrollService.ListPeriods(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) GetPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.GetPeriod(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.Approve(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll period approved", result)
}

func (h *payrollHandlerImpl) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.MarkPaid(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll period marked as paid", result)
}

// ========== PAYSLIPS ==========

func (h *payrollHandlerImpl) GetPayslip(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	recordID, ok := validator.ParseID(chi.URLParam(r, "recordId"))
	if !ok {
		response.BadRequest(w, "Invalid record ID", nil)
		return
	}

	result, err := h.payrollService.GetPayslip(r.Context(), id, recordID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := validator.ParseID(chi.URLParam(r, "id"))
	if !ok {
		response.BadRequest(w, "Invalid payroll period ID", nil)
	}
	return id, ok
}
