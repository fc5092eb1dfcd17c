package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rentora/payments/internal/authorization"
	"github.com/rentora/payments/internal/commission"
	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/repository"
	"github.com/rentora/payments/internal/settlement"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	authSvc    *authorization.Service
	settleSvc  *settlement.Service
	commEngine *commission.Engine
	payments   *repository.PaymentRepo
	logger     *slog.Logger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
// Provider failures never arrive here: the coordinators fold them into
// success=false payloads.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var be *domain.BusinessLogicError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &be):
		writeError(w, http.StatusConflict, be.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func jobParams(r *http.Request) (string, domain.JobType) {
	return chi.URLParam(r, "jobID"), domain.JobType(chi.URLParam(r, "jobType"))
}

// --- Authorize ---

func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorization.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.authSvc.Authorize(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// A provider decline is a well-formed outcome, not a transport error.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, result)
}

// --- Charge ---

func (h *Handlers) Charge(w http.ResponseWriter, r *http.Request) {
	jobID, jobType := jobParams(r)

	result, err := h.settleSvc.Charge(r.Context(), jobID, jobType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Refund ---

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	jobID, jobType := jobParams(r)

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.settleSvc.Refund(r.Context(), jobID, jobType, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- GetStatus ---

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID, jobType := jobParams(r)

	record, err := h.settleSvc.GetStatus(jobID, jobType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// --- ListPayments ---

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PaymentFilter{
		JobType: q.Get("job_type"),
		Status:  q.Get("status"),
		PayeeID: q.Get("payee_id"),
		Page:    parseIntDefault(q.Get("page"), 1),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}

	records, total, err := h.payments.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": records,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

// --- ContractQuote ---

// ContractQuote prices a brokered contract with the tiered commission engine.
// The brokerage side of the platform calls this when drafting contracts.
func (h *Handlers) ContractQuote(w http.ResponseWriter, r *http.Request) {
	var in commission.ContractInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.commEngine.TieredCommission(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
