package campaign

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/reachpoint-platform/reachpoint/internal/api"
	"github.com/reachpoint-platform/reachpoint/internal/batch"
	"github.com/reachpoint-platform/reachpoint/internal/billing"
	"github.com/reachpoint-platform/reachpoint/internal/quota"
)

// Handler provides HTTP handlers for dispatch, quota, and budget endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new campaign Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Dispatch runs a campaign dispatch. Mid-run failures still return the
// partial result so callers know how far the run got.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Dispatch(r.Context(), &req)
	if err != nil {
		api.JSONErrorData(w, dispatchStatus(err), err.Error(), result)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, quota.ErrQuotaExceeded),
		errors.Is(err, quota.ErrCircuitOpen),
		errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, batch.ErrAborted):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func tenantIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "tenantID"))
}

// GetQuota returns the tenant's current counters and plan limits. The
// plan is passed as a query parameter; unknown plans resolve to the
// conservative default limits.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDParam(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid tenant id"))
		return
	}

	status, err := h.svc.QuotaStatus(r.Context(), tenantID, r.URL.Query().Get("plan"))
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// ResetQuotaBreaker closes the tenant's circuit breaker.
func (h *Handler) ResetQuotaBreaker(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDParam(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid tenant id"))
		return
	}

	if err := h.svc.ResetBreaker(r.Context(), tenantID); err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "circuit breaker reset")
}

// GetBudget returns the tenant's budget and today's cost breakdown.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDParam(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid tenant id"))
		return
	}

	status, err := h.svc.BudgetStatus(r.Context(), tenantID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// BlockSpending activates the tenant's spend block.
func (h *Handler) BlockSpending(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true, "spending blocked")
}

// UnblockSpending lifts the tenant's spend block.
func (h *Handler) UnblockSpending(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false, "spending unblocked")
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, msg string) {
	tenantID, err := tenantIDParam(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid tenant id"))
		return
	}

	if err := h.svc.SetSpendBlocked(r.Context(), tenantID, blocked); err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, msg)
}
