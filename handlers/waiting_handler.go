package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"waiting-system/internal/status"
	"waiting-system/models"
	"waiting-system/security"
	"waiting-system/services"
)

type WaitingHandler struct {
	admission *services.AdmissionService
	calls     *services.CallService
	limiter   *security.RateLimiter
}

func NewWaitingHandler(admission *services.AdmissionService, calls *services.CallService, limiter *security.RateLimiter) *WaitingHandler {
	return &WaitingHandler{
		admission: admission,
		calls:     calls,
		limiter:   limiter,
	}
}

// Register binds the waiting routes. Visitor routes only need a logged
// in user; operator routes additionally require the staff key.
func (h *WaitingHandler) Register(se *core.ServeEvent, guard *security.StaffGuard) {
	g := se.Router.Group("/api")
	g.Bind(apis.RequireAuth())

	g.POST("/waitings", h.Enqueue)
	g.GET("/waitings/me", h.MyWaitings)
	g.GET("/waitings/booth/{boothId}", h.Position)
	g.DELETE("/waitings/{boothId}", h.Cancel)

	staff := g.Group("")
	staff.BindFunc(guard.RequireStaffKey())

	staff.POST("/waitings/call", h.CallNext)
	staff.POST("/waitings/{waitingId}/entrance", h.ConfirmEntrance)
	staff.POST("/waitings/{waitingId}/complete", h.Complete)
	staff.GET("/booths/{boothId}/called", h.CalledList)
}

func (h *WaitingHandler) Enqueue(e *core.RequestEvent) error {
	var req struct {
		BoothID string `json:"booth_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.BoothID == "" {
		return apis.NewBadRequestError("booth_id is required", nil)
	}

	userID := e.Auth.Id
	if !h.limiter.AllowEnqueue(e.Request.Context(), userID) {
		return apis.NewApiError(http.StatusTooManyRequests, "Too many registrations, slow down", nil)
	}

	result, err := h.admission.Enqueue(e.Request.Context(), req.BoothID, userID)
	if err != nil {
		return mapDomainError(err)
	}

	// An idempotent replay gets the same 201 with the original data.
	return e.JSON(http.StatusCreated, map[string]any{
		"booth_id":               result.BoothID,
		"booth_name":             result.BoothName,
		"position":               result.Position,
		"total_waiting":          result.TotalWaiting,
		"estimated_wait_minutes": result.EstimatedWaitMinutes,
		"registered_at":          result.RegisteredAt,
	})
}

func (h *WaitingHandler) Position(e *core.RequestEvent) error {
	boothID := e.Request.PathValue("boothId")

	summary, total, err := h.admission.Position(e.Request.Context(), boothID, e.Auth.Id)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"booth_id":      summary.BoothID,
		"position":      summary.Position,
		"total_waiting": total,
		"registered_at": summary.RegisteredAt,
	})
}

func (h *WaitingHandler) Cancel(e *core.RequestEvent) error {
	boothID := e.Request.PathValue("boothId")

	if err := h.admission.Cancel(e.Request.Context(), boothID, e.Auth.Id); err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "waiting cancelled"})
}

func (h *WaitingHandler) MyWaitings(e *core.RequestEvent) error {
	list, err := h.admission.WaitingList(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queued": list.Queued,
		"called": list.Called,
	})
}

func (h *WaitingHandler) CallNext(e *core.RequestEvent) error {
	var req struct {
		BoothID string `json:"booth_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.BoothID == "" {
		return apis.NewBadRequestError("booth_id is required", nil)
	}

	result, err := h.calls.CallNext(e.Request.Context(), req.BoothID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"waiting_id": result.WaitingID,
		"user_id":    result.UserID,
		"position":   result.Position,
		"called_at":  result.CalledAt,
	})
}

func (h *WaitingHandler) ConfirmEntrance(e *core.RequestEvent) error {
	return h.transition(e, h.calls.ConfirmEntrance)
}

func (h *WaitingHandler) Complete(e *core.RequestEvent) error {
	return h.transition(e, h.calls.Complete)
}

func (h *WaitingHandler) CalledList(e *core.RequestEvent) error {
	boothID := e.Request.PathValue("boothId")

	called, calledToday, err := h.calls.CalledList(e.Request.Context(), boothID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"booth_id":     boothID,
		"called":       called,
		"called_today": calledToday,
	})
}

type transitionFunc func(ctx context.Context, boothID, waitingID string) (*models.Waiting, error)

func (h *WaitingHandler) transition(e *core.RequestEvent, fn transitionFunc) error {
	var req struct {
		BoothID string `json:"booth_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.BoothID == "" {
		return apis.NewBadRequestError("booth_id is required", nil)
	}

	waitingID := e.Request.PathValue("waitingId")

	waiting, err := fn(e.Request.Context(), req.BoothID, waitingID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"waiting_id":      waiting.ID,
		"user_id":         waiting.UserID,
		"booth_id":        waiting.BoothID,
		"status":          waiting.Status,
		"completion_type": waiting.CompletionType,
	})
}

// mapDomainError translates service sentinels into API responses.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, status.ErrBoothNotFound),
		errors.Is(err, status.ErrWaitingNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrBoothClosed),
		errors.Is(err, status.ErrBoothFull),
		errors.Is(err, status.ErrMaxWaitingExceeded),
		errors.Is(err, status.ErrQueueEmpty),
		errors.Is(err, status.ErrInvalidStatus):
		return apis.NewApiError(http.StatusConflict, err.Error(), err)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Internal error", err)
	}
}
