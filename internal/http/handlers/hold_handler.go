package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Holds ручное управление холдами администратором.
type Holds interface {
	ReleaseHold(ctx context.Context, actor service.Actor, holdID uuid.UUID) (*models.CoinHold, error)
	RefundHold(ctx context.Context, actor service.Actor, holdID uuid.UUID) (*models.CoinHold, error)
}

// Sweeps ручной запуск проходов автоосвобождения.
type Sweeps interface {
	RunSweep(ctx context.Context, actor service.Actor, policy string) (service.SweepReport, error)
}

type HoldHandler struct {
	holds  Holds
	sweeps Sweeps
}

func NewHoldHandler(holds Holds, sweeps Sweeps) *HoldHandler {
	return &HoldHandler{holds: holds, sweeps: sweeps}
}

// Release POST /admin/holds/:id/release
func (h *HoldHandler) Release(c *gin.Context) {
	h.transition(c, h.holds.ReleaseHold)
}

// Refund POST /admin/holds/:id/refund
func (h *HoldHandler) Refund(c *gin.Context) {
	h.transition(c, h.holds.RefundHold)
}

func (h *HoldHandler) transition(c *gin.Context, fn func(context.Context, service.Actor, uuid.UUID) (*models.CoinHold, error)) {
	actor, holdID, ok := actorAndID(c)
	if !ok {
		return
	}

	hold, err := fn(c.Request.Context(), actor, holdID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, hold)
}

// SweepStaleHolds POST /admin/sweeps/stale-holds
func (h *HoldHandler) SweepStaleHolds(c *gin.Context) {
	h.sweep(c, service.PolicyStaleHolds)
}

// SweepUnconfirmedWork POST /admin/sweeps/unconfirmed-work
func (h *HoldHandler) SweepUnconfirmedWork(c *gin.Context) {
	h.sweep(c, service.PolicyUnconfirmedWork)
}

func (h *HoldHandler) sweep(c *gin.Context, policy string) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	report, err := h.sweeps.RunSweep(c.Request.Context(), actor, policy)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "проход завершён", report)
}

