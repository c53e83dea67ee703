package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/dto"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Disputes открытие и разбор споров.
type Disputes interface {
	Raise(ctx context.Context, actor service.Actor, hireID uuid.UUID, reason string, proof *service.ProofFile) (*models.Dispute, error)
	Resolve(ctx context.Context, actor service.Actor, disputeID uuid.UUID, note string) (*service.DisputeOutcome, error)
	Reject(ctx context.Context, actor service.Actor, disputeID uuid.UUID, note string) (*service.DisputeOutcome, error)
	ListOpen(ctx context.Context, actor service.Actor, limit, offset int) ([]models.Dispute, error)
	ProofURL(ctx context.Context, actor service.Actor, disputeID uuid.UUID) (string, error)
}

type DisputeHandler struct {
	disputes  Disputes
	maxUpload int64
}

func NewDisputeHandler(disputes Disputes, maxUpload int64) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, maxUpload: maxUpload}
}

// Raise POST /hires/:id/disputes (multipart: reason, proof)
func (h *DisputeHandler) Raise(c *gin.Context) {
	actor, hireID, ok := actorAndID(c)
	if !ok {
		return
	}

	reason := c.PostForm("reason")
	if reason == "" {
		common.RespondBadRequest(c, "укажите причину спора")
		return
	}

	proof, err := readProof(c, "proof", h.maxUpload)
	if err != nil {
		respondProofError(c, err)
		return
	}

	dispute, err := h.disputes.Raise(c.Request.Context(), actor, hireID, reason, proof)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}

// ListOpen GET /admin/disputes
func (h *DisputeHandler) ListOpen(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.disputes.ListOpen(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse[models.Dispute]{Items: items, Limit: limit, Offset: offset})
}

// Resolve POST /admin/disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	h.decide(c, h.disputes.Resolve)
}

// Reject POST /admin/disputes/:id/reject
func (h *DisputeHandler) Reject(c *gin.Context) {
	h.decide(c, h.disputes.Reject)
}

type decideFunc func(ctx context.Context, actor service.Actor, disputeID uuid.UUID, note string) (*service.DisputeOutcome, error)

func (h *DisputeHandler) decide(c *gin.Context, fn decideFunc) {
	actor, disputeID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	// тело необязательно
	_ = c.ShouldBindJSON(&req)

	outcome, err := fn(c.Request.Context(), actor, disputeID, req.Note)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ProofURL GET /disputes/:id/proof
func (h *DisputeHandler) ProofURL(c *gin.Context) {
	actor, disputeID, ok := actorAndID(c)
	if !ok {
		return
	}

	url, err := h.disputes.ProofURL(c.Request.Context(), actor, disputeID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SignedURLResponse{URL: url})
}
