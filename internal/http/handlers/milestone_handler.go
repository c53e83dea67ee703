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

// Milestones сдача и приёмка этапов.
type Milestones interface {
	Submit(ctx context.Context, actor service.Actor, milestoneID uuid.UUID, fileURL, message string, file *service.ProofFile) (*models.Milestone, error)
	Approve(ctx context.Context, actor service.Actor, milestoneID uuid.UUID) (*models.Milestone, error)
	Reject(ctx context.Context, actor service.Actor, milestoneID uuid.UUID, reason string) (*models.Milestone, error)
}

type MilestoneHandler struct {
	milestones Milestones
	maxUpload  int64
}

func NewMilestoneHandler(milestones Milestones, maxUpload int64) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones, maxUpload: maxUpload}
}

// Submit POST /milestones/:id/submit (multipart: file_url, message, file)
func (h *MilestoneHandler) Submit(c *gin.Context) {
	actor, milestoneID, ok := actorAndID(c)
	if !ok {
		return
	}

	file, err := readProof(c, "file", h.maxUpload)
	if err != nil {
		respondProofError(c, err)
		return
	}

	milestone, err := h.milestones.Submit(c.Request.Context(), actor, milestoneID, c.PostForm("file_url"), c.PostForm("message"), file)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Approve POST /milestones/:id/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
	actor, milestoneID, ok := actorAndID(c)
	if !ok {
		return
	}

	milestone, err := h.milestones.Approve(c.Request.Context(), actor, milestoneID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Reject POST /milestones/:id/reject
func (h *MilestoneHandler) Reject(c *gin.Context) {
	actor, milestoneID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите причину")
		return
	}

	milestone, err := h.milestones.Reject(c.Request.Context(), actor, milestoneID, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}
