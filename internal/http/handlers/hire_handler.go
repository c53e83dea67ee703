package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/dto"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Hires заказы, наймы и итоговая сдача.
type Hires interface {
	CreateJob(ctx context.Context, actor service.Actor, in service.CreateJobInput) (*models.Job, []models.Milestone, error)
	ApproveJob(ctx context.Context, actor service.Actor, jobID uuid.UUID) (*models.Job, error)
	CreateMatch(ctx context.Context, actor service.Actor, jobID, freelancerID uuid.UUID) (*models.JobMatch, error)
	SecureHire(ctx context.Context, actor service.Actor, jobID, freelancerID uuid.UUID) (*models.Hire, error)
	EnsureMilestoneHolds(ctx context.Context, actor service.Actor, hireID uuid.UUID) ([]models.CoinHold, error)
	SubmitFinal(ctx context.Context, actor service.Actor, hireID uuid.UUID, fileURL, message string) (*models.FinalSubmission, error)
	ReviewFinal(ctx context.Context, actor service.Actor, finalID uuid.UUID, approve bool, reason string) (*models.FinalSubmission, error)
	ReleaseFrozenCoin(ctx context.Context, actor service.Actor, hireID uuid.UUID) (*models.CoinHold, error)
	GetHireSummary(ctx context.Context, actor service.Actor, hireID uuid.UUID) (*models.HireSummary, error)
	ListActiveHires(ctx context.Context, actor service.Actor) ([]models.HireSummary, error)
}

type HireHandler struct {
	hires Hires
}

func NewHireHandler(hires Hires) *HireHandler {
	return &HireHandler{hires: hires}
}

// CreateJob POST /jobs
func (h *HireHandler) CreateJob(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "проверьте название, тип оплаты и этапы")
		return
	}

	in := service.CreateJobInput{
		Title:       req.Title,
		PaymentType: valueobject.PaymentType(req.PaymentType),
		Budget:      req.Budget,
	}
	for _, m := range req.Milestones {
		in.Milestones = append(in.Milestones, service.MilestoneInput{Title: m.Title, Amount: m.Amount})
	}

	job, milestones, err := h.hires.CreateJob(c.Request.Context(), actor, in)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateJobResponse{Job: job, Milestones: milestones})
}

// ApproveJob POST /admin/jobs/:id/approve
func (h *HireHandler) ApproveJob(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	job, err := h.hires.ApproveJob(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// CreateMatch POST /admin/matches
func (h *HireHandler) CreateMatch(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите заказ и фрилансера")
		return
	}

	match, err := h.hires.CreateMatch(c.Request.Context(), actor, req.JobID, req.FreelancerID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, match)
}

// SecureHire POST /jobs/:id/hire
func (h *HireHandler) SecureHire(c *gin.Context) {
	actor, jobID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.SecureHireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите фрилансера")
		return
	}

	hire, err := h.hires.SecureHire(c.Request.Context(), actor, jobID, req.FreelancerID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hire)
}

// EnsureHolds POST /hires/:id/holds
func (h *HireHandler) EnsureHolds(c *gin.Context) {
	actor, hireID, ok := actorAndID(c)
	if !ok {
		return
	}

	holds, err := h.hires.EnsureMilestoneHolds(c.Request.Context(), actor, hireID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, holds)
}

// ListHires GET /hires
func (h *HireHandler) ListHires(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	hires, err := h.hires.ListActiveHires(c.Request.Context(), actor)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, hires)
}

// GetHire GET /hires/:id
func (h *HireHandler) GetHire(c *gin.Context) {
	actor, hireID, ok := actorAndID(c)
	if !ok {
		return
	}

	summary, err := h.hires.GetHireSummary(c.Request.Context(), actor, hireID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// SubmitFinal POST /hires/:id/final
func (h *HireHandler) SubmitFinal(c *gin.Context) {
	actor, hireID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.SubmitFinalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите ссылку на результат")
		return
	}

	final, err := h.hires.SubmitFinal(c.Request.Context(), actor, hireID, req.FileURL, req.Message)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, final)
}

// ReviewFinal POST /admin/finals/:id/review
func (h *HireHandler) ReviewFinal(c *gin.Context) {
	actor, finalID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "")
		return
	}

	final, err := h.hires.ReviewFinal(c.Request.Context(), actor, finalID, req.Approve, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, final)
}

// ConfirmWork POST /hires/:id/confirm
func (h *HireHandler) ConfirmWork(c *gin.Context) {
	actor, hireID, ok := actorAndID(c)
	if !ok {
		return
	}

	hold, err := h.hires.ReleaseFrozenCoin(c.Request.Context(), actor, hireID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, hold)
}

// actorAndID достаёт актора и :id. При ошибке ответ уже записан.
func actorAndID(c *gin.Context) (service.Actor, uuid.UUID, bool) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return service.Actor{}, uuid.Nil, false
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return service.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}
