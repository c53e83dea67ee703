package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/dto"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Contracts внеплатформенная оплата.
type Contracts interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateContractInput) (*models.Contract, error)
	SubmitDetails(ctx context.Context, actor service.Actor, contractID uuid.UUID, method valueobject.PaymentMethod, fields map[string]string, proof *service.ProofFile) (*models.PaymentDetails, error)
	RevealDetails(ctx context.Context, actor service.Actor, contractID uuid.UUID) (*service.RevealedDetails, error)
	VerifyDetails(ctx context.Context, actor service.Actor, detailsID uuid.UUID) (*models.PaymentDetails, error)
	MarkSent(ctx context.Context, actor service.Actor, contractID uuid.UUID, proof *service.ProofFile) (*models.Contract, error)
	MarkReceived(ctx context.Context, actor service.Actor, contractID uuid.UUID) (*models.Contract, error)
	ConfirmRelease(ctx context.Context, actor service.Actor, contractID uuid.UUID) (*models.Contract, error)
	ListAwaitingRelease(ctx context.Context, actor service.Actor, limit, offset int) ([]models.Contract, error)
}

type ContractHandler struct {
	contracts Contracts
	maxUpload int64
}

func NewContractHandler(contracts Contracts, maxUpload int64) *ContractHandler {
	return &ContractHandler{contracts: contracts, maxUpload: maxUpload}
}

// Create POST /contracts
func (h *ContractHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "проверьте найм, сдачу, способ оплаты и сумму")
		return
	}

	contract, err := h.contracts.Create(c.Request.Context(), actor, service.CreateContractInput{
		HireID:            req.HireID,
		FinalSubmissionID: req.FinalSubmissionID,
		PaymentMethod:     valueobject.PaymentMethod(req.PaymentMethod),
		TotalAmount:       req.TotalAmount,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// SubmitDetails POST /contracts/:id/details (multipart: payment_method, fields JSON, proof)
func (h *ContractHandler) SubmitDetails(c *gin.Context) {
	actor, contractID, ok := actorAndID(c)
	if !ok {
		return
	}

	fields := map[string]string{}
	if raw := c.PostForm("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			common.RespondBadRequest(c, "fields должен быть JSON объектом")
			return
		}
	}

	proof, err := readProof(c, "proof", h.maxUpload)
	if err != nil {
		respondProofError(c, err)
		return
	}

	method := valueobject.PaymentMethod(c.PostForm("payment_method"))
	details, err := h.contracts.SubmitDetails(c.Request.Context(), actor, contractID, method, fields, proof)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, details)
}

// RevealDetails GET /contracts/:id/details
func (h *ContractHandler) RevealDetails(c *gin.Context) {
	actor, contractID, ok := actorAndID(c)
	if !ok {
		return
	}

	details, err := h.contracts.RevealDetails(c.Request.Context(), actor, contractID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, details)
}

// VerifyDetails POST /admin/payment-details/:id/verify
func (h *ContractHandler) VerifyDetails(c *gin.Context) {
	actor, detailsID, ok := actorAndID(c)
	if !ok {
		return
	}

	details, err := h.contracts.VerifyDetails(c.Request.Context(), actor, detailsID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// MarkSent POST /contracts/:id/sent (multipart: proof)
func (h *ContractHandler) MarkSent(c *gin.Context) {
	actor, contractID, ok := actorAndID(c)
	if !ok {
		return
	}

	proof, err := readProof(c, "proof", h.maxUpload)
	if err != nil {
		respondProofError(c, err)
		return
	}

	contract, err := h.contracts.MarkSent(c.Request.Context(), actor, contractID, proof)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// MarkReceived POST /contracts/:id/received
func (h *ContractHandler) MarkReceived(c *gin.Context) {
	h.step(c, h.contracts.MarkReceived)
}

// ConfirmRelease POST /admin/contracts/:id/release
func (h *ContractHandler) ConfirmRelease(c *gin.Context) {
	h.step(c, h.contracts.ConfirmRelease)
}

func (h *ContractHandler) step(c *gin.Context, fn func(context.Context, service.Actor, uuid.UUID) (*models.Contract, error)) {
	actor, contractID, ok := actorAndID(c)
	if !ok {
		return
	}

	contract, err := fn(c.Request.Context(), actor, contractID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// ListAwaiting GET /admin/contracts/awaiting
func (h *ContractHandler) ListAwaiting(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.contracts.ListAwaitingRelease(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse[models.Contract]{Items: items, Limit: limit, Offset: offset})
}
