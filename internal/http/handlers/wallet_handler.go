package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/dto"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Ledger операции кошелька и журнала.
type Ledger interface {
	GetWallet(ctx context.Context, actor service.Actor) (*models.Wallet, error)
	ListTransactions(ctx context.Context, actor service.Actor, limit, offset int) ([]models.CoinTransaction, error)
	Credit(ctx context.Context, actor service.Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error)
	Debit(ctx context.Context, actor service.Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error)
	TransferCoins(ctx context.Context, actor service.Actor, toAccountNumber string, amount decimal.Decimal, note string) (*models.CoinTransaction, error)
}

// Accounts открытие счетов.
type Accounts interface {
	OpenAccount(ctx context.Context, actor service.Actor, role valueobject.Role, fullName string) (*models.User, error)
}

type WalletHandler struct {
	ledger   Ledger
	accounts Accounts
}

func NewWalletHandler(ledger Ledger, accounts Accounts) *WalletHandler {
	return &WalletHandler{ledger: ledger, accounts: accounts}
}

// GetWallet GET /wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	wallet, err := h.ledger.GetWallet(c.Request.Context(), actor)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// ListTransactions GET /wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.ledger.ListTransactions(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse[models.CoinTransaction]{Items: items, Limit: limit, Offset: offset})
}

// Transfer POST /wallet/transfer
func (h *WalletHandler) Transfer(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите номер счёта и сумму")
		return
	}

	entry, err := h.ledger.TransferCoins(c.Request.Context(), actor, req.ToAccountNumber, req.Amount, req.Note)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// Credit POST /admin/ledger/credit
func (h *WalletHandler) Credit(c *gin.Context) {
	h.adjust(c, h.ledger.Credit)
}

// Debit POST /admin/ledger/debit
func (h *WalletHandler) Debit(c *gin.Context) {
	h.adjust(c, h.ledger.Debit)
}

type adjustFunc func(ctx context.Context, actor service.Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error)

func (h *WalletHandler) adjust(c *gin.Context, fn adjustFunc) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.LedgerAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите пользователя и сумму")
		return
	}

	entry, err := fn(c.Request.Context(), actor, req.UserID, req.Amount, req.Note)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// OpenAccount POST /admin/accounts
func (h *WalletHandler) OpenAccount(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите роль и имя")
		return
	}

	user, err := h.accounts.OpenAccount(c.Request.Context(), actor, valueobject.Role(req.Role), req.FullName)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}
