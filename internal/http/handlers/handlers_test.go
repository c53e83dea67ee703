package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/http/middleware"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// pngHeader минимальная сигнатура PNG.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newRouter(actor *service.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if actor != nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextActorKey, *actor)
			c.Next()
		})
	}
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, r *gin.Engine, path string, fields map[string]string, fileField string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "proof.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetWallet(ctx context.Context, actor service.Actor) (*models.Wallet, error) {
	args := m.Called(ctx, actor)
	if w, ok := args.Get(0).(*models.Wallet); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) ListTransactions(ctx context.Context, actor service.Actor, limit, offset int) ([]models.CoinTransaction, error) {
	args := m.Called(ctx, actor, limit, offset)
	return args.Get(0).([]models.CoinTransaction), args.Error(1)
}

func (m *mockLedger) Credit(ctx context.Context, actor service.Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	args := m.Called(ctx, actor, userID, amount, note)
	if tx, ok := args.Get(0).(*models.CoinTransaction); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) Debit(ctx context.Context, actor service.Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	args := m.Called(ctx, actor, userID, amount, note)
	if tx, ok := args.Get(0).(*models.CoinTransaction); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) TransferCoins(ctx context.Context, actor service.Actor, to string, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	args := m.Called(ctx, actor, to, amount, note)
	if tx, ok := args.Get(0).(*models.CoinTransaction); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDisputes struct {
	mock.Mock
}

func (m *mockDisputes) Raise(ctx context.Context, actor service.Actor, hireID uuid.UUID, reason string, proof *service.ProofFile) (*models.Dispute, error) {
	args := m.Called(ctx, actor, hireID, reason, proof)
	if d, ok := args.Get(0).(*models.Dispute); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDisputes) Resolve(ctx context.Context, actor service.Actor, id uuid.UUID, note string) (*service.DisputeOutcome, error) {
	args := m.Called(ctx, actor, id, note)
	if o, ok := args.Get(0).(*service.DisputeOutcome); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDisputes) Reject(ctx context.Context, actor service.Actor, id uuid.UUID, note string) (*service.DisputeOutcome, error) {
	args := m.Called(ctx, actor, id, note)
	if o, ok := args.Get(0).(*service.DisputeOutcome); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDisputes) ListOpen(ctx context.Context, actor service.Actor, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, actor, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputes) ProofURL(ctx context.Context, actor service.Actor, id uuid.UUID) (string, error) {
	args := m.Called(ctx, actor, id)
	return args.String(0), args.Error(1)
}

func TestWalletHandler_Unauthorized(t *testing.T) {
	h := NewWalletHandler(nil, nil)
	r := newRouter(nil)
	r.GET("/wallet", h.GetWallet)
	r.POST("/wallet/transfer", h.Transfer)

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/wallet", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/wallet/transfer", nil).Code)
}

func TestWalletHandler_GetWallet(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	ledger := new(mockLedger)
	ledger.On("GetWallet", mock.Anything, actor).Return(&models.Wallet{
		UserID:        actor.ID,
		AccountNumber: "TN-1",
		CoinBalance:   decimal.NewFromInt(350),
		FrozenBalance: decimal.Zero,
		HeldTotal:     decimal.NewFromInt(150),
	}, nil)

	r := newRouter(&actor)
	r.GET("/wallet", NewWalletHandler(ledger, nil).GetWallet)

	w := doJSON(r, http.MethodGet, "/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"coin_balance":"350"`)
	assert.Contains(t, w.Body.String(), `"held_total":"150"`)
	ledger.AssertExpectations(t)
}

func TestWalletHandler_TransferInsufficientFunds(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	ledger := new(mockLedger)
	ledger.On("TransferCoins", mock.Anything, actor, "TN-42", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("12.50"))
	}), "thanks").Return(nil, apperror.ErrInsufficientFunds)

	r := newRouter(&actor)
	r.POST("/wallet/transfer", NewWalletHandler(ledger, nil).Transfer)

	w := doJSON(r, http.MethodPost, "/wallet/transfer", map[string]any{
		"to_account_number": "TN-42",
		"amount":            "12.50",
		"note":              "thanks",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_FUNDS")
	ledger.AssertExpectations(t)
}

func TestWalletHandler_TransferBadBody(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	r := newRouter(&actor)
	r.POST("/wallet/transfer", NewWalletHandler(new(mockLedger), nil).Transfer)

	w := doJSON(r, http.MethodPost, "/wallet/transfer", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletHandler_ListTransactionsPagination(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer}
	ledger := new(mockLedger)
	ledger.On("ListTransactions", mock.Anything, actor, 100, 5).Return([]models.CoinTransaction{}, nil)

	r := newRouter(&actor)
	r.GET("/wallet/transactions", NewWalletHandler(ledger, nil).ListTransactions)

	w := doJSON(r, http.MethodGet, "/wallet/transactions?limit=1000&offset=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ledger.AssertExpectations(t)
}

func TestHireHandler_InvalidID(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	r := newRouter(&actor)
	r.GET("/hires/:id", NewHireHandler(nil).GetHire)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/hires/not-a-uuid", nil).Code)
}

func TestDisputeHandler_RaiseWithProof(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	hireID := uuid.New()
	disputes := new(mockDisputes)
	disputes.On("Raise", mock.Anything, actor, hireID, "work not delivered", mock.MatchedBy(func(p *service.ProofFile) bool {
		return p != nil && p.ContentType == "image/png" && p.Name == "proof.png"
	})).Return(&models.Dispute{ID: uuid.New(), HireID: hireID}, nil)

	r := newRouter(&actor)
	r.POST("/hires/:id/disputes", NewDisputeHandler(disputes, 1<<20).Raise)

	w := doMultipart(t, r, "/hires/"+hireID.String()+"/disputes", map[string]string{"reason": "work not delivered"}, "proof", pngHeader)
	assert.Equal(t, http.StatusCreated, w.Code)
	disputes.AssertExpectations(t)
}

func TestDisputeHandler_RaiseWithoutProof(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	hireID := uuid.New()
	disputes := new(mockDisputes)
	disputes.On("Raise", mock.Anything, actor, hireID, "late", (*service.ProofFile)(nil)).Return(nil, apperror.ErrDuplicateDispute)

	r := newRouter(&actor)
	r.POST("/hires/:id/disputes", NewDisputeHandler(disputes, 1<<20).Raise)

	w := doMultipart(t, r, "/hires/"+hireID.String()+"/disputes", map[string]string{"reason": "late"}, "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	disputes.AssertExpectations(t)
}

func TestDisputeHandler_RejectsUnsupportedProof(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	r := newRouter(&actor)
	r.POST("/hires/:id/disputes", NewDisputeHandler(new(mockDisputes), 1<<20).Raise)

	w := doMultipart(t, r, "/hires/"+uuid.NewString()+"/disputes", map[string]string{"reason": "x"}, "proof", []byte("#!/bin/sh\nrm -rf /"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeHandler_ProofTooLarge(t *testing.T) {
	actor := service.Actor{ID: uuid.New(), Role: valueobject.RoleClient}
	r := newRouter(&actor)
	r.POST("/hires/:id/disputes", NewDisputeHandler(new(mockDisputes), 8).Raise)

	w := doMultipart(t, r, "/hires/"+uuid.NewString()+"/disputes", map[string]string{"reason": "x"}, "proof", pngHeader)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDisputeHandler_ResolveWithoutBody(t *testing.T) {
	admin := service.Actor{ID: uuid.New(), Role: valueobject.RoleAdmin}
	disputeID := uuid.New()
	disputes := new(mockDisputes)
	disputes.On("Resolve", mock.Anything, admin, disputeID, "").Return(&service.DisputeOutcome{}, nil)

	r := newRouter(&admin)
	r.POST("/admin/disputes/:id/resolve", NewDisputeHandler(disputes, 0).Resolve)

	req := httptest.NewRequest(http.MethodPost, "/admin/disputes/"+disputeID.String()+"/resolve", strings.NewReader(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	disputes.AssertExpectations(t)
}

func TestDisputeHandler_ProofURLForbidden(t *testing.T) {
	stranger := service.Actor{ID: uuid.New(), Role: valueobject.RoleFreelancer}
	disputeID := uuid.New()
	disputes := new(mockDisputes)
	disputes.On("ProofURL", mock.Anything, stranger, disputeID).Return("", apperror.ErrForbidden)

	r := newRouter(&stranger)
	r.GET("/disputes/:id/proof", NewDisputeHandler(disputes, 0).ProofURL)

	w := doJSON(r, http.MethodGet, "/disputes/"+disputeID.String()+"/proof", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
