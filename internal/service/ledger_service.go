package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// LedgerService кошелёк пользователя, переводы и ручные корректировки.
type LedgerService struct {
	users    UserStore
	ledger   LedgerStore
	policy   *Policy
	notifier Notifier
}

// NewLedgerService создаёт сервис.
func NewLedgerService(users UserStore, ledger LedgerStore, policy *Policy, notifier Notifier) *LedgerService {
	return &LedgerService{users: users, ledger: ledger, policy: policy, notifier: notifier}
}

// GetWallet возвращает балансы и сумму активных холдов.
func (s *LedgerService) GetWallet(ctx context.Context, actor Actor) (*models.Wallet, error) {
	if err := s.policy.Authorize(actor, OpViewWallet, RelNone); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	held, err := s.users.HeldTotal(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &models.Wallet{
		UserID:        user.ID,
		AccountNumber: user.AccountNumber,
		CoinBalance:   user.CoinBalance,
		FrozenBalance: user.FrozenBalance,
		HeldTotal:     held,
	}, nil
}

// ListTransactions история движений по счёту.
func (s *LedgerService) ListTransactions(ctx context.Context, actor Actor, limit, offset int) ([]models.CoinTransaction, error) {
	if err := s.policy.Authorize(actor, OpViewWallet, RelNone); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListTransactions(ctx, actor.ID, limit, offset)
}

// Credit ручное зачисление администратором.
func (s *LedgerService) Credit(ctx context.Context, actor Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	if err := s.policy.Authorize(actor, OpAdjustLedger, RelNone); err != nil {
		return nil, err
	}
	amount, err := valueobject.NewAmount(amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.Credit(ctx, userID, amount, models.TxTypeCredit, note)
	if err != nil {
		return nil, err
	}
	s.recorded(entry, actor)
	return entry, nil
}

// Debit ручное списание администратором. Не уводит баланс в минус.
func (s *LedgerService) Debit(ctx context.Context, actor Actor, userID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	if err := s.policy.Authorize(actor, OpAdjustLedger, RelNone); err != nil {
		return nil, err
	}
	amount, err := valueobject.NewAmount(amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.Debit(ctx, userID, amount, models.TxTypeDebit, note)
	if err != nil {
		return nil, err
	}
	s.recorded(entry, actor)
	return entry, nil
}

// TransferCoins перевод клиента фрилансеру по номеру счёта.
func (s *LedgerService) TransferCoins(ctx context.Context, actor Actor, toAccountNumber string, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	if err := s.policy.Authorize(actor, OpTransfer, RelNone); err != nil {
		return nil, err
	}
	amount, err := valueobject.NewAmount(amount)
	if err != nil {
		return nil, err
	}
	toAccountNumber = strings.ToUpper(strings.TrimSpace(toAccountNumber))
	if toAccountNumber == "" {
		return nil, apperror.Validation("account_number")
	}

	recipient, err := s.users.GetByAccountNumber(ctx, toAccountNumber)
	if err != nil {
		return nil, err
	}
	if recipient.ID == actor.ID {
		return nil, apperror.Validation("recipient is the sender")
	}
	if recipient.Role != valueobject.RoleFreelancer {
		return nil, apperror.Validation("recipient must be a freelancer")
	}

	entry, err := s.ledger.Transfer(ctx, actor.ID, recipient.ID, amount, note)
	if err != nil {
		return nil, err
	}
	s.recorded(entry, actor)

	s.notifier.Notify(ctx, recipient.ID, models.NotificationTypePayment, "coins_received", map[string]interface{}{
		"amount": amount,
		"from":   actor.ID,
		"note":   note,
	})
	return entry, nil
}

func (s *LedgerService) recorded(entry *models.CoinTransaction, actor Actor) {
	metrics.Escrow().ObserveLedgerMutation(entry.Type)
	logger.Log.WithFields(logrus.Fields{
		"tx_id":      entry.ID,
		"account_id": entry.AccountID,
		"type":       entry.Type,
		"amount":     entry.Amount,
		"actor_id":   actor.ID,
	}).Info("ledger mutation")
}
