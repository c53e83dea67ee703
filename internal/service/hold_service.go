package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
)

// HoldService управляет холдами: создание, освобождение и возврат.
type HoldService struct {
	holds    HoldStore
	hires    HireStore
	policy   *Policy
	notifier Notifier
}

// NewHoldService создаёт сервис.
func NewHoldService(holds HoldStore, hires HireStore, policy *Policy, notifier Notifier) *HoldService {
	return &HoldService{holds: holds, hires: hires, policy: policy, notifier: notifier}
}

// CreateHold резервирует сумму клиента под найм или этап.
// Повторный холд на тот же (hire, milestone) возвращает ErrDuplicateHold.
func (s *HoldService) CreateHold(ctx context.Context, hire *models.Hire, milestoneID *uuid.UUID, amount decimal.Decimal) (*models.CoinHold, error) {
	amount, err := valueobject.NewAmount(amount)
	if err != nil {
		return nil, err
	}
	hold := &models.CoinHold{
		HireID:      hire.ID,
		MilestoneID: milestoneID,
		ClientID:    hire.ClientID,
		Amount:      amount,
	}
	if err := s.holds.Create(ctx, hold); err != nil {
		return nil, err
	}

	metrics.Escrow().ObserveLedgerMutation(models.TxTypeHold)
	metrics.Escrow().ObserveHoldTransition(string(valueobject.HoldStatusHeld))
	holdLog(hold).Info("hold created")
	return hold, nil
}

// ReleaseHold ручное освобождение холда администратором, например после решённого спора.
func (s *HoldService) ReleaseHold(ctx context.Context, actor Actor, holdID uuid.UUID) (*models.CoinHold, error) {
	if err := s.policy.Authorize(actor, OpManageHold, RelNone); err != nil {
		return nil, err
	}
	hold, hire, err := s.load(ctx, holdID)
	if err != nil {
		return nil, err
	}

	released, err := s.holds.Release(ctx, hold.ID, hire.FreelancerID, models.TxTypeRelease, "released by admin")
	if err != nil {
		return nil, err
	}
	s.transitioned(released, actor.ID)

	data := map[string]interface{}{"hold_id": released.ID, "hire_id": hire.ID, "amount": released.Amount}
	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypePayment, "hold_released", data)
	s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypePayment, "hold_released", data)
	return released, nil
}

// RefundHold ручной возврат суммы холда клиенту.
func (s *HoldService) RefundHold(ctx context.Context, actor Actor, holdID uuid.UUID) (*models.CoinHold, error) {
	if err := s.policy.Authorize(actor, OpManageHold, RelNone); err != nil {
		return nil, err
	}
	hold, hire, err := s.load(ctx, holdID)
	if err != nil {
		return nil, err
	}

	refunded, err := s.holds.Refund(ctx, hold.ID, hire.FreelancerID)
	if err != nil {
		return nil, err
	}
	s.transitioned(refunded, actor.ID)

	data := map[string]interface{}{"hold_id": refunded.ID, "hire_id": hire.ID, "amount": refunded.Amount}
	s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypePayment, "hold_refunded", data)
	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypePayment, "hold_refunded", data)
	return refunded, nil
}

func (s *HoldService) load(ctx context.Context, holdID uuid.UUID) (*models.CoinHold, *models.Hire, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, nil, err
	}
	hire, err := s.hires.GetByID(ctx, hold.HireID)
	if err != nil {
		return nil, nil, err
	}
	return hold, hire, nil
}

func (s *HoldService) transitioned(hold *models.CoinHold, actorID uuid.UUID) {
	metrics.Escrow().ObserveHoldTransition(string(hold.Status))
	holdLog(hold).WithField("actor_id", actorID).Info("hold transitioned")
}

func holdLog(hold *models.CoinHold) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"hold_id": hold.ID,
		"hire_id": hold.HireID,
		"status":  hold.Status,
		"amount":  hold.Amount,
	})
}
