package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// Политики фоновых проходов.
const (
	PolicyStaleHolds       = "stale_holds"
	PolicyUnconfirmedWork  = "unconfirmed_work"
	defaultSweepBatchLimit = 200
)

// SweepReport итог прохода. Каждый холд обрабатывается отдельно.
type SweepReport struct {
	Policy    string `json:"policy"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// SweepService автоосвобождение холдов по истечении окна.
type SweepService struct {
	holds    HoldStore
	hires    HireStore
	policy   *Policy
	notifier Notifier
	window   time.Duration
	batch    int
	now      func() time.Time
}

// NewSweepService создаёт сервис. window окно ожидания, batch максимум холдов за проход.
func NewSweepService(holds HoldStore, hires HireStore, policy *Policy, notifier Notifier, window time.Duration, batch int) *SweepService {
	if batch <= 0 {
		batch = defaultSweepBatchLimit
	}
	return &SweepService{
		holds:    holds,
		hires:    hires,
		policy:   policy,
		notifier: notifier,
		window:   window,
		batch:    batch,
		now:      time.Now,
	}
}

// SweepStaleHolds переносит во spendable холды, которые лежат во frozen дольше окна.
func (s *SweepService) SweepStaleHolds(ctx context.Context) (SweepReport, error) {
	cutoff := s.now().Add(-s.window)
	holds, err := s.holds.ListEligible(ctx, cutoff, s.batch)
	if err != nil {
		return SweepReport{Policy: PolicyStaleHolds}, err
	}
	return s.run(ctx, PolicyStaleHolds, holds, models.TxTypeRelease, "stale hold released"), nil
}

// SweepUnconfirmedWork освобождает оплату по принятой работе, которую клиент не подтвердил в течение окна.
func (s *SweepService) SweepUnconfirmedWork(ctx context.Context) (SweepReport, error) {
	cutoff := s.now().Add(-s.window)
	holds, err := s.holds.ListUnconfirmedWork(ctx, cutoff, s.batch)
	if err != nil {
		return SweepReport{Policy: PolicyUnconfirmedWork}, err
	}
	return s.run(ctx, PolicyUnconfirmedWork, holds, models.TxTypePayment, "work auto-confirmed"), nil
}

// RunSweep ручной запуск прохода администратором.
func (s *SweepService) RunSweep(ctx context.Context, actor Actor, policy string) (SweepReport, error) {
	if err := s.policy.Authorize(actor, OpRunSweep, RelNone); err != nil {
		return SweepReport{Policy: policy}, err
	}
	switch policy {
	case PolicyStaleHolds:
		return s.SweepStaleHolds(ctx)
	case PolicyUnconfirmedWork:
		return s.SweepUnconfirmedWork(ctx)
	}
	return SweepReport{Policy: policy}, apperror.Validation("policy")
}

func (s *SweepService) run(ctx context.Context, policy string, holds []models.CoinHold, txType, note string) SweepReport {
	started := s.now()
	report := SweepReport{Policy: policy}

	for i := range holds {
		if ctx.Err() != nil {
			break
		}
		report.Processed++
		if err := s.releaseOne(ctx, &holds[i], txType, note, policy); err != nil {
			report.Failed++
			holdLog(&holds[i]).WithError(err).WithField("policy", policy).Error("sweep item failed")
			continue
		}
		report.Succeeded++
	}

	metrics.Escrow().ObserveSweep(policy, report.Succeeded, report.Failed, s.now().Sub(started).Seconds())
	logger.Log.WithFields(logrus.Fields{
		"policy":    policy,
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}).Info("sweep finished")
	return report
}

func (s *SweepService) releaseOne(ctx context.Context, hold *models.CoinHold, txType, note, policy string) error {
	hire, err := s.hires.GetByID(ctx, hold.HireID)
	if err != nil {
		return err
	}
	released, err := s.holds.Release(ctx, hold.ID, hire.FreelancerID, txType, note)
	if err != nil {
		return err
	}
	metrics.Escrow().ObserveLedgerMutation(txType)
	metrics.Escrow().ObserveHoldTransition(string(released.Status))

	data := map[string]interface{}{
		"hold_id": released.ID,
		"hire_id": hire.ID,
		"amount":  released.Amount,
		"policy":  policy,
	}
	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypePayment, "auto_released", data)
	if policy == PolicyUnconfirmedWork {
		s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypePayment, "auto_released", data)
	}
	return nil
}
