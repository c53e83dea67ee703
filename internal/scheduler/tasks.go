// Package scheduler запускает фоновые проходы автоосвобождения холдов через asynq.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Типы задач
const (
	TypeSweepStaleHolds      = "sweep:stale_holds"
	TypeSweepUnconfirmedWork = "sweep:unconfirmed_work"

	QueueCritical = "critical"
)

// Sweeper выполняет проходы автоосвобождения.
type Sweeper interface {
	SweepStaleHolds(ctx context.Context) (service.SweepReport, error)
	SweepUnconfirmedWork(ctx context.Context) (service.SweepReport, error)
}

type sweepPayload struct {
	Policy string `json:"policy"`
}

// NewSweepTask создаёт задачу прохода для указанной политики.
func NewSweepTask(policy string) (*asynq.Task, error) {
	var taskType string
	switch policy {
	case service.PolicyStaleHolds:
		taskType = TypeSweepStaleHolds
	case service.PolicyUnconfirmedWork:
		taskType = TypeSweepUnconfirmedWork
	default:
		return nil, fmt.Errorf("unknown sweep policy %q", policy)
	}
	payload, err := json.Marshal(sweepPayload{Policy: policy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, payload), nil
}

// Handlers обработчики задач прохода.
type Handlers struct {
	sweeper Sweeper
}

// NewHandlers создаёт обработчики.
func NewHandlers(sweeper Sweeper) *Handlers {
	return &Handlers{sweeper: sweeper}
}

// HandleStaleHolds обрабатывает sweep:stale_holds.
func (h *Handlers) HandleStaleHolds(ctx context.Context, t *asynq.Task) error {
	return h.handle(ctx, t, h.sweeper.SweepStaleHolds)
}

// HandleUnconfirmedWork обрабатывает sweep:unconfirmed_work.
func (h *Handlers) HandleUnconfirmedWork(ctx context.Context, t *asynq.Task) error {
	return h.handle(ctx, t, h.sweeper.SweepUnconfirmedWork)
}

// handle ошибка выборки уходит в ретрай asynq, сбои отдельных холдов только логируются.
func (h *Handlers) handle(ctx context.Context, t *asynq.Task, sweep func(context.Context) (service.SweepReport, error)) error {
	started := time.Now()
	report, err := sweep(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", t.Type(), err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task":      t.Type(),
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"took":      time.Since(started).String(),
	}).Info("sweep finished")
	return nil
}

// Register регистрирует обработчики в mux.
func Register(mux *asynq.ServeMux, h *Handlers) {
	mux.HandleFunc(TypeSweepStaleHolds, h.HandleStaleHolds)
	mux.HandleFunc(TypeSweepUnconfirmedWork, h.HandleUnconfirmedWork)
}

// Schedule ставит оба прохода в периодическое расписание. Unique не даёт копиться задачам,
// если предыдущий проход ещё в очереди.
func Schedule(s *asynq.Scheduler, interval time.Duration) error {
	cronspec := fmt.Sprintf("@every %s", interval)
	for _, policy := range []string{service.PolicyStaleHolds, service.PolicyUnconfirmedWork} {
		task, err := NewSweepTask(policy)
		if err != nil {
			return err
		}
		entryID, err := s.Register(cronspec, task, asynq.Queue(QueueCritical), asynq.Unique(interval), asynq.MaxRetry(3))
		if err != nil {
			return fmt.Errorf("register %s: %w", task.Type(), err)
		}
		logger.Log.WithFields(logrus.Fields{"task": task.Type(), "entry_id": entryID, "cronspec": cronspec}).Info("sweep scheduled")
	}
	return nil
}
