package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// Publisher доставляет сохранённое уведомление подключённым клиентам.
type Publisher interface {
	Publish(notification *models.Notification)
}

// NotificationService сохраняет уведомления и раздаёт их в реальном времени.
type NotificationService struct {
	repo      NotificationStore
	publisher Publisher
}

// NewNotificationService создаёт новый сервис уведомлений. publisher может быть nil.
func NewNotificationService(repo NotificationStore, publisher Publisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher}
}

// Notify уведомляет пользователя. Ошибка только логируется.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind, event string, data interface{}) {
	s.deliver(ctx, &models.Notification{Audience: models.AudienceUser, UserID: &userID, Type: kind}, event, data)
}

// NotifyAdmins отправляет уведомление в общую ленту администраторов.
func (s *NotificationService) NotifyAdmins(ctx context.Context, kind, event string, data interface{}) {
	s.deliver(ctx, &models.Notification{Audience: models.AudienceAdmins, Type: kind}, event, data)
}

func (s *NotificationService) deliver(ctx context.Context, notification *models.Notification, event string, data interface{}) {
	if _, err := s.create(ctx, notification, event, data); err != nil {
		metrics.Escrow().ObserveSideEffectFailure("notification")
		logger.Log.WithFields(logrus.Fields{
			"audience": notification.Audience,
			"event":    event,
		}).WithError(err).Warn("notification dropped")
		return
	}
	if s.publisher != nil {
		s.publisher.Publish(notification)
	}
}

func (s *NotificationService) create(ctx context.Context, notification *models.Notification, event string, data interface{}) (*models.Notification, error) {
	payload := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}
	notification.Payload = payloadBytes

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// ListNotifications возвращает уведомления пользователя; администратор видит и общую ленту.
func (s *NotificationService) ListNotifications(ctx context.Context, actor Actor, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, actor.ID, actor.IsAdmin(), limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление как прочитанное.
// Общая лента администраторов отмечается для всех администраторов сразу.
func (s *NotificationService) MarkAsRead(ctx context.Context, actor Actor, id uuid.UUID) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !canSee(actor, notification) {
		return apperror.ErrForbidden
	}

	return s.repo.MarkAsRead(ctx, id)
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, actor Actor) (int, error) {
	return s.repo.CountUnread(ctx, actor.ID, actor.IsAdmin())
}

func canSee(actor Actor, n *models.Notification) bool {
	if n.Audience == models.AudienceAdmins {
		return actor.IsAdmin()
	}
	return n.UserID != nil && *n.UserID == actor.ID
}
