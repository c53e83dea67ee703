package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Адресаты уведомлений. Широковещательная рассылка администраторам отдельный вид, а не user_id = NULL.
const (
	AudienceUser   = "user"
	AudienceAdmins = "admins"
)

// Типы уведомлений
const (
	NotificationTypeMilestone = "milestone"
	NotificationTypeDispute   = "dispute"
	NotificationTypePayment   = "payment"
	NotificationTypeAction    = "action"
	NotificationTypeInfo      = "info"
)

type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Audience  string          `db:"audience" json:"audience"`
	UserID    *uuid.UUID      `db:"user_id" json:"user_id,omitempty"`
	Type      string          `db:"type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
