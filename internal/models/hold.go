package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

// CoinHold зарезервированная у клиента сумма под найм или этап.
// MilestoneID == nil означает холд разового заказа.
type CoinHold struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	HireID      uuid.UUID              `db:"hire_id" json:"hire_id"`
	MilestoneID *uuid.UUID             `db:"milestone_id" json:"milestone_id,omitempty"`
	ClientID    uuid.UUID              `db:"client_id" json:"client_id"`
	Amount      decimal.Decimal        `db:"amount" json:"amount"`
	Status      valueobject.HoldStatus `db:"status" json:"status"`
	DisputeID   *uuid.UUID             `db:"dispute_id" json:"dispute_id,omitempty"`
	AutoRelease bool                   `db:"auto_release" json:"auto_release"`
	EligibleAt  *time.Time             `db:"eligible_at" json:"eligible_at,omitempty"`
	ReleasedAt  *time.Time             `db:"released_at" json:"released_at,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

// IsFrozen сумма холда уже перенесена во frozen_balance фрилансера.
func (h CoinHold) IsFrozen() bool {
	return h.EligibleAt != nil
}
