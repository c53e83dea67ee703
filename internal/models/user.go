package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

// User участник платформы с кошельком.
type User struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	Role          valueobject.Role `db:"role" json:"role"`
	FullName      string           `db:"full_name" json:"full_name"`
	AccountNumber string           `db:"account_number" json:"account_number"`
	CoinBalance   decimal.Decimal  `db:"coin_balance" json:"coin_balance"`
	FrozenBalance decimal.Decimal  `db:"frozen_balance" json:"frozen_balance"`
	IsVerified    bool             `db:"is_verified" json:"is_verified"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Wallet сводка балансов для страницы кошелька.
type Wallet struct {
	UserID        uuid.UUID       `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	CoinBalance   decimal.Decimal `json:"coin_balance"`
	FrozenBalance decimal.Decimal `json:"frozen_balance"`
	HeldTotal     decimal.Decimal `json:"held_total"`
}
