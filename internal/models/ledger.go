package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы записей журнала монет
const (
	TxTypeCredit          = "credit"
	TxTypeDebit           = "debit"
	TxTypeTransfer        = "transfer"
	TxTypeHold            = "hold"
	TxTypePayment         = "payment"
	TxTypeMilestonePay    = "milestone_payment"
	TxTypeFreeze          = "freeze"
	TxTypeRelease         = "release"
	TxTypeRefund          = "refund"
	TxTypeContractPayment = "contract_payment"
)

// CoinTransaction запись журнала. Фиксирует баланс счёта AccountID после операции.
type CoinTransaction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AccountID    uuid.UUID       `db:"account_id" json:"account_id"`
	FromUserID   *uuid.UUID      `db:"from_user_id" json:"from_user_id,omitempty"`
	ToUserID     *uuid.UUID      `db:"to_user_id" json:"to_user_id,omitempty"`
	HoldID       *uuid.UUID      `db:"hold_id" json:"hold_id,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Type         string          `db:"type" json:"type"`
	Note         string          `db:"note" json:"note"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balance_after"`
	FrozenAfter  decimal.Decimal `db:"frozen_after" json:"frozen_after"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// PaymentRecord запись журнала внеплатформенных выплат.
type PaymentRecord struct {
	ID                       uuid.UUID       `db:"id" json:"id"`
	HireID                   uuid.UUID       `db:"hire_id" json:"hire_id"`
	ContractID               uuid.UUID       `db:"contract_id" json:"contract_id"`
	ClientID                 uuid.UUID       `db:"client_id" json:"client_id"`
	FreelancerID             uuid.UUID       `db:"freelancer_id" json:"freelancer_id"`
	Amount                   decimal.Decimal `db:"amount" json:"amount"`
	Method                   string          `db:"method" json:"method"`
	ClientMarkedSent         bool            `db:"client_marked_sent" json:"client_marked_sent"`
	FreelancerMarkedReceived bool            `db:"freelancer_marked_received" json:"freelancer_marked_received"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
}
