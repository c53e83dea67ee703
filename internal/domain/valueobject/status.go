package valueobject

import "github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"

// Role роль пользователя платформы.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	}
	return false
}

func NewRole(role string) (Role, error) {
	r := Role(role)
	if !r.IsValid() {
		return "", apperror.Validation("role")
	}
	return r, nil
}

// PaymentType способ оплаты работы.
type PaymentType string

const (
	PaymentTypeSingle    PaymentType = "single"
	PaymentTypeMilestone PaymentType = "milestone"
)

func (p PaymentType) IsValid() bool {
	return p == PaymentTypeSingle || p == PaymentTypeMilestone
}

// transitions общая проверка допустимости перехода по таблице.
func transitions[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "held"
	HoldStatusDisputed HoldStatus = "disputed"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusRefunded HoldStatus = "refunded"
)

var holdTransitions = map[HoldStatus][]HoldStatus{
	HoldStatusHeld:     {HoldStatusReleased, HoldStatusRefunded, HoldStatusDisputed},
	HoldStatusDisputed: {HoldStatusHeld, HoldStatusRefunded, HoldStatusReleased},
}

func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	return transitions(holdTransitions, s, next)
}

// IsTerminal released и refunded окончательны.
func (s HoldStatus) IsTerminal() bool {
	return s == HoldStatusReleased || s == HoldStatusRefunded
}

// IsActive активный холд блокирует создание второго холда на тот же ключ.
func (s HoldStatus) IsActive() bool {
	return s == HoldStatusHeld || s == HoldStatusDisputed
}

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusSubmitted MilestoneStatus = "submitted"
	MilestoneStatusApproved  MilestoneStatus = "approved"
	MilestoneStatusRejected  MilestoneStatus = "rejected"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:   {MilestoneStatusSubmitted},
	MilestoneStatusSubmitted: {MilestoneStatusApproved, MilestoneStatusRejected},
	MilestoneStatusRejected:  {MilestoneStatusSubmitted},
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	return transitions(milestoneTransitions, s, next)
}

type FinalStatus string

const (
	FinalStatusSubmitted FinalStatus = "submitted"
	FinalStatusApproved  FinalStatus = "approved"
	FinalStatusRejected  FinalStatus = "rejected"
)

func (s FinalStatus) CanTransitionTo(next FinalStatus) bool {
	return s == FinalStatusSubmitted && (next == FinalStatusApproved || next == FinalStatusRejected)
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusRejected DisputeStatus = "rejected"
)

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	return s == DisputeStatusOpen && (next == DisputeStatusResolved || next == DisputeStatusRejected)
}

type ContractStatus string

const (
	ContractStatusPendingDetails ContractStatus = "pending_details"
	ContractStatusPaymentSent    ContractStatus = "payment_sent"
	ContractStatusReleased       ContractStatus = "released"
)

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusPendingDetails: {ContractStatusPaymentSent},
	ContractStatusPaymentSent:    {ContractStatusReleased},
}

func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	return transitions(contractTransitions, s, next)
}

// MatchStatus состояние подбора фрилансера на заказ.
type MatchStatus string

const (
	MatchStatusMatched MatchStatus = "matched"
	MatchStatusHired   MatchStatus = "hired"
)

// PaymentMethod способ внеплатформенной оплаты по контракту.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCrypto       PaymentMethod = "crypto"
	PaymentMethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCrypto, PaymentMethodOther:
		return true
	}
	return false
}
