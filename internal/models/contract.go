package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

// Contract внеплатформенная оплата по принятой итоговой сдаче.
type Contract struct {
	ID                       uuid.UUID                  `db:"id" json:"id"`
	HireID                   uuid.UUID                  `db:"hire_id" json:"hire_id"`
	FinalSubmissionID        uuid.UUID                  `db:"final_submission_id" json:"final_submission_id"`
	ClientID                 uuid.UUID                  `db:"client_id" json:"client_id"`
	FreelancerID             uuid.UUID                  `db:"freelancer_id" json:"freelancer_id"`
	PaymentMethod            valueobject.PaymentMethod  `db:"payment_method" json:"payment_method"`
	TotalAmount              decimal.Decimal            `db:"total_amount" json:"total_amount"`
	Status                   valueobject.ContractStatus `db:"status" json:"status"`
	ClientMarkedSent         bool                       `db:"client_marked_sent" json:"client_marked_sent"`
	FreelancerMarkedReceived bool                       `db:"freelancer_marked_received" json:"freelancer_marked_received"`
	AdminConfirmed           bool                       `db:"admin_confirmed" json:"admin_confirmed"`
	ProofPath                *string                    `db:"proof_path" json:"proof_path,omitempty"`
	CreatedAt                time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time                  `db:"updated_at" json:"updated_at"`
	ReleasedAt               *time.Time                 `db:"released_at" json:"released_at,omitempty"`
}

// PaymentDetails реквизиты фрилансера. SealedDetails зашифрованы и наружу не отдаются.
type PaymentDetails struct {
	ID            uuid.UUID                 `db:"id" json:"id"`
	ContractID    uuid.UUID                 `db:"contract_id" json:"contract_id"`
	FreelancerID  uuid.UUID                 `db:"freelancer_id" json:"freelancer_id"`
	Method        valueobject.PaymentMethod `db:"method" json:"method"`
	SealedDetails []byte                    `db:"sealed_details" json:"-"`
	ProofPath     *string                   `db:"proof_path" json:"proof_path,omitempty"`
	Verified      bool                      `db:"verified" json:"verified"`
	CreatedAt     time.Time                 `db:"created_at" json:"created_at"`
}
