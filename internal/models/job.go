package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

// Job заказ клиента.
type Job struct {
	ID          uuid.UUID               `db:"id" json:"id"`
	ClientID    uuid.UUID               `db:"client_id" json:"client_id"`
	Title       string                  `db:"title" json:"title"`
	Budget      decimal.Decimal         `db:"budget" json:"budget"`
	PaymentType valueobject.PaymentType `db:"payment_type" json:"payment_type"`
	Approved    bool                    `db:"approved" json:"approved"`
	CreatedAt   time.Time               `db:"created_at" json:"created_at"`
}

// Milestone этап заказа с отдельной оплатой.
type Milestone struct {
	ID              uuid.UUID                   `db:"id" json:"id"`
	JobID           uuid.UUID                   `db:"job_id" json:"job_id"`
	Sequence        int                         `db:"sequence" json:"sequence"`
	Title           string                      `db:"title" json:"title"`
	Amount          decimal.Decimal             `db:"amount" json:"amount"`
	Status          valueobject.MilestoneStatus `db:"status" json:"status"`
	SubmissionURL   *string                     `db:"submission_url" json:"submission_url,omitempty"`
	RejectionReason *string                     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time                  `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time                  `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt       time.Time                   `db:"created_at" json:"created_at"`
}

// MilestoneSubmission история сдач этапа.
type MilestoneSubmission struct {
	ID           uuid.UUID `db:"id" json:"id"`
	MilestoneID  uuid.UUID `db:"milestone_id" json:"milestone_id"`
	FreelancerID uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	FileURL      string    `db:"file_url" json:"file_url"`
	Message      string    `db:"message" json:"message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// JobMatch подбор фрилансера администратором.
type JobMatch struct {
	ID           uuid.UUID               `db:"id" json:"id"`
	JobID        uuid.UUID               `db:"job_id" json:"job_id"`
	FreelancerID uuid.UUID               `db:"freelancer_id" json:"freelancer_id"`
	Status       valueobject.MatchStatus `db:"status" json:"status"`
	CreatedAt    time.Time               `db:"created_at" json:"created_at"`
}
