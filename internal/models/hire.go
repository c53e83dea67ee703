package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

// Hire найм фрилансера на заказ. Один на заказ.
type Hire struct {
	ID           uuid.UUID               `db:"id" json:"id"`
	JobID        uuid.UUID               `db:"job_id" json:"job_id"`
	ClientID     uuid.UUID               `db:"client_id" json:"client_id"`
	FreelancerID uuid.UUID               `db:"freelancer_id" json:"freelancer_id"`
	HireType     valueobject.PaymentType `db:"hire_type" json:"hire_type"`
	CreatedAt    time.Time               `db:"created_at" json:"created_at"`
}

// FinalSubmission итоговая сдача работы по разовому заказу.
type FinalSubmission struct {
	ID              uuid.UUID               `db:"id" json:"id"`
	HireID          uuid.UUID               `db:"hire_id" json:"hire_id"`
	FreelancerID    uuid.UUID               `db:"freelancer_id" json:"freelancer_id"`
	FileURL         string                  `db:"file_url" json:"file_url"`
	Message         string                  `db:"message" json:"message"`
	Status          valueobject.FinalStatus `db:"status" json:"status"`
	RejectionReason *string                 `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time               `db:"submitted_at" json:"submitted_at"`
	ReviewedAt      *time.Time              `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// HireSummary найм со всеми холдами и этапами.
type HireSummary struct {
	Hire       Hire        `json:"hire"`
	Job        Job         `json:"job"`
	Holds      []CoinHold  `json:"holds"`
	Milestones []Milestone `json:"milestones,omitempty"`
	Completed  bool        `json:"completed"`
}
