package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
)

type Dispute struct {
	ID           uuid.UUID                 `db:"id" json:"id"`
	HireID       uuid.UUID                 `db:"hire_id" json:"hire_id"`
	ClientID     uuid.UUID                 `db:"client_id" json:"client_id"`
	FreelancerID uuid.UUID                 `db:"freelancer_id" json:"freelancer_id"`
	Reason       string                    `db:"reason" json:"reason"`
	ProofPath    *string                   `db:"proof_path" json:"proof_path,omitempty"`
	Status       valueobject.DisputeStatus `db:"status" json:"status"`
	Resolution   *string                   `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy   *uuid.UUID                `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt    time.Time                 `db:"created_at" json:"created_at"`
	ResolvedAt   *time.Time                `db:"resolved_at" json:"resolved_at,omitempty"`
}
