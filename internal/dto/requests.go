package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenAccountRequest открытие счёта администратором.
type OpenAccountRequest struct {
	Role     string `json:"role" binding:"required,oneof=client freelancer admin"`
	FullName string `json:"full_name" binding:"required,max=200"`
}

// TransferRequest перевод монет по номеру счёта.
type TransferRequest struct {
	ToAccountNumber string          `json:"to_account_number" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Note            string          `json:"note" binding:"max=500"`
}

// LedgerAdjustRequest ручное пополнение или списание администратором.
type LedgerAdjustRequest struct {
	UserID uuid.UUID       `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" binding:"max=500"`
}

// MilestoneRequest этап заказа.
type MilestoneRequest struct {
	Title  string          `json:"title" binding:"required,max=200"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateJobRequest создание заказа.
type CreateJobRequest struct {
	Title       string             `json:"title" binding:"required,max=200"`
	PaymentType string             `json:"payment_type" binding:"required,oneof=single milestone"`
	Budget      decimal.Decimal    `json:"budget"`
	Milestones  []MilestoneRequest `json:"milestones" binding:"omitempty,dive"`
}

// CreateMatchRequest подбор фрилансера на заказ.
type CreateMatchRequest struct {
	JobID        uuid.UUID `json:"job_id" binding:"required"`
	FreelancerID uuid.UUID `json:"freelancer_id" binding:"required"`
}

// SecureHireRequest найм подобранного фрилансера.
type SecureHireRequest struct {
	FreelancerID uuid.UUID `json:"freelancer_id" binding:"required"`
}

// SubmitFinalRequest итоговая сдача работы.
type SubmitFinalRequest struct {
	FileURL string `json:"file_url" binding:"required,url"`
	Message string `json:"message" binding:"max=2000"`
}

// ReviewRequest решение администратора или клиента.
type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason" binding:"max=2000"`
}

// RejectRequest причина отклонения.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

// DecisionRequest заметка администратора к решению по спору.
type DecisionRequest struct {
	Note string `json:"note" binding:"max=2000"`
}

// CreateContractRequest внеплатформенный контракт.
type CreateContractRequest struct {
	HireID            uuid.UUID       `json:"hire_id" binding:"required"`
	FinalSubmissionID uuid.UUID       `json:"final_submission_id" binding:"required"`
	PaymentMethod     string          `json:"payment_method" binding:"required,oneof=bank_transfer crypto other"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}
