package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/models"
)

// UserStore хранилище пользователей.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByAccountNumber(ctx context.Context, number string) (*models.User, error)
	HeldTotal(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error)
}

// LedgerStore атомарные изменения балансов с записью в журнал.
type LedgerStore interface {
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error)
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CoinTransaction, error)
}

// HoldStore хранилище холдов.
type HoldStore interface {
	Create(ctx context.Context, hold *models.CoinHold) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CoinHold, error)
	ListByHire(ctx context.Context, hireID uuid.UUID) ([]models.CoinHold, error)
	Release(ctx context.Context, holdID, freelancerID uuid.UUID, txType, note string) (*models.CoinHold, error)
	Refund(ctx context.Context, holdID, freelancerID uuid.UUID) (*models.CoinHold, error)
	ListEligible(ctx context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error)
	ListUnconfirmedWork(ctx context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error)
}

// JobStore заказы, этапы и подборы.
type JobStore interface {
	Create(ctx context.Context, job *models.Job, milestones []models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListMilestones(ctx context.Context, jobID uuid.UUID) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	SubmitMilestone(ctx context.Context, milestoneID, freelancerID uuid.UUID, fileURL, message string) (*models.Milestone, error)
	ApproveMilestone(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, *models.CoinHold, error)
	RejectMilestone(ctx context.Context, milestoneID uuid.UUID, reason string) (*models.Milestone, error)
	CreateMatch(ctx context.Context, match *models.JobMatch) error
	GetMatch(ctx context.Context, jobID, freelancerID uuid.UUID) (*models.JobMatch, error)
}

// HireStore наймы и итоговые сдачи.
type HireStore interface {
	Create(ctx context.Context, hire *models.Hire, holds []models.CoinHold) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hire, error)
	GetByJob(ctx context.Context, jobID uuid.UUID) (*models.Hire, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Hire, error)
	CreateFinal(ctx context.Context, final *models.FinalSubmission) error
	GetFinal(ctx context.Context, id uuid.UUID) (*models.FinalSubmission, error)
	LatestFinal(ctx context.Context, hireID uuid.UUID) (*models.FinalSubmission, error)
	ApproveFinal(ctx context.Context, finalID, freelancerID uuid.UUID, at time.Time) (*models.FinalSubmission, *models.CoinHold, error)
	RejectFinal(ctx context.Context, finalID uuid.UUID, reason string) (*models.FinalSubmission, error)
}

// DisputeStore споры.
type DisputeStore interface {
	Open(ctx context.Context, dispute *models.Dispute) ([]models.CoinHold, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	SetProofPath(ctx context.Context, id uuid.UUID, path string) error
	Resolve(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Dispute, []models.CoinHold, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, note string, freelancerID uuid.UUID) (*models.Dispute, []models.CoinHold, error)
}

// ContractStore внеплатформенные контракты.
type ContractStore interface {
	Create(ctx context.Context, contract *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	AddDetails(ctx context.Context, details *models.PaymentDetails) error
	GetDetails(ctx context.Context, id uuid.UUID) (*models.PaymentDetails, error)
	LatestDetails(ctx context.Context, contractID uuid.UUID) (*models.PaymentDetails, error)
	VerifyDetails(ctx context.Context, id uuid.UUID) (*models.PaymentDetails, error)
	MarkSent(ctx context.Context, id uuid.UUID, proofPath *string) (*models.Contract, error)
	MarkReceived(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Release(ctx context.Context, id uuid.UUID) (*models.Contract, *models.CoinTransaction, error)
	ListAwaitingRelease(ctx context.Context, limit, offset int) ([]models.Contract, error)
}

// NotificationStore хранилище уведомлений.
type NotificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, includeAdmins bool, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID, includeAdmins bool) (int, error)
}

// ProofStore объектное хранилище для доказательств и файлов сдачи.
type ProofStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Sealer шифрует реквизиты перед сохранением.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Notifier отправка уведомлений. Ошибки доставки не возвращаются вызывающему.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind, event string, data interface{})
	NotifyAdmins(ctx context.Context, kind, event string, data interface{})
}

// ProofFile загруженный файл, уже проверенный по сигнатуре.
type ProofFile struct {
	Name        string
	ContentType string
	Data        []byte
}
