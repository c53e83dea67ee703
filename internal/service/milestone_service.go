package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
	"github.com/ignatzorin/tasknory-backend/internal/validation"
)

// MilestoneService сдача, принятие и отклонение этапов.
type MilestoneService struct {
	jobs     JobStore
	hires    HireStore
	proofs   ProofStore
	policy   *Policy
	notifier Notifier
	now      func() time.Time
}

// NewMilestoneService создаёт сервис.
func NewMilestoneService(jobs JobStore, hires HireStore, proofs ProofStore, policy *Policy, notifier Notifier) *MilestoneService {
	return &MilestoneService{
		jobs:     jobs,
		hires:    hires,
		proofs:   proofs,
		policy:   policy,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit сдаёт этап. Файл, если передан, загружается в хранилище и заменяет ссылку.
func (s *MilestoneService) Submit(ctx context.Context, actor Actor, milestoneID uuid.UUID, fileURL, message string, file *ProofFile) (*models.Milestone, error) {
	milestone, hire, err := s.load(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpSubmitMilestone, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}

	if file != nil {
		path := storage.MilestoneSubmissionPath(milestone.JobID, milestone.ID, file.Name, s.now())
		stored, err := s.proofs.Upload(ctx, path, file.Data, file.ContentType)
		if err != nil {
			return nil, fmt.Errorf("milestone service: upload submission %w", err)
		}
		fileURL = stored
	}
	fileURL, err = validation.Text("file_url", fileURL, true, validation.MaxURLLength)
	if err != nil {
		return nil, err
	}
	message, err = validation.Text("message", message, false, validation.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	submitted, err := s.jobs.SubmitMilestone(ctx, milestone.ID, actor.ID, fileURL, message)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypeMilestone, "milestone_submitted", map[string]interface{}{
		"milestone_id": submitted.ID,
		"hire_id":      hire.ID,
		"title":        submitted.Title,
	})
	return submitted, nil
}

// Approve принимает этап и освобождает его холд фрилансеру.
func (s *MilestoneService) Approve(ctx context.Context, actor Actor, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, hire, err := s.load(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpReviewMilestone, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}

	approved, hold, err := s.jobs.ApproveMilestone(ctx, milestone.ID, hire.FreelancerID)
	if err != nil {
		return nil, err
	}

	metrics.Escrow().ObserveLedgerMutation(models.TxTypeMilestonePay)
	metrics.Escrow().ObserveHoldTransition(string(hold.Status))
	logger.Log.WithFields(logrus.Fields{
		"milestone_id": approved.ID,
		"hold_id":      hold.ID,
		"hire_id":      hire.ID,
		"amount":       hold.Amount,
	}).Info("milestone approved")

	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypeMilestone, "milestone_approved", map[string]interface{}{
		"milestone_id": approved.ID,
		"hire_id":      hire.ID,
		"amount":       hold.Amount,
	})
	return approved, nil
}

// Reject отклоняет этап с причиной. Холд остаётся held.
func (s *MilestoneService) Reject(ctx context.Context, actor Actor, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	milestone, hire, err := s.load(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpReviewMilestone, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	reason, err = validation.Text("reason", reason, true, validation.MaxReasonLength)
	if err != nil {
		return nil, err
	}

	rejected, err := s.jobs.RejectMilestone(ctx, milestone.ID, reason)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypeMilestone, "milestone_rejected", map[string]interface{}{
		"milestone_id": rejected.ID,
		"hire_id":      hire.ID,
		"reason":       reason,
	})
	return rejected, nil
}

func (s *MilestoneService) load(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Hire, error) {
	milestone, err := s.jobs.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	hire, err := s.hires.GetByJob(ctx, milestone.JobID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.InvalidState("job has no hire")
		}
		return nil, nil, err
	}
	return milestone, hire, nil
}
