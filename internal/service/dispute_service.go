package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
	"github.com/ignatzorin/tasknory-backend/internal/validation"
)

var errNoProof = apperror.New(apperror.ErrCodeNotFound, "dispute has no proof")

// DisputeOutcome итог решения по спору.
type DisputeOutcome struct {
	Dispute *models.Dispute   `json:"dispute"`
	Holds   []models.CoinHold `json:"holds"`
}

// DisputeService споры по найму.
type DisputeService struct {
	disputes DisputeStore
	hires    HireStore
	holds    HoldStore
	jobs     JobStore
	proofs   ProofStore
	policy   *Policy
	notifier Notifier
	proofTTL time.Duration
	now      func() time.Time
}

// NewDisputeService создаёт сервис. proofTTL срок жизни подписанной ссылки на доказательство.
func NewDisputeService(disputes DisputeStore, hires HireStore, holds HoldStore, jobs JobStore, proofs ProofStore, policy *Policy, notifier Notifier, proofTTL time.Duration) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		hires:    hires,
		holds:    holds,
		jobs:     jobs,
		proofs:   proofs,
		policy:   policy,
		notifier: notifier,
		proofTTL: proofTTL,
		now:      time.Now,
	}
}

// Raise открывает спор по найму и замораживает его held-холды.
// Ошибка загрузки доказательства логируется, спор остаётся открытым.
func (s *DisputeService) Raise(ctx context.Context, actor Actor, hireID uuid.UUID, reason string, proof *ProofFile) (*models.Dispute, error) {
	hire, err := s.hires.GetByID(ctx, hireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpRaiseDispute, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	reason, err = validation.Text("reason", reason, true, validation.MaxReasonLength)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDisputable(ctx, hire); err != nil {
		return nil, err
	}

	dispute := &models.Dispute{
		HireID:       hire.ID,
		ClientID:     hire.ClientID,
		FreelancerID: hire.FreelancerID,
		Reason:       reason,
	}
	holds, err := s.disputes.Open(ctx, dispute)
	if err != nil {
		return nil, err
	}
	for range holds {
		metrics.Escrow().ObserveHoldTransition(string(valueobject.HoldStatusDisputed))
	}
	s.log(dispute).WithField("holds", len(holds)).Info("dispute raised")

	if proof != nil {
		s.attachProof(ctx, dispute, proof)
	}

	data := map[string]interface{}{"dispute_id": dispute.ID, "hire_id": hire.ID}
	s.notifier.NotifyAdmins(ctx, models.NotificationTypeDispute, "dispute_raised", data)
	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypeDispute, "dispute_raised", data)
	return dispute, nil
}

// ensureDisputable разовый найм оспаривается после принятия итоговой сдачи, этапный при сданном или отклонённом этапе.
func (s *DisputeService) ensureDisputable(ctx context.Context, hire *models.Hire) error {
	holds, err := s.holds.ListByHire(ctx, hire.ID)
	if err != nil {
		return err
	}

	if hire.HireType == valueobject.PaymentTypeSingle {
		final, err := s.hires.LatestFinal(ctx, hire.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.InvalidState("no final submission to dispute")
			}
			return err
		}
		if final.Status != valueobject.FinalStatusApproved {
			return apperror.InvalidState("final submission is " + string(final.Status))
		}
		for _, h := range holds {
			if h.MilestoneID == nil && h.Status == valueobject.HoldStatusHeld {
				return nil
			}
		}
		return apperror.InvalidState("no held funds for hire")
	}

	for _, h := range holds {
		if h.MilestoneID == nil || h.Status != valueobject.HoldStatusHeld {
			continue
		}
		m, err := s.jobs.GetMilestone(ctx, *h.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status == valueobject.MilestoneStatusSubmitted || m.Status == valueobject.MilestoneStatusRejected {
			return nil
		}
	}
	return apperror.InvalidState("no submitted milestone with held funds")
}

func (s *DisputeService) attachProof(ctx context.Context, dispute *models.Dispute, proof *ProofFile) {
	path := storage.DisputeProofPath(dispute.ID, proof.Name, s.now())
	stored, err := s.proofs.Upload(ctx, path, proof.Data, proof.ContentType)
	if err == nil {
		err = s.disputes.SetProofPath(ctx, dispute.ID, stored)
	}
	if err != nil {
		metrics.Escrow().ObserveSideEffectFailure("proof_upload")
		s.log(dispute).WithError(err).Warn("dispute proof not stored")
		return
	}
	dispute.ProofPath = &stored
}

// Resolve закрывает спор и возвращает холды в held для ручного решения администратором.
func (s *DisputeService) Resolve(ctx context.Context, actor Actor, disputeID uuid.UUID, note string) (*DisputeOutcome, error) {
	if err := s.policy.Authorize(actor, OpDecideDispute, RelNone); err != nil {
		return nil, err
	}
	note, err := validation.Text("note", note, false, validation.MaxNoteLength)
	if err != nil {
		return nil, err
	}
	dispute, holds, err := s.disputes.Resolve(ctx, disputeID, actor.ID, note)
	if err != nil {
		return nil, err
	}
	for range holds {
		metrics.Escrow().ObserveHoldTransition(string(valueobject.HoldStatusHeld))
	}
	s.log(dispute).WithField("holds", len(holds)).Info("dispute resolved")

	s.notifyParties(ctx, dispute, "dispute_resolved")
	return &DisputeOutcome{Dispute: dispute, Holds: holds}, nil
}

// Reject отклоняет спор; суммы его холдов возвращаются клиенту.
func (s *DisputeService) Reject(ctx context.Context, actor Actor, disputeID uuid.UUID, note string) (*DisputeOutcome, error) {
	if err := s.policy.Authorize(actor, OpDecideDispute, RelNone); err != nil {
		return nil, err
	}
	current, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	note, err = validation.Text("note", note, false, validation.MaxNoteLength)
	if err != nil {
		return nil, err
	}
	dispute, holds, err := s.disputes.Reject(ctx, disputeID, actor.ID, note, current.FreelancerID)
	if err != nil {
		return nil, err
	}
	for range holds {
		metrics.Escrow().ObserveLedgerMutation(models.TxTypeRefund)
		metrics.Escrow().ObserveHoldTransition(string(valueobject.HoldStatusRefunded))
	}
	s.log(dispute).WithField("holds", len(holds)).Info("dispute rejected, holds refunded")

	s.notifyParties(ctx, dispute, "dispute_rejected")
	return &DisputeOutcome{Dispute: dispute, Holds: holds}, nil
}

// ListOpen открытые споры.
func (s *DisputeService) ListOpen(ctx context.Context, actor Actor, limit, offset int) ([]models.Dispute, error) {
	if err := s.policy.Authorize(actor, OpListDisputes, RelNone); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.disputes.ListOpen(ctx, limit, offset)
}

// ProofURL подписанная ссылка на доказательство для сторон спора и администратора.
func (s *DisputeService) ProofURL(ctx context.Context, actor Actor, disputeID uuid.UUID) (string, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return "", err
	}
	if err := s.policy.Authorize(actor, OpViewDisputeProof, RelationTo(actor, dispute.ClientID, dispute.FreelancerID)); err != nil {
		return "", err
	}
	if dispute.ProofPath == nil || *dispute.ProofPath == "" {
		return "", errNoProof
	}
	return s.proofs.SignedURL(ctx, *dispute.ProofPath, s.proofTTL)
}

func (s *DisputeService) notifyParties(ctx context.Context, dispute *models.Dispute, event string) {
	data := map[string]interface{}{
		"dispute_id": dispute.ID,
		"hire_id":    dispute.HireID,
		"status":     dispute.Status,
	}
	s.notifier.Notify(ctx, dispute.ClientID, models.NotificationTypeDispute, event, data)
	s.notifier.Notify(ctx, dispute.FreelancerID, models.NotificationTypeDispute, event, data)
}

func (s *DisputeService) log(dispute *models.Dispute) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"dispute_id": dispute.ID,
		"hire_id":    dispute.HireID,
		"status":     dispute.Status,
	})
}
