package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/metrics"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/validation"
)

// MilestoneInput этап при создании заказа.
type MilestoneInput struct {
	Title  string
	Amount decimal.Decimal
}

// CreateJobInput данные нового заказа. Для этапного заказа бюджет равен сумме этапов.
type CreateJobInput struct {
	Title       string
	PaymentType valueobject.PaymentType
	Budget      decimal.Decimal
	Milestones  []MilestoneInput
}

// HireService заказы, подбор, найм и итоговые сдачи.
type HireService struct {
	users    UserStore
	jobs     JobStore
	hires    HireStore
	holds    HoldStore
	holdSvc  *HoldService
	policy   *Policy
	notifier Notifier
	window   time.Duration
	now      func() time.Time
}

// NewHireService создаёт сервис. window окно автоосвобождения после принятия работы.
func NewHireService(users UserStore, jobs JobStore, hires HireStore, holds HoldStore, holdSvc *HoldService, policy *Policy, notifier Notifier, window time.Duration) *HireService {
	return &HireService{
		users:    users,
		jobs:     jobs,
		hires:    hires,
		holds:    holds,
		holdSvc:  holdSvc,
		policy:   policy,
		notifier: notifier,
		window:   window,
		now:      time.Now,
	}
}

// CreateJob создаёт заказ клиента. Одобрение администратора требуется до подбора.
func (s *HireService) CreateJob(ctx context.Context, actor Actor, in CreateJobInput) (*models.Job, []models.Milestone, error) {
	if err := s.policy.Authorize(actor, OpCreateJob, RelNone); err != nil {
		return nil, nil, err
	}
	title, err := validation.Text("title", in.Title, true, validation.MaxTitleLength)
	if err != nil {
		return nil, nil, err
	}
	if !in.PaymentType.IsValid() {
		return nil, nil, apperror.Validation("payment_type")
	}

	var milestones []models.Milestone
	budget := in.Budget
	switch in.PaymentType {
	case valueobject.PaymentTypeMilestone:
		if len(in.Milestones) == 0 {
			return nil, nil, apperror.Validation("milestones")
		}
		amounts := make([]decimal.Decimal, 0, len(in.Milestones))
		for i, m := range in.Milestones {
			amount, err := valueobject.NewAmount(m.Amount)
			if err != nil {
				return nil, nil, err
			}
			mTitle, err := validation.Text("milestone title", m.Title, true, validation.MaxTitleLength)
			if err != nil {
				return nil, nil, err
			}
			amounts = append(amounts, amount)
			milestones = append(milestones, models.Milestone{Sequence: i + 1, Title: mTitle, Amount: amount})
		}
		budget = valueobject.Sum(amounts...)
	default:
		if len(in.Milestones) > 0 {
			return nil, nil, apperror.Validation("single job has no milestones")
		}
	}

	budget, err = valueobject.NewAmount(budget)
	if err != nil {
		return nil, nil, err
	}

	job := &models.Job{ClientID: actor.ID, Title: title, Budget: budget, PaymentType: in.PaymentType}
	if err := s.jobs.Create(ctx, job, milestones); err != nil {
		return nil, nil, err
	}

	s.notifier.NotifyAdmins(ctx, models.NotificationTypeAction, "job_pending_approval", map[string]interface{}{
		"job_id": job.ID,
		"title":  job.Title,
	})
	return job, milestones, nil
}

// ApproveJob одобряет заказ.
func (s *HireService) ApproveJob(ctx context.Context, actor Actor, jobID uuid.UUID) (*models.Job, error) {
	if err := s.policy.Authorize(actor, OpApproveJob, RelNone); err != nil {
		return nil, err
	}
	job, err := s.jobs.Approve(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, job.ClientID, models.NotificationTypeInfo, "job_approved", map[string]interface{}{"job_id": job.ID})
	return job, nil
}

// CreateMatch подбирает фрилансера на одобренный заказ.
func (s *HireService) CreateMatch(ctx context.Context, actor Actor, jobID, freelancerID uuid.UUID) (*models.JobMatch, error) {
	if err := s.policy.Authorize(actor, OpCreateMatch, RelNone); err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Approved {
		return nil, apperror.InvalidState("job is not approved")
	}
	freelancer, err := s.users.GetByID(ctx, freelancerID)
	if err != nil {
		return nil, err
	}
	if freelancer.Role != valueobject.RoleFreelancer {
		return nil, apperror.Validation("freelancer_id")
	}

	match := &models.JobMatch{JobID: job.ID, FreelancerID: freelancer.ID, Status: valueobject.MatchStatusMatched}
	if err := s.jobs.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	data := map[string]interface{}{"job_id": job.ID, "match_id": match.ID}
	s.notifier.Notify(ctx, job.ClientID, models.NotificationTypeAction, "freelancer_matched", data)
	s.notifier.Notify(ctx, freelancer.ID, models.NotificationTypeInfo, "matched_to_job", data)
	return match, nil
}

// SecureHire нанимает подобранного фрилансера и резервирует бюджет заказа.
// Для этапного заказа создаётся по холду на этап, для разового один холд на весь бюджет.
func (s *HireService) SecureHire(ctx context.Context, actor Actor, jobID, freelancerID uuid.UUID) (*models.Hire, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpSecureHire, RelationTo(actor, job.ClientID, uuid.Nil)); err != nil {
		return nil, err
	}
	if !job.Approved {
		return nil, apperror.InvalidState("job is not approved")
	}

	match, err := s.jobs.GetMatch(ctx, jobID, freelancerID)
	if err != nil {
		return nil, err
	}
	if match.Status != valueobject.MatchStatusMatched {
		return nil, apperror.InvalidState("match is " + string(match.Status))
	}

	holds, err := s.plannedHolds(ctx, job)
	if err != nil {
		return nil, err
	}

	hire := &models.Hire{
		JobID:        job.ID,
		ClientID:     job.ClientID,
		FreelancerID: freelancerID,
		HireType:     job.PaymentType,
	}
	if err := s.hires.Create(ctx, hire, holds); err != nil {
		return nil, err
	}

	metrics.Escrow().ObserveLedgerMutation(models.TxTypeHold)
	for range holds {
		metrics.Escrow().ObserveHoldTransition(string(valueobject.HoldStatusHeld))
	}
	logger.Log.WithFields(logrus.Fields{
		"hire_id":       hire.ID,
		"job_id":        job.ID,
		"freelancer_id": freelancerID,
		"holds":         len(holds),
		"budget":        job.Budget,
	}).Info("hire secured")

	s.notifier.Notify(ctx, freelancerID, models.NotificationTypeAction, "hired", map[string]interface{}{
		"hire_id": hire.ID,
		"job_id":  job.ID,
	})
	return hire, nil
}

// plannedHolds раскладывает бюджет заказа по холдам. Сумма холдов равна бюджету.
func (s *HireService) plannedHolds(ctx context.Context, job *models.Job) ([]models.CoinHold, error) {
	if job.PaymentType == valueobject.PaymentTypeSingle {
		return []models.CoinHold{{Amount: job.Budget}}, nil
	}

	milestones, err := s.jobs.ListMilestones(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if len(milestones) == 0 {
		return nil, apperror.InvalidState("milestone job has no milestones")
	}

	holds := make([]models.CoinHold, 0, len(milestones))
	amounts := make([]decimal.Decimal, 0, len(milestones))
	for i := range milestones {
		id := milestones[i].ID
		holds = append(holds, models.CoinHold{MilestoneID: &id, Amount: milestones[i].Amount})
		amounts = append(amounts, milestones[i].Amount)
	}
	if !valueobject.Sum(amounts...).Equal(job.Budget) {
		return nil, apperror.InvalidState("milestone amounts do not match budget")
	}
	return holds, nil
}

// EnsureMilestoneHolds создаёт недостающие холды для неоплаченных этапов, например после возврата по спору.
func (s *HireService) EnsureMilestoneHolds(ctx context.Context, actor Actor, hireID uuid.UUID) ([]models.CoinHold, error) {
	hire, err := s.hires.GetByID(ctx, hireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpSecureHire, RelationTo(actor, hire.ClientID, uuid.Nil)); err != nil {
		return nil, err
	}
	if hire.HireType != valueobject.PaymentTypeMilestone {
		return nil, apperror.InvalidState("hire is not milestone based")
	}

	milestones, err := s.jobs.ListMilestones(ctx, hire.JobID)
	if err != nil {
		return nil, err
	}
	existing, err := s.holds.ListByHire(ctx, hire.ID)
	if err != nil {
		return nil, err
	}
	covered := make(map[uuid.UUID]bool, len(existing))
	for _, h := range existing {
		if h.MilestoneID != nil && h.Status.IsActive() {
			covered[*h.MilestoneID] = true
		}
	}

	var created []models.CoinHold
	for i := range milestones {
		m := milestones[i]
		if m.Status == valueobject.MilestoneStatusApproved || covered[m.ID] {
			continue
		}
		hold, err := s.holdSvc.CreateHold(ctx, hire, &m.ID, m.Amount)
		if errors.Is(err, apperror.ErrDuplicateHold) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, *hold)
	}
	return created, nil
}

// SubmitFinal итоговая сдача работы по разовому найму.
func (s *HireService) SubmitFinal(ctx context.Context, actor Actor, hireID uuid.UUID, fileURL, message string) (*models.FinalSubmission, error) {
	hire, err := s.hires.GetByID(ctx, hireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpSubmitFinal, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	if hire.HireType != valueobject.PaymentTypeSingle {
		return nil, apperror.InvalidState("final submission requires a single payment hire")
	}
	fileURL, err = validation.URL("file_url", fileURL)
	if err != nil {
		return nil, err
	}
	message, err = validation.Text("message", message, false, validation.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	final := &models.FinalSubmission{
		HireID:       hire.ID,
		FreelancerID: actor.ID,
		FileURL:      fileURL,
		Message:      message,
	}
	if err := s.hires.CreateFinal(ctx, final); err != nil {
		return nil, err
	}

	data := map[string]interface{}{"hire_id": hire.ID, "final_submission_id": final.ID}
	s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypeInfo, "final_submitted", data)
	s.notifier.NotifyAdmins(ctx, models.NotificationTypeAction, "final_pending_review", data)
	return final, nil
}

// ReviewFinal проверка итоговой сдачи администратором.
// Принятие переносит холд во frozen фрилансера и запускает окно автоосвобождения.
func (s *HireService) ReviewFinal(ctx context.Context, actor Actor, finalID uuid.UUID, approve bool, reason string) (*models.FinalSubmission, error) {
	if err := s.policy.Authorize(actor, OpReviewFinal, RelNone); err != nil {
		return nil, err
	}
	final, err := s.hires.GetFinal(ctx, finalID)
	if err != nil {
		return nil, err
	}
	hire, err := s.hires.GetByID(ctx, final.HireID)
	if err != nil {
		return nil, err
	}

	if !approve {
		reason, err = validation.Text("reason", reason, true, validation.MaxReasonLength)
		if err != nil {
			return nil, err
		}
		rejected, err := s.hires.RejectFinal(ctx, finalID, reason)
		if err != nil {
			return nil, err
		}
		s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypeAction, "final_rejected", map[string]interface{}{
			"hire_id":             hire.ID,
			"final_submission_id": rejected.ID,
			"reason":              reason,
		})
		return rejected, nil
	}

	now := s.now()
	approved, hold, err := s.hires.ApproveFinal(ctx, finalID, hire.FreelancerID, now)
	if err != nil {
		return nil, err
	}
	metrics.Escrow().ObserveLedgerMutation(models.TxTypeFreeze)
	holdLog(hold).Info("hold parked in frozen balance")

	data := map[string]interface{}{
		"hire_id":             hire.ID,
		"final_submission_id": approved.ID,
		"auto_release_at":     approved.SubmittedAt.Add(s.window),
	}
	s.notifier.Notify(ctx, hire.ClientID, models.NotificationTypeAction, "work_awaiting_confirmation", data)
	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypePayment, "final_approved", data)
	return approved, nil
}

// ReleaseFrozenCoin клиент подтверждает работу и освобождает холд разового найма.
func (s *HireService) ReleaseFrozenCoin(ctx context.Context, actor Actor, hireID uuid.UUID) (*models.CoinHold, error) {
	hire, err := s.hires.GetByID(ctx, hireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpConfirmWork, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	if hire.HireType != valueobject.PaymentTypeSingle {
		return nil, apperror.InvalidState("hire is not single payment")
	}

	final, err := s.hires.LatestFinal(ctx, hire.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.InvalidState("no final submission")
		}
		return nil, err
	}
	if final.Status != valueobject.FinalStatusApproved {
		return nil, apperror.InvalidState("final submission is " + string(final.Status))
	}

	hold, err := s.singleHeldHold(ctx, hire.ID)
	if err != nil {
		return nil, err
	}
	released, err := s.holds.Release(ctx, hold.ID, hire.FreelancerID, models.TxTypePayment, "work confirmed by client")
	if err != nil {
		return nil, err
	}

	metrics.Escrow().ObserveLedgerMutation(models.TxTypePayment)
	metrics.Escrow().ObserveHoldTransition(string(released.Status))
	holdLog(released).Info("work confirmed")

	s.notifier.Notify(ctx, hire.FreelancerID, models.NotificationTypePayment, "payment_released", map[string]interface{}{
		"hire_id": hire.ID,
		"amount":  released.Amount,
	})
	return released, nil
}

func (s *HireService) singleHeldHold(ctx context.Context, hireID uuid.UUID) (*models.CoinHold, error) {
	holds, err := s.holds.ListByHire(ctx, hireID)
	if err != nil {
		return nil, err
	}
	for i := range holds {
		if holds[i].MilestoneID == nil && holds[i].Status == valueobject.HoldStatusHeld {
			return &holds[i], nil
		}
	}
	return nil, apperror.InvalidState("no held funds for hire")
}

// GetHireSummary найм с холдами, этапами и признаком завершения.
func (s *HireService) GetHireSummary(ctx context.Context, actor Actor, hireID uuid.UUID) (*models.HireSummary, error) {
	hire, err := s.hires.GetByID(ctx, hireID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpViewHire, RelationTo(actor, hire.ClientID, hire.FreelancerID)); err != nil {
		return nil, err
	}
	return s.summarize(ctx, hire)
}

// ListActiveHires незавершённые наймы пользователя.
func (s *HireService) ListActiveHires(ctx context.Context, actor Actor) ([]models.HireSummary, error) {
	if actor.ID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	hires, err := s.hires.ListForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	active := make([]models.HireSummary, 0, len(hires))
	for i := range hires {
		summary, err := s.summarize(ctx, &hires[i])
		if err != nil {
			return nil, err
		}
		if !summary.Completed {
			active = append(active, *summary)
		}
	}
	return active, nil
}

func (s *HireService) summarize(ctx context.Context, hire *models.Hire) (*models.HireSummary, error) {
	job, err := s.jobs.GetByID(ctx, hire.JobID)
	if err != nil {
		return nil, err
	}
	holds, err := s.holds.ListByHire(ctx, hire.ID)
	if err != nil {
		return nil, err
	}
	var milestones []models.Milestone
	if hire.HireType == valueobject.PaymentTypeMilestone {
		if milestones, err = s.jobs.ListMilestones(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return &models.HireSummary{
		Hire:       *hire,
		Job:        *job,
		Holds:      holds,
		Milestones: milestones,
		Completed:  IsComplete(hire.HireType, holds, milestones),
	}, nil
}

// IsComplete этапный найм завершён, когда одобрены все этапы; разовый, когда его холд освобождён или возвращён.
func IsComplete(hireType valueobject.PaymentType, holds []models.CoinHold, milestones []models.Milestone) bool {
	if hireType == valueobject.PaymentTypeMilestone {
		if len(milestones) == 0 {
			return false
		}
		for _, m := range milestones {
			if m.Status != valueobject.MilestoneStatusApproved {
				return false
			}
		}
		return true
	}

	single := 0
	for _, h := range holds {
		if h.MilestoneID != nil {
			continue
		}
		if !h.Status.IsTerminal() {
			return false
		}
		single++
	}
	return single > 0
}
