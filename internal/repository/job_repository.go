package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/repository/common"
)

// JobRepository отвечает за заказы, этапы и подбор исполнителей.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository создаёт экземпляр репозитория.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create сохраняет заказ вместе с этапами.
func (r *JobRepository) Create(ctx context.Context, job *models.Job, milestones []models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, job, `
			INSERT INTO jobs (client_id, title, budget, payment_type)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, job.ClientID, job.Title, job.Budget, job.PaymentType)
		if err != nil {
			return fmt.Errorf("job repository: insert job %w", err)
		}

		for i := range milestones {
			milestones[i].JobID = job.ID
			err := tx.GetContext(ctx, &milestones[i], `
				INSERT INTO milestones (job_id, sequence, title, amount)
				VALUES ($1, $2, $3, $4)
				RETURNING *
			`, job.ID, milestones[i].Sequence, milestones[i].Title, milestones[i].Amount)
			if err != nil {
				return fmt.Errorf("job repository: insert milestone %w", err)
			}
		}
		return nil
	})
}

// GetByID возвращает заказ.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return common.GetByID[models.Job](ctx, r.db, "jobs", id, apperror.ErrJobNotFound)
}

// Approve одобряет заказ администратором.
func (r *JobRepository) Approve(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.GetContext(ctx, &job, `UPDATE jobs SET approved = TRUE WHERE id = $1 AND NOT approved RETURNING *`, id)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "jobs", id, err, apperror.ErrJobNotFound)
	}
	return &job, nil
}

// ListMilestones этапы заказа в порядке выплаты.
func (r *JobRepository) ListMilestones(ctx context.Context, jobID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	if err := r.db.SelectContext(ctx, &milestones, `SELECT * FROM milestones WHERE job_id = $1 ORDER BY sequence`, jobID); err != nil {
		return nil, fmt.Errorf("job repository: list milestones %w", err)
	}
	return milestones, nil
}

// GetMilestone возвращает этап.
func (r *JobRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, apperror.ErrMilestoneNotFound)
}

// SubmitMilestone сдаёт этап: pending/rejected → submitted, причина отказа сбрасывается, сдача пишется в историю.
func (r *JobRepository) SubmitMilestone(ctx context.Context, milestoneID, freelancerID uuid.UUID, fileURL, message string) (*models.Milestone, error) {
	var out *models.Milestone
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		m, err := common.GetForUpdate[models.Milestone](ctx, tx, "milestones", milestoneID, apperror.ErrMilestoneNotFound)
		if err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(valueobject.MilestoneStatusSubmitted) {
			return apperror.InvalidState("milestone is " + string(m.Status))
		}

		if err := tx.GetContext(ctx, m, `
			UPDATE milestones
			SET status = 'submitted', submission_url = $2, submitted_at = NOW(), rejection_reason = NULL
			WHERE id = $1
			RETURNING *
		`, milestoneID, fileURL); err != nil {
			return fmt.Errorf("job repository: submit milestone %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO milestone_submissions (milestone_id, freelancer_id, file_url, message)
			VALUES ($1, $2, $3, $4)
		`, milestoneID, freelancerID, fileURL, message); err != nil {
			return fmt.Errorf("job repository: record submission %w", err)
		}
		out = m
		return nil
	})
	return out, err
}

// ApproveMilestone принимает этап и освобождает его холд в одной транзакции.
func (r *JobRepository) ApproveMilestone(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, *models.CoinHold, error) {
	var (
		milestone *models.Milestone
		hold      *models.CoinHold
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		m, err := common.GetForUpdate[models.Milestone](ctx, tx, "milestones", milestoneID, apperror.ErrMilestoneNotFound)
		if err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(valueobject.MilestoneStatusApproved) {
			return apperror.InvalidState("milestone is " + string(m.Status))
		}

		var locked models.CoinHold
		err = tx.GetContext(ctx, &locked, `
			SELECT * FROM coin_holds
			WHERE milestone_id = $1 AND status IN ('held', 'disputed')
			FOR UPDATE
		`, milestoneID)
		if err != nil {
			if isNoRows(err) {
				return apperror.ErrHoldNotFound
			}
			return fmt.Errorf("job repository: lock milestone hold %w", err)
		}
		if locked.Status != valueobject.HoldStatusHeld {
			return apperror.InvalidState("milestone hold is " + string(locked.Status))
		}

		milestone = m
		if err := tx.GetContext(ctx, milestone, `
			UPDATE milestones SET status = 'approved', approved_at = NOW()
			WHERE id = $1
			RETURNING *
		`, milestoneID); err != nil {
			return fmt.Errorf("job repository: approve milestone %w", err)
		}

		hold, _, err = releaseLocked(ctx, tx, &locked, freelancerID, models.TxTypeMilestonePay, "milestone "+m.Title)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return milestone, hold, nil
}

// RejectMilestone отклоняет сданный этап. Холд остаётся held.
func (r *JobRepository) RejectMilestone(ctx context.Context, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	var m models.Milestone
	err := r.db.GetContext(ctx, &m, `
		UPDATE milestones SET status = 'rejected', rejection_reason = $2
		WHERE id = $1 AND status = 'submitted'
		RETURNING *
	`, milestoneID, reason)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "milestones", milestoneID, err, apperror.ErrMilestoneNotFound)
	}
	return &m, nil
}

// CreateMatch сохраняет подбор фрилансера на заказ.
func (r *JobRepository) CreateMatch(ctx context.Context, match *models.JobMatch) error {
	err := r.db.GetContext(ctx, match, `
		INSERT INTO job_matches (job_id, freelancer_id)
		VALUES ($1, $2)
		RETURNING *
	`, match.JobID, match.FreelancerID)
	if err != nil {
		if common.IsUniqueViolation(err, "job_matches_job_freelancer_key") {
			return apperror.New(apperror.ErrCodeConflict, "match already exists")
		}
		return fmt.Errorf("job repository: create match %w", err)
	}
	return nil
}

// GetMatch возвращает подбор по заказу и фрилансеру.
func (r *JobRepository) GetMatch(ctx context.Context, jobID, freelancerID uuid.UUID) (*models.JobMatch, error) {
	var match models.JobMatch
	err := r.db.GetContext(ctx, &match, `SELECT * FROM job_matches WHERE job_id = $1 AND freelancer_id = $2`, jobID, freelancerID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.ErrMatchNotFound
		}
		return nil, fmt.Errorf("job repository: get match %w", err)
	}
	return &match, nil
}
