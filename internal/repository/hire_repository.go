package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/repository/common"
)

// HireRepository отвечает за наймы и итоговые сдачи работ.
type HireRepository struct {
	db *sqlx.DB
}

// NewHireRepository создаёт экземпляр репозитория.
func NewHireRepository(db *sqlx.DB) *HireRepository {
	return &HireRepository{db: db}
}

// Create атомарно оформляет найм: подбор → hired, запись найма, списание бюджета с клиента и холды.
func (r *HireRepository) Create(ctx context.Context, hire *models.Hire, holds []models.CoinHold) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE job_matches SET status = 'hired'
			WHERE job_id = $1 AND freelancer_id = $2 AND status = 'matched'
		`, hire.JobID, hire.FreelancerID)
		if err != nil {
			return fmt.Errorf("hire repository: mark match hired %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.InvalidState("match is not in matched state")
		}

		err = tx.GetContext(ctx, hire, `
			INSERT INTO hires (job_id, client_id, freelancer_id, hire_type)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, hire.JobID, hire.ClientID, hire.FreelancerID, hire.HireType)
		if err != nil {
			if common.IsUniqueViolation(err, "hires_job_id_key") {
				return apperror.ErrDuplicateHire
			}
			return fmt.Errorf("hire repository: insert hire %w", err)
		}

		total := decimal.Zero
		for i := range holds {
			holds[i].ID = uuid.New()
			holds[i].HireID = hire.ID
			holds[i].ClientID = hire.ClientID
			holds[i].Status = valueobject.HoldStatusHeld
			total = total.Add(holds[i].Amount)
		}

		if _, err := mutate(ctx, tx, hire.ClientID, total.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &hire.ClientID,
			Amount:     total,
			Type:       models.TxTypeHold,
			Note:       "hire " + hire.ID.String(),
		}); err != nil {
			return err
		}

		return insertHolds(ctx, tx, holds)
	})
}

// GetByID возвращает найм по идентификатору.
func (r *HireRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hire, error) {
	return common.GetByID[models.Hire](ctx, r.db, "hires", id, apperror.ErrHireNotFound)
}

// GetByJob возвращает найм заказа.
func (r *HireRepository) GetByJob(ctx context.Context, jobID uuid.UUID) (*models.Hire, error) {
	var hire models.Hire
	if err := r.db.GetContext(ctx, &hire, `SELECT * FROM hires WHERE job_id = $1`, jobID); err != nil {
		if isNoRows(err) {
			return nil, apperror.ErrHireNotFound
		}
		return nil, fmt.Errorf("hire repository: get by job %w", err)
	}
	return &hire, nil
}

// ListForUser наймы, где пользователь клиент или фрилансер.
func (r *HireRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Hire, error) {
	var hires []models.Hire
	err := r.db.SelectContext(ctx, &hires, `
		SELECT * FROM hires WHERE client_id = $1 OR freelancer_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("hire repository: list for user %w", err)
	}
	return hires, nil
}

// CreateFinal сохраняет итоговую сдачу. Вторая активная сдача на найм отклоняется индексом.
func (r *HireRepository) CreateFinal(ctx context.Context, final *models.FinalSubmission) error {
	err := r.db.GetContext(ctx, final, `
		INSERT INTO final_submissions (hire_id, freelancer_id, file_url, message)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, final.HireID, final.FreelancerID, final.FileURL, final.Message)
	if err != nil {
		if common.IsUniqueViolation(err, "final_submissions_active_key") {
			return apperror.InvalidState("final submission already pending or approved")
		}
		return fmt.Errorf("hire repository: create final %w", err)
	}
	return nil
}

// GetFinal возвращает итоговую сдачу.
func (r *HireRepository) GetFinal(ctx context.Context, id uuid.UUID) (*models.FinalSubmission, error) {
	return common.GetByID[models.FinalSubmission](ctx, r.db, "final_submissions", id, apperror.ErrFinalNotFound)
}

// LatestFinal последняя итоговая сдача найма.
func (r *HireRepository) LatestFinal(ctx context.Context, hireID uuid.UUID) (*models.FinalSubmission, error) {
	var final models.FinalSubmission
	err := r.db.GetContext(ctx, &final, `
		SELECT * FROM final_submissions WHERE hire_id = $1 ORDER BY submitted_at DESC LIMIT 1
	`, hireID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.ErrFinalNotFound
		}
		return nil, fmt.Errorf("hire repository: latest final %w", err)
	}
	return &final, nil
}

// ApproveFinal принимает сдачу и переносит холд разового найма во frozen фрилансера.
func (r *HireRepository) ApproveFinal(ctx context.Context, finalID, freelancerID uuid.UUID, at time.Time) (*models.FinalSubmission, *models.CoinHold, error) {
	var (
		final *models.FinalSubmission
		hold  *models.CoinHold
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		final, err = common.GetForUpdate[models.FinalSubmission](ctx, tx, "final_submissions", finalID, apperror.ErrFinalNotFound)
		if err != nil {
			return err
		}
		if !final.Status.CanTransitionTo(valueobject.FinalStatusApproved) {
			return apperror.InvalidState("final submission is " + string(final.Status))
		}

		var locked models.CoinHold
		err = tx.GetContext(ctx, &locked, `
			SELECT * FROM coin_holds
			WHERE hire_id = $1 AND milestone_id IS NULL AND status = 'held'
			FOR UPDATE
		`, final.HireID)
		if err != nil {
			if isNoRows(err) {
				return apperror.InvalidState("no held single hold for hire")
			}
			return fmt.Errorf("hire repository: lock hold %w", err)
		}
		if locked.IsFrozen() {
			return apperror.InvalidState("hold already frozen")
		}

		if err := tx.GetContext(ctx, final, `
			UPDATE final_submissions SET status = 'approved', reviewed_at = $2
			WHERE id = $1
			RETURNING *
		`, finalID, at); err != nil {
			return fmt.Errorf("hire repository: approve final %w", err)
		}

		hold, err = parkLocked(ctx, tx, &locked, freelancerID, at)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return final, hold, nil
}

// RejectFinal отклоняет сдачу с причиной.
func (r *HireRepository) RejectFinal(ctx context.Context, finalID uuid.UUID, reason string) (*models.FinalSubmission, error) {
	var final models.FinalSubmission
	err := r.db.GetContext(ctx, &final, `
		UPDATE final_submissions SET status = 'rejected', rejection_reason = $2, reviewed_at = NOW()
		WHERE id = $1 AND status = 'submitted'
		RETURNING *
	`, finalID, reason)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "final_submissions", finalID, err, apperror.ErrFinalNotFound)
	}
	return &final, nil
}
