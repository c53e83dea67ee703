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

// DisputeRepository отвечает за споры и связанные с ними холды.
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository создаёт экземпляр репозитория.
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Open создаёт спор и переводит все held-холды найма в disputed.
// Второй открытый спор по найму отсекается уникальным индексом.
func (r *DisputeRepository) Open(ctx context.Context, dispute *models.Dispute) ([]models.CoinHold, error) {
	var holds []models.CoinHold
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, dispute, `
			INSERT INTO disputes (hire_id, client_id, freelancer_id, reason)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, dispute.HireID, dispute.ClientID, dispute.FreelancerID, dispute.Reason)
		if err != nil {
			if common.IsUniqueViolation(err, "disputes_open_hire_key") {
				return apperror.ErrDuplicateDispute
			}
			return fmt.Errorf("dispute repository: insert %w", err)
		}

		if err := tx.SelectContext(ctx, &holds, `
			UPDATE coin_holds SET status = 'disputed', dispute_id = $2, updated_at = NOW()
			WHERE hire_id = $1 AND status = 'held'
			RETURNING *
		`, dispute.HireID, dispute.ID); err != nil {
			return fmt.Errorf("dispute repository: dispute holds %w", err)
		}
		if len(holds) == 0 {
			return apperror.InvalidState("hire has no held funds")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// GetByID возвращает спор.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// ListOpen открытые споры для администратора.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = 'open' ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}

// SetProofPath сохраняет путь к доказательству в хранилище.
func (r *DisputeRepository) SetProofPath(ctx context.Context, id uuid.UUID, path string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE disputes SET proof_path = $2 WHERE id = $1`, id, path); err != nil {
		return fmt.Errorf("dispute repository: set proof path %w", err)
	}
	return nil
}

// Resolve закрывает спор и возвращает его холды в held без автоосвобождения.
func (r *DisputeRepository) Resolve(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Dispute, []models.CoinHold, error) {
	var (
		dispute *models.Dispute
		holds   []models.CoinHold
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		dispute, err = closeDispute(ctx, tx, id, adminID, note, valueobject.DisputeStatusResolved)
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &holds, `
			UPDATE coin_holds SET status = 'held', auto_release = FALSE, updated_at = NOW()
			WHERE dispute_id = $1 AND status = 'disputed'
			RETURNING *
		`, id); err != nil {
			return fmt.Errorf("dispute repository: requeue holds %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return dispute, holds, nil
}

// Reject отклоняет спор и возвращает деньги по его холдам клиенту.
func (r *DisputeRepository) Reject(ctx context.Context, id, adminID uuid.UUID, note string, freelancerID uuid.UUID) (*models.Dispute, []models.CoinHold, error) {
	var (
		dispute *models.Dispute
		holds   []models.CoinHold
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		dispute, err = closeDispute(ctx, tx, id, adminID, note, valueobject.DisputeStatusRejected)
		if err != nil {
			return err
		}

		var locked []models.CoinHold
		if err := tx.SelectContext(ctx, &locked, `
			SELECT * FROM coin_holds WHERE dispute_id = $1 AND status = 'disputed' ORDER BY id FOR UPDATE
		`, id); err != nil {
			return fmt.Errorf("dispute repository: lock holds %w", err)
		}

		for i := range locked {
			refunded, err := refundLocked(ctx, tx, &locked[i], freelancerID, "dispute rejected")
			if err != nil {
				return err
			}
			holds = append(holds, *refunded)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return dispute, holds, nil
}

func closeDispute(ctx context.Context, tx *sqlx.Tx, id, adminID uuid.UUID, note string, status valueobject.DisputeStatus) (*models.Dispute, error) {
	dispute, err := common.GetForUpdate[models.Dispute](ctx, tx, "disputes", id, apperror.ErrDisputeNotFound)
	if err != nil {
		return nil, err
	}
	if !dispute.Status.CanTransitionTo(status) {
		return nil, apperror.InvalidState("dispute is " + string(dispute.Status))
	}

	if err := tx.GetContext(ctx, dispute, `
		UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, status, note, adminID); err != nil {
		return nil, fmt.Errorf("dispute repository: close %w", err)
	}
	return dispute, nil
}
