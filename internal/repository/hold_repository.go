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

// Имя частичного уникального индекса: не больше одного активного холда на (hire, milestone).
const holdActiveKey = "coin_holds_active_key"

// HoldRepository отвечает за холды (эскроу) и движение денег по ним.
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository создаёт экземпляр репозитория.
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// Create резервирует сумму у клиента и создаёт холд.
// Дубликат активного холда отсекается уникальным индексом, а не проверкой перед вставкой.
func (r *HoldRepository) Create(ctx context.Context, hold *models.CoinHold) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if hold.ID == uuid.Nil {
			hold.ID = uuid.New()
		}
		if err := insertHolds(ctx, tx, []models.CoinHold{*hold}); err != nil {
			return err
		}
		if _, err := mutate(ctx, tx, hold.ClientID, hold.Amount.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &hold.ClientID,
			HoldID:     &hold.ID,
			Amount:     hold.Amount,
			Type:       models.TxTypeHold,
		}); err != nil {
			return err
		}
		return sqlx.GetContext(ctx, tx, hold, `SELECT * FROM coin_holds WHERE id = $1`, hold.ID)
	})
}

// GetByID возвращает холд по идентификатору.
func (r *HoldRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CoinHold, error) {
	return common.GetByID[models.CoinHold](ctx, r.db, "coin_holds", id, apperror.ErrHoldNotFound)
}

// ListByHire возвращает все холды найма.
func (r *HoldRepository) ListByHire(ctx context.Context, hireID uuid.UUID) ([]models.CoinHold, error) {
	var holds []models.CoinHold
	if err := r.db.SelectContext(ctx, &holds, `SELECT * FROM coin_holds WHERE hire_id = $1 ORDER BY created_at`, hireID); err != nil {
		return nil, fmt.Errorf("hold repository: list by hire %w", err)
	}
	return holds, nil
}

// Release переводит холд в released и зачисляет сумму фрилансеру.
// Повторный вызов на освобождённом холде возвращает InvalidState и ничего не зачисляет.
func (r *HoldRepository) Release(ctx context.Context, holdID, freelancerID uuid.UUID, txType, note string) (*models.CoinHold, error) {
	var out *models.CoinHold
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		hold, err := common.GetForUpdate[models.CoinHold](ctx, tx, "coin_holds", holdID, apperror.ErrHoldNotFound)
		if err != nil {
			return err
		}
		if hold.Status != valueobject.HoldStatusHeld {
			return apperror.InvalidState("hold is " + string(hold.Status))
		}
		if err := ensureNoOpenContract(ctx, tx, hold.HireID); err != nil {
			return err
		}
		out, _, err = releaseLocked(ctx, tx, hold, freelancerID, txType, note)
		return err
	})
	return out, err
}

// Refund возвращает сумму холда клиенту. Допустим из held и disputed.
func (r *HoldRepository) Refund(ctx context.Context, holdID, freelancerID uuid.UUID) (*models.CoinHold, error) {
	var out *models.CoinHold
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		hold, err := common.GetForUpdate[models.CoinHold](ctx, tx, "coin_holds", holdID, apperror.ErrHoldNotFound)
		if err != nil {
			return err
		}
		if !hold.Status.CanTransitionTo(valueobject.HoldStatusRefunded) {
			return apperror.InvalidState("hold is " + string(hold.Status))
		}
		out, err = refundLocked(ctx, tx, hold, freelancerID, "")
		return err
	})
	return out, err
}

// ListEligible холды, которые лежат во frozen дольше окна и могут быть освобождены автоматически.
// Холды наймов с открытым контрактом пропускаются: их закрывает контракт.
func (r *HoldRepository) ListEligible(ctx context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error) {
	var holds []models.CoinHold
	err := r.db.SelectContext(ctx, &holds, `
		SELECT * FROM coin_holds
		WHERE status = 'held' AND auto_release AND eligible_at IS NOT NULL AND eligible_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM contracts c WHERE c.hire_id = coin_holds.hire_id AND c.status <> 'released'
		  )
		ORDER BY eligible_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("hold repository: list eligible %w", err)
	}
	return holds, nil
}

// ListUnconfirmedWork холды разовых наймов, чья итоговая сдача принята и ждёт клиента дольше окна.
func (r *HoldRepository) ListUnconfirmedWork(ctx context.Context, cutoff time.Time, limit int) ([]models.CoinHold, error) {
	var holds []models.CoinHold
	err := r.db.SelectContext(ctx, &holds, `
		SELECT h.* FROM coin_holds h
		JOIN final_submissions f ON f.hire_id = h.hire_id AND f.status = 'approved'
		WHERE h.milestone_id IS NULL
		  AND h.status = 'held'
		  AND h.auto_release
		  AND f.submitted_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM contracts c WHERE c.hire_id = h.hire_id AND c.status <> 'released'
		  )
		ORDER BY f.submitted_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("hold repository: list unconfirmed work %w", err)
	}
	return holds, nil
}

// insertHolds вставляет холды одним запросом. ID должны быть заполнены.
func insertHolds(ctx context.Context, tx *sqlx.Tx, holds []models.CoinHold) error {
	bi := common.NewBatchInserter(tx, `INSERT INTO coin_holds (id, hire_id, milestone_id, client_id, amount, status)`, 6, 100)
	for _, h := range holds {
		if err := bi.Add(ctx, h.ID, h.HireID, h.MilestoneID, h.ClientID, h.Amount, valueobject.HoldStatusHeld); err != nil {
			return mapHoldInsertErr(err)
		}
	}
	return mapHoldInsertErr(bi.Flush(ctx))
}

func mapHoldInsertErr(err error) error {
	if err == nil {
		return nil
	}
	if common.IsUniqueViolation(err, holdActiveKey) {
		return apperror.ErrDuplicateHold
	}
	return fmt.Errorf("hold repository: insert %w", err)
}

// ensureNoOpenContract запрещает освобождать холд найма, пока по нему открыт внеплатформенный контракт.
func ensureNoOpenContract(ctx context.Context, tx *sqlx.Tx, hireID uuid.UUID) error {
	var open bool
	if err := tx.GetContext(ctx, &open, `
		SELECT EXISTS (SELECT 1 FROM contracts WHERE hire_id = $1 AND status <> 'released')
	`, hireID); err != nil {
		return fmt.Errorf("hold repository: check open contract %w", err)
	}
	if open {
		return apperror.InvalidState("hold is settled by an open contract")
	}
	return nil
}

// releaseLocked зачисляет сумму заблокированного холда фрилансеру.
// Если сумма уже лежит во frozen, она переносится во spendable; иначе зачисляется из эскроу.
func releaseLocked(ctx context.Context, tx *sqlx.Tx, hold *models.CoinHold, freelancerID uuid.UUID, txType, note string) (*models.CoinHold, *models.CoinTransaction, error) {
	frozenDelta := decimal.Zero
	if hold.IsFrozen() {
		frozenDelta = hold.Amount.Neg()
	}
	entry, err := mutate(ctx, tx, freelancerID, hold.Amount, frozenDelta, models.CoinTransaction{
		FromUserID: &hold.ClientID,
		ToUserID:   &freelancerID,
		HoldID:     &hold.ID,
		Amount:     hold.Amount,
		Type:       txType,
		Note:       note,
	})
	if err != nil {
		return nil, nil, err
	}

	var out models.CoinHold
	if err := sqlx.GetContext(ctx, tx, &out, `
		UPDATE coin_holds SET status = 'released', released_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, hold.ID); err != nil {
		return nil, nil, fmt.Errorf("hold repository: mark released %w", err)
	}
	return &out, entry, nil
}

// refundLocked возвращает сумму заблокированного холда клиенту.
// Если сумма была перенесена во frozen фрилансера, она сначала списывается оттуда.
func refundLocked(ctx context.Context, tx *sqlx.Tx, hold *models.CoinHold, freelancerID uuid.UUID, note string) (*models.CoinHold, error) {
	if hold.IsFrozen() {
		if _, err := mutate(ctx, tx, freelancerID, decimal.Zero, hold.Amount.Neg(), models.CoinTransaction{
			FromUserID: &freelancerID,
			HoldID:     &hold.ID,
			Amount:     hold.Amount,
			Type:       models.TxTypeRefund,
			Note:       note,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := mutate(ctx, tx, hold.ClientID, hold.Amount, decimal.Zero, models.CoinTransaction{
		ToUserID: &hold.ClientID,
		HoldID:   &hold.ID,
		Amount:   hold.Amount,
		Type:     models.TxTypeRefund,
		Note:     note,
	}); err != nil {
		return nil, err
	}

	var out models.CoinHold
	if err := sqlx.GetContext(ctx, tx, &out, `
		UPDATE coin_holds SET status = 'refunded', eligible_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, hold.ID); err != nil {
		return nil, fmt.Errorf("hold repository: mark refunded %w", err)
	}
	return &out, nil
}

// parkLocked переносит сумму холда во frozen фрилансера и запускает окно автоосвобождения.
func parkLocked(ctx context.Context, tx *sqlx.Tx, hold *models.CoinHold, freelancerID uuid.UUID, at time.Time) (*models.CoinHold, error) {
	if _, err := mutate(ctx, tx, freelancerID, decimal.Zero, hold.Amount, models.CoinTransaction{
		FromUserID: &hold.ClientID,
		ToUserID:   &freelancerID,
		HoldID:     &hold.ID,
		Amount:     hold.Amount,
		Type:       models.TxTypeFreeze,
	}); err != nil {
		return nil, err
	}

	var out models.CoinHold
	if err := sqlx.GetContext(ctx, tx, &out, `
		UPDATE coin_holds SET eligible_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, hold.ID, at); err != nil {
		return nil, fmt.Errorf("hold repository: park %w", err)
	}
	return &out, nil
}

// notFoundOrInvalid различает отсутствие строки и неподходящее состояние после условного UPDATE.
func notFoundOrInvalid(ctx context.Context, q sqlx.QueryerContext, table string, id uuid.UUID, err error, notFound error) error {
	if !isNoRows(err) {
		return fmt.Errorf("%s: conditional update %w", table, err)
	}
	exists, existsErr := common.Exists(ctx, q, table, id)
	if existsErr != nil {
		return existsErr
	}
	if !exists {
		return notFound
	}
	return apperror.ErrInvalidState
}
