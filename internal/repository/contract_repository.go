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

// ContractRepository отвечает за внеплатформенные контракты, реквизиты и журнал выплат.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository создаёт экземпляр репозитория.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create создаёт контракт. На одну итоговую сдачу допускается один контракт.
func (r *ContractRepository) Create(ctx context.Context, contract *models.Contract) error {
	err := r.db.GetContext(ctx, contract, `
		INSERT INTO contracts (hire_id, final_submission_id, client_id, freelancer_id, payment_method, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, contract.HireID, contract.FinalSubmissionID, contract.ClientID, contract.FreelancerID,
		contract.PaymentMethod, contract.TotalAmount)
	if err != nil {
		if common.IsUniqueViolation(err, "contracts_final_submission_id_key") {
			return apperror.ErrDuplicateContract
		}
		return fmt.Errorf("contract repository: create %w", err)
	}
	return nil
}

// GetByID возвращает контракт.
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return common.GetByID[models.Contract](ctx, r.db, "contracts", id, apperror.ErrContractNotFound)
}

// AddDetails сохраняет реквизиты фрилансера. Реквизиты хранятся в зашифрованном виде.
func (r *ContractRepository) AddDetails(ctx context.Context, details *models.PaymentDetails) error {
	err := r.db.GetContext(ctx, details, `
		INSERT INTO contract_payment_details (contract_id, freelancer_id, method, sealed_details, proof_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, details.ContractID, details.FreelancerID, details.Method, details.SealedDetails, details.ProofPath)
	if err != nil {
		return fmt.Errorf("contract repository: add details %w", err)
	}
	return nil
}

// GetDetails возвращает реквизиты по идентификатору.
func (r *ContractRepository) GetDetails(ctx context.Context, id uuid.UUID) (*models.PaymentDetails, error) {
	return common.GetByID[models.PaymentDetails](ctx, r.db, "contract_payment_details", id, apperror.ErrDetailsNotFound)
}

// LatestDetails последние реквизиты по контракту.
func (r *ContractRepository) LatestDetails(ctx context.Context, contractID uuid.UUID) (*models.PaymentDetails, error) {
	var details models.PaymentDetails
	err := r.db.GetContext(ctx, &details, `
		SELECT * FROM contract_payment_details WHERE contract_id = $1 ORDER BY created_at DESC LIMIT 1
	`, contractID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.ErrDetailsNotFound
		}
		return nil, fmt.Errorf("contract repository: latest details %w", err)
	}
	return &details, nil
}

// VerifyDetails отмечает реквизиты как проверенные администратором.
func (r *ContractRepository) VerifyDetails(ctx context.Context, id uuid.UUID) (*models.PaymentDetails, error) {
	var details models.PaymentDetails
	err := r.db.GetContext(ctx, &details, `
		UPDATE contract_payment_details SET verified = TRUE WHERE id = $1 AND NOT verified RETURNING *
	`, id)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "contract_payment_details", id, err, apperror.ErrDetailsNotFound)
	}
	return &details, nil
}

// MarkSent pending_details → payment_sent.
func (r *ContractRepository) MarkSent(ctx context.Context, id uuid.UUID, proofPath *string) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.GetContext(ctx, &contract, `
		UPDATE contracts
		SET status = 'payment_sent', client_marked_sent = TRUE,
		    proof_path = COALESCE($2, proof_path), updated_at = NOW()
		WHERE id = $1 AND status = 'pending_details'
		RETURNING *
	`, id, proofPath)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "contracts", id, err, apperror.ErrContractNotFound)
	}
	return &contract, nil
}

// MarkReceived фрилансер подтверждает получение оплаты.
func (r *ContractRepository) MarkReceived(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.GetContext(ctx, &contract, `
		UPDATE contracts SET freelancer_marked_received = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'payment_sent'
		RETURNING *
	`, id)
	if err != nil {
		return nil, notFoundOrInvalid(ctx, r.db, "contracts", id, err, apperror.ErrContractNotFound)
	}
	return &contract, nil
}

// Release закрывает контракт. Выплата фрилансеру идёт из эскроу-холда найма: холд освобождается
// в той же транзакции, новых монет не появляется. Затем пишется запись в журнал выплат.
func (r *ContractRepository) Release(ctx context.Context, id uuid.UUID) (*models.Contract, *models.CoinTransaction, error) {
	var (
		contract *models.Contract
		entry    *models.CoinTransaction
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		contract, err = common.GetForUpdate[models.Contract](ctx, tx, "contracts", id, apperror.ErrContractNotFound)
		if err != nil {
			return err
		}
		if !contract.Status.CanTransitionTo(valueobject.ContractStatusReleased) {
			return apperror.InvalidState("contract is " + string(contract.Status))
		}

		var escrow models.CoinHold
		err = tx.GetContext(ctx, &escrow, `
			SELECT * FROM coin_holds
			WHERE hire_id = $1 AND milestone_id IS NULL AND status = 'held'
			FOR UPDATE
		`, contract.HireID)
		if err != nil {
			if isNoRows(err) {
				return apperror.InvalidState("hire has no held escrow for the contract")
			}
			return fmt.Errorf("contract repository: lock escrow %w", err)
		}
		if !escrow.Amount.Equal(contract.TotalAmount) {
			return apperror.InvalidState("contract amount differs from escrow")
		}

		if err := tx.GetContext(ctx, contract, `
			UPDATE contracts
			SET status = 'released', admin_confirmed = TRUE, released_at = NOW(), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, id); err != nil {
			return fmt.Errorf("contract repository: release %w", err)
		}

		_, entry, err = releaseLocked(ctx, tx, &escrow, contract.FreelancerID, models.TxTypeContractPayment, "contract "+contract.ID.String())
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments
				(hire_id, contract_id, client_id, freelancer_id, amount, method, client_marked_sent, freelancer_marked_received)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, contract.HireID, contract.ID, contract.ClientID, contract.FreelancerID, contract.TotalAmount,
			contract.PaymentMethod, contract.ClientMarkedSent, contract.FreelancerMarkedReceived); err != nil {
			return fmt.Errorf("contract repository: log payment %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return contract, entry, nil
}

// ListAwaitingRelease контракты, по которым клиент отметил оплату.
func (r *ContractRepository) ListAwaitingRelease(ctx context.Context, limit, offset int) ([]models.Contract, error) {
	var contracts []models.Contract
	err := r.db.SelectContext(ctx, &contracts, `
		SELECT * FROM contracts WHERE status = 'payment_sent' ORDER BY updated_at LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("contract repository: list awaiting release %w", err)
	}
	return contracts, nil
}
