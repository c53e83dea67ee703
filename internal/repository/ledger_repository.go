package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/repository/common"
)

// LedgerRepository отвечает за балансы пользователей и журнал монет.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository создаёт экземпляр репозитория.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// balances результат атомарного изменения баланса.
type balances struct {
	Coin   decimal.Decimal `db:"coin_balance"`
	Frozen decimal.Decimal `db:"frozen_balance"`
}

// adjustBalance атомарно изменяет оба баланса пользователя одной строкой UPDATE.
// Условие в WHERE не даёт балансам уйти в минус; при конкурентных вызовах Postgres
// сериализует обновления по блокировке строки, поэтому потерянных обновлений нет.
func adjustBalance(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, coinDelta, frozenDelta decimal.Decimal) (balances, error) {
	var b balances
	err := sqlx.GetContext(ctx, q, &b, `
		UPDATE users
		SET coin_balance = coin_balance + $2,
		    frozen_balance = frozen_balance + $3,
		    updated_at = NOW()
		WHERE id = $1
		  AND coin_balance + $2 >= 0
		  AND frozen_balance + $3 >= 0
		RETURNING coin_balance, frozen_balance
	`, userID, coinDelta, frozenDelta)
	if err == nil {
		return b, nil
	}
	if common.IsCheckViolation(err, "users_coin_balance_check") || common.IsCheckViolation(err, "users_frozen_balance_check") {
		return b, apperror.ErrInsufficientFunds
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("ledger repository: adjust balance %w", err)
	}

	exists, existsErr := common.Exists(ctx, q, "users", userID)
	if existsErr != nil {
		return b, existsErr
	}
	if !exists {
		return b, apperror.ErrUserNotFound
	}
	return b, apperror.ErrInsufficientFunds
}

// appendEntry добавляет запись в журнал монет.
func appendEntry(ctx context.Context, q sqlx.ExtContext, entry *models.CoinTransaction) error {
	err := sqlx.GetContext(ctx, q, entry, `
		INSERT INTO coin_transactions
			(account_id, from_user_id, to_user_id, hold_id, amount, type, note, balance_after, frozen_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *
	`, entry.AccountID, entry.FromUserID, entry.ToUserID, entry.HoldID, entry.Amount,
		entry.Type, entry.Note, entry.BalanceAfter, entry.FrozenAfter)
	if err != nil {
		return fmt.Errorf("ledger repository: append entry %w", err)
	}
	return nil
}

// mutate изменяет баланс и фиксирует ровно одну запись журнала с итоговым балансом.
func mutate(ctx context.Context, q sqlx.ExtContext, accountID uuid.UUID, coinDelta, frozenDelta decimal.Decimal, entry models.CoinTransaction) (*models.CoinTransaction, error) {
	b, err := adjustBalance(ctx, q, accountID, coinDelta, frozenDelta)
	if err != nil {
		return nil, err
	}
	entry.AccountID = accountID
	entry.BalanceAfter = b.Coin
	entry.FrozenAfter = b.Frozen
	if err := appendEntry(ctx, q, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Credit зачисляет сумму на расходуемый баланс.
func (r *LedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		out, err = mutate(ctx, tx, userID, amount, decimal.Zero, models.CoinTransaction{
			ToUserID: &userID,
			Amount:   amount,
			Type:     txType,
			Note:     note,
		})
		return err
	})
	return out, err
}

// Debit списывает сумму с расходуемого баланса, не допуская отрицательного остатка.
func (r *LedgerRepository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		out, err = mutate(ctx, tx, userID, amount.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &userID,
			Amount:     amount,
			Type:       txType,
			Note:       note,
		})
		return err
	})
	return out, err
}

// Transfer переводит сумму между пользователями в одной транзакции.
// Журнал фиксирует итоговый баланс отправителя.
func (r *LedgerRepository) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, note string) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		// Блокируем строки в фиксированном порядке, чтобы встречные переводы не взаимоблокировались.
		first, second := fromID, toID
		if second.String() < first.String() {
			first, second = second, first
		}
		if _, err := tx.ExecContext(ctx, `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`, first, second); err != nil {
			return fmt.Errorf("ledger repository: lock users %w", err)
		}

		if _, err := adjustBalance(ctx, tx, toID, amount, decimal.Zero); err != nil {
			return err
		}

		var err error
		out, err = mutate(ctx, tx, fromID, amount.Neg(), decimal.Zero, models.CoinTransaction{
			FromUserID: &fromID,
			ToUserID:   &toID,
			Amount:     amount,
			Type:       models.TxTypeTransfer,
			Note:       note,
		})
		return err
	})
	return out, err
}

// ListTransactions возвращает записи журнала, где пользователь участвует в движении.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CoinTransaction, error) {
	var entries []models.CoinTransaction
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM coin_transactions
		WHERE account_id = $1 OR from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: list transactions %w", err)
	}
	return entries, nil
}
