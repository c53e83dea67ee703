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

// ErrAccountNumberTaken номер счёта уже занят.
var ErrAccountNumberTaken = errors.New("account number taken")

// UserRepository отвечает за таблицу users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт пользователя с нулевыми балансами.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (role, full_name, account_number)
		VALUES ($1, $2, $3)
		RETURNING id, coin_balance, frozen_balance, created_at, updated_at
	`, user.Role, user.FullName, user.AccountNumber,
	).Scan(&user.ID, &user.CoinBalance, &user.FrozenBalance, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "users_account_number_key") {
			return ErrAccountNumberTaken
		}
		return fmt.Errorf("user repository: create %w", err)
	}
	return nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, apperror.ErrUserNotFound)
}

// GetByAccountNumber возвращает пользователя по номеру счёта.
func (r *UserRepository) GetByAccountNumber(ctx context.Context, number string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE account_number = $1`, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by account number %w", err)
	}
	return &user, nil
}

// HeldTotal сумма активных холдов клиента.
func (r *UserRepository) HeldTotal(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM coin_holds
		WHERE client_id = $1 AND status IN ('held', 'disputed')
	`, clientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("user repository: held total %w", err)
	}
	return total, nil
}
