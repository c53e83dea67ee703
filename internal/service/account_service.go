package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/models"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/repository"
	"github.com/ignatzorin/tasknory-backend/internal/validation"
)

const (
	accountNumberPrefix   = "TN-"
	accountNumberAttempts = 3
)

// AccountService открывает счета пользователей.
type AccountService struct {
	users  UserStore
	policy *Policy
	node   *snowflake.Node
}

// NewAccountService создаёт сервис. nodeID различает экземпляры при генерации номеров счетов.
func NewAccountService(users UserStore, policy *Policy, nodeID int64) (*AccountService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("account service: snowflake node %w", err)
	}
	return &AccountService{users: users, policy: policy, node: node}, nil
}

// OpenAccount создаёт пользователя с нулевыми балансами и уникальным номером счёта.
func (s *AccountService) OpenAccount(ctx context.Context, actor Actor, role valueobject.Role, fullName string) (*models.User, error) {
	if err := s.policy.Authorize(actor, OpOpenAccount, RelNone); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, apperror.Validation("role")
	}
	fullName, err := validation.Text("full_name", fullName, true, validation.MaxFullNameLength)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		user := &models.User{
			Role:          role,
			FullName:      fullName,
			AccountNumber: s.nextAccountNumber(),
		}
		err := s.users.Create(ctx, user)
		if err == nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id":        user.ID,
				"role":           user.Role,
				"account_number": user.AccountNumber,
			}).Info("account opened")
			return user, nil
		}
		if !errors.Is(err, repository.ErrAccountNumberTaken) {
			return nil, err
		}
	}
	return nil, apperror.New(apperror.ErrCodeConflict, "account number space exhausted")
}

func (s *AccountService) nextAccountNumber() string {
	return accountNumberPrefix + strings.ToUpper(s.node.Generate().Base36())
}
