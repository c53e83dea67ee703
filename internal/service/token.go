package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// TokenManager проверяет access токены, выпущенные внешним провайдером сессий.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue выпускает access токен. Используется провайдером сессий и в тестах.
func (m *TokenManager) Issue(userID uuid.UUID, role valueobject.Role) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseAccess извлекает актора из access токена.
func (m *TokenManager) ParseAccess(token string) (Actor, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Actor{}, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "invalid access token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, apperror.ErrUnauthorized
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Actor{}, apperror.ErrUnauthorized
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Actor{}, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "invalid subject")
	}

	rawRole, _ := claims["role"].(string)
	role, err := valueobject.NewRole(rawRole)
	if err != nil {
		return Actor{}, apperror.ErrUnauthorized
	}

	return Actor{ID: userID, Role: role}, nil
}
