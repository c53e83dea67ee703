package common

import (
	"errors"

	"github.com/lib/pq"
)

// Коды ошибок PostgreSQL, которые репозитории переводят в доменные ошибки.
const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// IsUniqueViolation сообщает, нарушено ли ограничение уникальности constraint.
// Пустой constraint совпадает с любым ограничением.
func IsUniqueViolation(err error, constraint string) bool {
	return isPQCode(err, pqUniqueViolation, constraint)
}

// IsCheckViolation сообщает, нарушено ли CHECK-ограничение constraint.
func IsCheckViolation(err error, constraint string) bool {
	return isPQCode(err, pqCheckViolation, constraint)
}

func isPQCode(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
