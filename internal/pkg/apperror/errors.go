package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeDuplicateHold     ErrorCode = "DUPLICATE_HOLD"
	ErrCodeDuplicateDispute  ErrorCode = "DUPLICATE_DISPUTE"
	ErrCodeDuplicateContract ErrorCode = "DUPLICATE_CONTRACT"
	ErrCodeDuplicateHire     ErrorCode = "DUPLICATE_HIRE"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
)

// AppError типизированная ошибка домена.
// Message служит для логов и не предназначен для показа пользователю.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду: errors.Is(err, ErrInvalidState) истинно для любой INVALID_STATE.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidState,
		ErrCodeDuplicateHold, ErrCodeDuplicateDispute, ErrCodeDuplicateContract, ErrCodeDuplicateHire:
		return http.StatusConflict
	case ErrCodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки или ErrCodeInternal для нетипизированных ошибок.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return HasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}

func IsInvalidState(err error) bool {
	return HasCode(err, ErrCodeInvalidState)
}

var (
	ErrUnauthorized      = New(ErrCodeUnauthorized, "unauthenticated")
	ErrForbidden         = New(ErrCodeForbidden, "role or ownership check failed")
	ErrUserNotFound      = New(ErrCodeNotFound, "user not found")
	ErrJobNotFound       = New(ErrCodeNotFound, "job not found")
	ErrMatchNotFound     = New(ErrCodeNotFound, "match not found")
	ErrHireNotFound      = New(ErrCodeNotFound, "hire not found")
	ErrHoldNotFound      = New(ErrCodeNotFound, "hold not found")
	ErrMilestoneNotFound = New(ErrCodeNotFound, "milestone not found")
	ErrFinalNotFound     = New(ErrCodeNotFound, "final submission not found")
	ErrDisputeNotFound   = New(ErrCodeNotFound, "dispute not found")
	ErrContractNotFound  = New(ErrCodeNotFound, "contract not found")
	ErrDetailsNotFound   = New(ErrCodeNotFound, "payment details not found")

	ErrInvalidState      = New(ErrCodeInvalidState, "operation illegal in current state")
	ErrDuplicateHold     = New(ErrCodeDuplicateHold, "active hold already exists")
	ErrDuplicateDispute  = New(ErrCodeDuplicateDispute, "open dispute already exists")
	ErrDuplicateContract = New(ErrCodeDuplicateContract, "contract already exists")
	ErrDuplicateHire     = New(ErrCodeDuplicateHire, "job already hired")
	ErrInsufficientFunds = New(ErrCodeInsufficientFunds, "insufficient funds")
)

var ErrNotificationNotFound = New(ErrCodeNotFound, "notification not found")

// Validation создаёт ошибку валидации для конкретного поля.
func Validation(field string) *AppError {
	return New(ErrCodeValidation, field)
}

// InvalidState уточняет, какой переход был отклонён.
func InvalidState(detail string) *AppError {
	return New(ErrCodeInvalidState, detail)
}
