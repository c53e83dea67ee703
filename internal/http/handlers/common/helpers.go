package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/tasknory-backend/internal/dto"
	"github.com/ignatzorin/tasknory-backend/internal/http/middleware"
	"github.com/ignatzorin/tasknory-backend/internal/logger"
	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

var (
	// ErrActorNotFound актора нет в контексте
	ErrActorNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidUUID is returned when UUID parsing fails
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// Сообщения для пользователя по кодам ошибок. Message из AppError наружу не отдаётся.
var userMessages = map[apperror.ErrorCode]string{
	apperror.ErrCodeUnauthorized:      "требуется авторизация",
	apperror.ErrCodeForbidden:         "доступ запрещён",
	apperror.ErrCodeNotFound:          "ресурс не найден",
	apperror.ErrCodeBadRequest:        "некорректный запрос",
	apperror.ErrCodeValidation:        "некорректные данные",
	apperror.ErrCodeConflict:          "конфликт данных",
	apperror.ErrCodeInvalidState:      "операция недоступна в текущем состоянии",
	apperror.ErrCodeDuplicateHold:     "средства по этому этапу уже заблокированы",
	apperror.ErrCodeDuplicateDispute:  "по этому найму уже открыт спор",
	apperror.ErrCodeDuplicateContract: "контракт по этой сдаче уже существует",
	apperror.ErrCodeDuplicateHire:     "исполнитель на заказ уже нанят",
	apperror.ErrCodeInsufficientFunds: "недостаточно средств",
}

// Более точные сообщения для отдельных сущностей.
var notFoundMessages = map[*apperror.AppError]string{
	apperror.ErrUserNotFound:         "пользователь не найден",
	apperror.ErrJobNotFound:          "заказ не найден",
	apperror.ErrMatchNotFound:        "подбор не найден",
	apperror.ErrHireNotFound:         "найм не найден",
	apperror.ErrHoldNotFound:         "блокировка средств не найдена",
	apperror.ErrMilestoneNotFound:    "этап не найден",
	apperror.ErrFinalNotFound:        "сдача работы не найдена",
	apperror.ErrDisputeNotFound:      "спор не найден",
	apperror.ErrContractNotFound:     "контракт не найден",
	apperror.ErrDetailsNotFound:      "реквизиты не найдены",
	apperror.ErrNotificationNotFound: "уведомление не найдено",
}

// CurrentActor достаёт актора из контекста gin.
func CurrentActor(c *gin.Context) (service.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return service.Actor{}, ErrActorNotFound
	}
	return actor, nil
}

// ParseUUIDParam parses UUID from URL parameter
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// RespondAppError переводит ошибку сервиса в HTTP ответ.
// Нетипизированные ошибки считаются внутренними: логируются и отдаются как 500.
func RespondAppError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("internal error")
		RespondInternalError(c, "")
		return
	}

	message := userMessages[appErr.Code]
	if appErr.Code == apperror.ErrCodeNotFound {
		for sentinel, text := range notFoundMessages {
			if appErr.Message == sentinel.Message {
				message = text
				break
			}
		}
	}
	if appErr.Code == apperror.ErrCodeValidation {
		message = "некорректное поле: " + appErr.Message
	}
	if message == "" {
		message = "внутренняя ошибка сервера"
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("internal error")
	}

	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message, Code: string(appErr.Code)})
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, dto.ErrorResponse{Error: message})
}

// RespondSuccess sends a standardized success response
func RespondSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, dto.SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	RespondError(c, http.StatusUnauthorized, message)
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	RespondError(c, http.StatusBadRequest, message)
}

// RespondInternalError sends a 500 Internal Server Error response
func RespondInternalError(c *gin.Context, message string) {
	if message == "" {
		message = "внутренняя ошибка сервера"
	}
	RespondError(c, http.StatusInternalServerError, message)
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
