package dto

import (
	"github.com/ignatzorin/tasknory-backend/internal/models"
)

// ErrorResponse ответ с ошибкой. Code совпадает с кодом apperror.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse простой ответ об успехе.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse страница списка.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// CreateJobResponse заказ вместе с этапами.
type CreateJobResponse struct {
	Job        *models.Job        `json:"job"`
	Milestones []models.Milestone `json:"milestones,omitempty"`
}

// SignedURLResponse временная ссылка на файл.
type SignedURLResponse struct {
	URL string `json:"url"`
}

// UnreadCountResponse число непрочитанных уведомлений.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
