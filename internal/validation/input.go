// Package validation нормализует и проверяет пользовательский текст до записи в БД.
package validation

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// Ограничения длины текстовых полей.
const (
	MaxFullNameLength = 200
	MaxTitleLength    = 200
	MaxReasonLength   = 2000
	MaxMessageLength  = 5000
	MaxNoteLength     = 2000
	MaxURLLength      = 2048
)

// Text обрезает пробелы и проверяет длину в символах. Управляющие символы кроме переводов строк запрещены.
// При ошибке возвращает ошибку валидации с именем поля.
func Text(field, value string, required bool, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return "", apperror.Validation(field)
		}
		return "", nil
	}
	if !utf8.ValidString(value) {
		return "", apperror.Validation(field)
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return "", apperror.Validation(field)
	}
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return "", apperror.Validation(field)
		}
	}
	return value, nil
}

// URL проверяет абсолютную http(s) ссылку.
func URL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxURLLength {
		return "", apperror.Validation(field)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", apperror.Validation(field)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", apperror.Validation(field)
	}
	return raw, nil
}
