package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidLink подпись ссылки неверна или срок её действия истёк.
var ErrInvalidLink = errors.New("storage: invalid or expired link")

// LocalStorage файловое хранилище с подписанными ссылками на скачивание.
type LocalStorage struct {
	rootPath       string
	baseURL        string
	secret         []byte
	maxUploadBytes int64
}

// NewLocalStorage создаёт файловое хранилище. baseURL адрес обработчика скачивания.
func NewLocalStorage(rootPath, baseURL, secret string, maxUploadBytes int64) (*LocalStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &LocalStorage{
		rootPath:       rootPath,
		baseURL:        strings.TrimRight(baseURL, "/"),
		secret:         []byte(secret),
		maxUploadBytes: maxUploadBytes,
	}, nil
}

// Upload сохраняет файл по относительному пути и возвращает этот путь.
func (s *LocalStorage) Upload(ctx context.Context, relative string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	targetPath, err := s.resolve(relative)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: не удалось создать каталог: %w", err)
	}

	tempPath := targetPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return relative, nil
}

// SignedURL ссылка на скачивание с токеном, ограниченным по времени.
func (s *LocalStorage) SignedURL(ctx context.Context, relative string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   relative,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("storage: подпись ссылки: %w", err)
	}
	return s.baseURL + "?token=" + url.QueryEscape(token), nil
}

// Open проверяет токен ссылки и возвращает путь к файлу на диске.
func (s *LocalStorage) Open(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidLink
	}
	return s.resolve(claims.Subject)
}

// resolve не даёт выйти за пределы корневого каталога.
func (s *LocalStorage) resolve(relative string) (string, error) {
	clean := filepath.Clean("/" + relative)
	target := filepath.Join(s.rootPath, clean)
	root := filepath.Clean(s.rootPath)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: недопустимый путь %q", relative)
	}
	return target, nil
}
