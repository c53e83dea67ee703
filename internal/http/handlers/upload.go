package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/service"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
)

var errProofTooLarge = errors.New("файл слишком большой")

// readProof читает необязательный файл из multipart формы и проверяет его сигнатуру.
// Возвращает nil, если поле не передано.
func readProof(c *gin.Context, field string, maxBytes int64) (*service.ProofFile, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, errProofTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := io.Reader(file)
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errProofTooLarge
	}

	contentType, err := storage.DetectProofType(data)
	if err != nil {
		return nil, err
	}

	return &service.ProofFile{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// respondProofError отвечает на ошибку чтения файла.
func respondProofError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errProofTooLarge):
		common.RespondError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, storage.ErrUnsupportedProof):
		common.RespondBadRequest(c, "допустимы только изображения и PDF")
	default:
		common.RespondBadRequest(c, "не удалось прочитать файл")
	}
}
