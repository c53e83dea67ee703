package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/storage"
)

// ProofFiles открывает файл по подписанной ссылке.
type ProofFiles interface {
	Open(token string) (string, error)
}

// ProofHandler отдаёт файлы локального хранилища по подписанным ссылкам.
type ProofHandler struct {
	files ProofFiles
}

func NewProofHandler(files ProofFiles) *ProofHandler {
	return &ProofHandler{files: files}
}

// Download GET /files?token=...
func (h *ProofHandler) Download(c *gin.Context) {
	path, err := h.files.Open(c.Query("token"))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidLink) {
			common.RespondError(c, http.StatusForbidden, "ссылка недействительна или истекла")
			return
		}
		common.RespondError(c, http.StatusNotFound, "файл не найден")
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.File(path)
}
