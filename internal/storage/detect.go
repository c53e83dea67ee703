package storage

import (
	"errors"

	"github.com/h2non/filetype"
)

// ErrUnsupportedProof файл не является изображением или PDF.
var ErrUnsupportedProof = errors.New("storage: unsupported proof type")

var allowedProofMIME = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

// DetectProofType определяет реальный тип файла по магическим байтам.
func DetectProofType(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedProof
	}
	if !allowedProofMIME[kind.MIME.Value] {
		return "", ErrUnsupportedProof
	}
	return kind.MIME.Value, nil
}
