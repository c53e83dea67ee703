// Package secret шифрует платёжные реквизиты на уровне приложения.
package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrDecrypt шифротекст повреждён или зашифрован другим ключом.
var ErrDecrypt = errors.New("secret: decryption failed")

// Box secretbox (XSalsa20-Poly1305) со случайным nonce в начале шифротекста.
type Box struct {
	key [32]byte
}

// NewBox создаёт Box с ключом из конфигурации.
func NewBox(key [32]byte) *Box {
	return &Box{key: key}
}

// Seal шифрует данные. Формат: nonce(24) || box.
func (b *Box) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("secret: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &b.key), nil
}

// Open расшифровывает результат Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
