// Package cipher implements the ciphertext token format used for encrypted
// record fields and the AES-256-GCM primitive behind it.
//
// A token is three colon-separated hex segments: a 16-byte initialization
// vector, a 16-byte authentication tag and the ciphertext.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeyLength is the AES-256 key size in bytes.
	KeyLength = 32
	// IVLength is the nonce size in bytes.
	IVLength = 16
	// TagLength is the GCM authentication tag size in bytes.
	TagLength = 16

	separator = ":"
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrMalformedToken   = errors.New("malformed token")
	ErrAuthentication   = errors.New("message authentication failed")
)

// Engine seals and opens tokens with a single key. Safe for concurrent use.
type Engine struct {
	aead gocipher.AEAD
}

// New returns an Engine for a 32-byte key.
func New(key []byte) (*Engine, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := gocipher.NewGCMWithNonceSize(block, IVLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Engine{aead: aead}, nil
}

// ParseHexKey decodes a 64 character hex key.
func ParseHexKey(s string) ([]byte, error) {
	if len(s) != KeyLength*2 {
		return nil, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidKeyLength, KeyLength*2, len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under a fresh random IV and returns the token.
func (e *Engine) Seal(plaintext string) (string, error) {
	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-TagLength], sealed[len(sealed)-TagLength:]

	var b strings.Builder
	b.Grow(2*len(sealed) + 2*IVLength + 2)
	b.WriteString(hex.EncodeToString(iv))
	b.WriteString(separator)
	b.WriteString(hex.EncodeToString(tag))
	b.WriteString(separator)
	b.WriteString(hex.EncodeToString(ciphertext))
	return b.String(), nil
}

// Open authenticates and decrypts a token.
func (e *Engine) Open(token string) (string, error) {
	parts := strings.Split(token, separator)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != IVLength {
		return "", fmt.Errorf("%w: invalid iv segment", ErrMalformedToken)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != TagLength {
		return "", fmt.Errorf("%w: invalid tag segment", ErrMalformedToken)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil || len(ciphertext) == 0 {
		return "", fmt.Errorf("%w: invalid ciphertext segment", ErrMalformedToken)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := e.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return string(plaintext), nil
}

// IsToken reports whether s has the token shape. It does not authenticate.
func IsToken(s string) bool {
	// cheap reject before splitting
	if len(s) < 2*IVLength+2*TagLength+3 {
		return false
	}
	parts := strings.Split(s, separator)
	if len(parts) != 3 {
		return false
	}
	if len(parts[0]) != 2*IVLength || len(parts[1]) != 2*TagLength || len(parts[2]) == 0 {
		return false
	}
	return isHex(parts[0]) && isHex(parts[1]) && isHex(parts[2])
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
