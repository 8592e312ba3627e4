package fieldcrypt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pocketledger/fieldcrypt/internal/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      *EncryptionError
		sentinel error
		code     Code
	}{
		{"missing key", NewMissingKeyError(), ErrMissingKey, CodeMissingKey},
		{"invalid key", NewInvalidKeyError(errors.New("bad hex")), ErrInvalidKey, CodeInvalidKey},
		{"corrupted", NewCorruptedDataError("zz", nil), ErrCorruptedData, CodeCorruptedData},
		{"decryption", NewDecryptionFailedError(nil), ErrDecryptionFailed, CodeDecryptionFailed},
		{"encryption", NewEncryptionFailedError(nil), ErrEncryptionFailed, CodeEncryptionFailed},
		{"key version", NewKeyVersionNotFoundError(3), ErrKeyVersionNotFound, CodeKeyVersionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.code, tt.err.Code)

			wrapped := fmt.Errorf("loading record: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			code, ok := CodeOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tt.code, code)

			for _, other := range []error{ErrMissingKey, ErrInvalidKey, ErrCorruptedData, ErrDecryptionFailed, ErrEncryptionFailed, ErrKeyVersionNotFound} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, tt.err, other)
				}
			}
		})
	}
}

func TestEncryptionError_Message(t *testing.T) {
	err := NewMissingKeyError()
	assert.Contains(t, err.Error(), "MISSING_KEY")
	assert.Contains(t, err.Error(), EnvEncryptionKey)

	err = NewInvalidKeyError(errors.New("odd length"))
	assert.Contains(t, err.Error(), "64 hex characters")
	assert.Contains(t, err.Error(), "odd length")

	err = NewCorruptedDataError(strings.Repeat("x", 100), nil)
	assert.Equal(t, strings.Repeat("x", snippetLength)+"...", err.Snippet)

	err = NewKeyVersionNotFoundError(7)
	assert.Contains(t, err.Error(), "7")
}

func TestEncryptionError_SnippetKeepsWholeRunes(t *testing.T) {
	value := "x" + strings.Repeat("é", 30)
	err := NewCorruptedDataError(value, nil)
	assert.True(t, utf8.ValidString(err.Snippet))
	assert.Equal(t, "x"+strings.Repeat("é", 9)+"...", err.Snippet)

	err = NewCorruptedDataError(strings.Repeat("€", 10), nil)
	assert.True(t, utf8.ValidString(err.Snippet))
	assert.Equal(t, strings.Repeat("€", 6)+"...", err.Snippet)
}

func TestEncryptionError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewDecryptionFailedError(nil))
	assert.True(t, errors.Is(err, &EncryptionError{Code: CodeDecryptionFailed}))
	assert.False(t, errors.Is(err, &EncryptionError{Code: CodeCorruptedData}))

	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, CodeDecryptionFailed, encErr.Code)
}

func TestWrapEncryptionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"already typed", NewMissingKeyError(), CodeMissingKey},
		{"cipher authentication", fmt.Errorf("%w: tag mismatch", cipher.ErrAuthentication), CodeDecryptionFailed},
		{"cipher malformed", fmt.Errorf("%w: bad iv", cipher.ErrMalformedToken), CodeCorruptedData},
		{"gcm message", errors.New("cipher: message authentication failed"), CodeDecryptionFailed},
		{"hex invalid byte", errors.New("encoding/hex: invalid byte: U+007A 'z'"), CodeCorruptedData},
		{"hex odd length", errors.New("encoding/hex: odd length hex string"), CodeCorruptedData},
		{"anything else", errors.New("entropy source exhausted"), CodeEncryptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapEncryptionError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
		})
	}

	assert.Nil(t, WrapEncryptionError(nil))

	typed := NewInvalidKeyError(nil)
	assert.Same(t, typed, WrapEncryptionError(fmt.Errorf("ctx: %w", typed)))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsKeyConfigurationError(NewMissingKeyError()))
	assert.True(t, IsKeyConfigurationError(NewInvalidKeyError(nil)))
	assert.False(t, IsKeyConfigurationError(NewCorruptedDataError("", nil)))
	assert.False(t, IsKeyConfigurationError(errors.New("other")))

	assert.True(t, IsDataError(NewCorruptedDataError("", nil)))
	assert.True(t, IsDataError(NewDecryptionFailedError(nil)))
	assert.False(t, IsDataError(NewEncryptionFailedError(nil)))

	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		locale string
		want   string
	}{
		{"english", NewDecryptionFailedError(nil), LocaleEnglish, "Some of your data could not be read."},
		{"portuguese", NewMissingKeyError(), LocalePortuguese, "A criptografia não está configurada. Entre em contato com o suporte."},
		{"language only", NewCorruptedDataError("", nil), "pt", "Alguns dos seus dados não puderam ser lidos."},
		{"underscore tag", NewCorruptedDataError("", nil), "pt_BR", "Alguns dos seus dados não puderam ser lidos."},
		{"unknown locale", NewInvalidKeyError(nil), "fr-FR", "Encryption is misconfigured. Please contact support."},
		{"untyped error", errors.New("secret detail"), LocaleEnglish, "An unexpected error occurred."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserMessage(tt.err, tt.locale)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Empty(t, UserMessage(nil, LocaleEnglish))
	assert.NotContains(t, UserMessage(NewDecryptionFailedError(errors.New("gcm tag")), LocaleEnglish), "gcm")
}
