package fieldcrypt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pocketledger/fieldcrypt/internal/cipher"
)

// Code identifies the kind of an EncryptionError.
type Code string

const (
	CodeMissingKey         Code = "MISSING_KEY"
	CodeInvalidKey         Code = "INVALID_KEY"
	CodeCorruptedData      Code = "CORRUPTED_DATA"
	CodeDecryptionFailed   Code = "DECRYPTION_FAILED"
	CodeEncryptionFailed   Code = "ENCRYPTION_FAILED"
	CodeKeyVersionNotFound Code = "KEY_VERSION_NOT_FOUND"
)

// snippetLength bounds how much of an offending value is kept on CorruptedData.
const snippetLength = 20

var (
	// Key configuration errors
	ErrMissingKey = errors.New("encryption key is not configured")
	ErrInvalidKey = errors.New("encryption key is invalid")

	// Data errors
	ErrCorruptedData    = errors.New("encrypted data is corrupted")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Operation errors
	ErrEncryptionFailed   = errors.New("encryption failed")
	ErrKeyVersionNotFound = errors.New("key version not found")

	ErrUnsupportedValue    = errors.New("unsupported value type")
	ErrUnknownNestedConfig = errors.New("unknown nested config")
)

var sentinels = map[Code]error{
	CodeMissingKey:         ErrMissingKey,
	CodeInvalidKey:         ErrInvalidKey,
	CodeCorruptedData:      ErrCorruptedData,
	CodeDecryptionFailed:   ErrDecryptionFailed,
	CodeEncryptionFailed:   ErrEncryptionFailed,
	CodeKeyVersionNotFound: ErrKeyVersionNotFound,
}

// EncryptionError is the error type returned by every cipher operation.
// errors.Is matches it against the sentinel of its Code.
type EncryptionError struct {
	Code    Code
	Message string
	// Snippet holds a truncated copy of the offending value (CorruptedData only).
	Snippet string
	Err     error
}

func (e *EncryptionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Snippet != "" {
		fmt.Fprintf(&b, " (value %q)", e.Snippet)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's code.
func (e *EncryptionError) Is(target error) bool {
	if sentinel, ok := sentinels[e.Code]; ok && sentinel == target {
		return true
	}
	if other, ok := target.(*EncryptionError); ok {
		return other.Code == e.Code
	}
	return false
}

func NewMissingKeyError() *EncryptionError {
	return &EncryptionError{
		Code:    CodeMissingKey,
		Message: fmt.Sprintf("%s is not set", EnvEncryptionKey),
	}
}

func NewInvalidKeyError(err error) *EncryptionError {
	return &EncryptionError{
		Code:    CodeInvalidKey,
		Message: fmt.Sprintf("%s must be %d hex characters", EnvEncryptionKey, cipher.KeyLength*2),
		Err:     err,
	}
}

func NewCorruptedDataError(value string, err error) *EncryptionError {
	return &EncryptionError{
		Code:    CodeCorruptedData,
		Message: "value could not be parsed",
		Snippet: truncate(value, snippetLength),
		Err:     err,
	}
}

func NewDecryptionFailedError(err error) *EncryptionError {
	return &EncryptionError{
		Code:    CodeDecryptionFailed,
		Message: "ciphertext authentication failed",
		Err:     err,
	}
}

func NewEncryptionFailedError(err error) *EncryptionError {
	return &EncryptionError{
		Code:    CodeEncryptionFailed,
		Message: "value could not be encrypted",
		Err:     err,
	}
}

func NewKeyVersionNotFoundError(version int) *EncryptionError {
	return &EncryptionError{
		Code:    CodeKeyVersionNotFound,
		Message: fmt.Sprintf("key version %d does not exist", version),
	}
}

// WrapEncryptionError converts any error into an *EncryptionError.
// EncryptionErrors pass through unchanged. Cipher authentication failures
// become DecryptionFailed, malformed input becomes CorruptedData and
// everything else EncryptionFailed.
func WrapEncryptionError(err error) *EncryptionError {
	if err == nil {
		return nil
	}

	var encErr *EncryptionError
	if errors.As(err, &encErr) {
		return encErr
	}

	switch {
	case errors.Is(err, cipher.ErrAuthentication):
		return NewDecryptionFailedError(err)
	case errors.Is(err, cipher.ErrMalformedToken):
		return NewCorruptedDataError("", err)
	}

	// errors from crypto/cipher and encoding/hex carry no sentinel
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "message authentication failed"),
		strings.Contains(msg, "authentication tag"):
		return NewDecryptionFailedError(err)
	case strings.Contains(msg, "invalid byte"),
		strings.Contains(msg, "odd length"),
		strings.Contains(msg, "invalid length"):
		return NewCorruptedDataError("", err)
	}
	return NewEncryptionFailedError(err)
}

// IsKeyConfigurationError reports whether err is a missing or invalid key.
// These are fatal until the configuration is fixed and should not be retried.
func IsKeyConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingKey) || errors.Is(err, ErrInvalidKey)
}

// IsDataError reports whether err concerns one stored value.
func IsDataError(err error) bool {
	return errors.Is(err, ErrCorruptedData) || errors.Is(err, ErrDecryptionFailed)
}

// CodeOf returns the code of an *EncryptionError in err's chain.
func CodeOf(err error) (Code, bool) {
	var encErr *EncryptionError
	if errors.As(err, &encErr) {
		return encErr.Code, true
	}
	return "", false
}

// Result is the outcome of a decrypt that never fails. On failure Value
// holds the caller's fallback and Err the cause.
type Result[T any] struct {
	OK    bool
	Value T
	Err   *EncryptionError
}

func ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

func failed[T any](fallback T, err error) Result[T] {
	return Result[T]{Value: fallback, Err: WrapEncryptionError(err)}
}

// truncate keeps at most n bytes of s, cut on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
