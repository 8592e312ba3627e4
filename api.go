package fieldcrypt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/pocketledger/fieldcrypt/internal/cipher"
)

// IsEncrypted reports whether s has the ciphertext token shape
// iv_hex:tag_hex:ciphertext_hex. It does not authenticate the token.
func (c *Crypto) IsEncrypted(s string) bool {
	return cipher.IsToken(s)
}

// IsEncrypted is the package level form of Crypto.IsEncrypted.
func IsEncrypted(s string) bool {
	return cipher.IsToken(s)
}

// Encrypt encrypts a number or a string and returns its token.
//
// Numbers are written in their shortest decimal form, so 1234.5 encrypts
// "1234.5". A string that is already a token is returned unchanged and a
// warning is logged, unless Config.Strict is set. The empty string is
// returned unchanged. With encryption disabled the value is only
// stringified.
func (c *Crypto) Encrypt(value any) (token string, err error) {
	plaintext, err := stringify(value)
	if err != nil {
		return "", err
	}
	if !c.config.Enabled || plaintext == "" {
		return plaintext, nil
	}

	if cipher.IsToken(plaintext) {
		c.recorder.RecordDoubleEncryption()
		if c.config.Strict {
			return "", NewEncryptionFailedError(fmt.Errorf("value is already encrypted"))
		}
		c.logger.Warn("double encryption prevented, value is already encrypted",
			slog.String("value", truncate(plaintext, snippetLength)))
		return plaintext, nil
	}

	start := time.Now()
	defer func() { c.recorder.RecordOperation(opEncrypt, err, time.Since(start)) }()

	engine, err := c.cipherEngine(context.Background())
	if err != nil {
		return "", err
	}
	token, err = engine.Seal(plaintext)
	if err != nil {
		return "", NewEncryptionFailedError(err)
	}
	return token, nil
}

// DecryptString decrypts a token. Input that is not a token is returned
// unchanged so legacy plaintext keeps working. A plaintext that is itself a
// token is decrypted again, up to MaxUnwrapDepth layers in total.
func (c *Crypto) DecryptString(token string) (plaintext string, err error) {
	if !c.config.Enabled || !cipher.IsToken(token) {
		return token, nil
	}

	start := time.Now()
	defer func() { c.recorder.RecordOperation(opDecryptString, err, time.Since(start)) }()

	engine, err := c.cipherEngine(context.Background())
	if err != nil {
		return "", err
	}

	value := token
	for layer := 1; layer <= MaxUnwrapDepth; layer++ {
		opened, err := engine.Open(value)
		if err != nil {
			return "", wrapOpenError(value, err)
		}
		value = opened
		if !cipher.IsToken(value) {
			return value, nil
		}
		if layer < MaxUnwrapDepth {
			c.recorder.RecordUnwrap()
			c.logger.Warn("decrypted value is still encrypted, unwrapping another layer",
				slog.Int("layer", layer+1))
		}
	}
	return "", NewCorruptedDataError(value, fmt.Errorf("more than %d encryption layers", MaxUnwrapDepth))
}

// DecryptNumber decrypts a token and parses it as a decimal number.
// Unparseable text and NaN are CorruptedData errors.
func (c *Crypto) DecryptNumber(token string) (n float64, err error) {
	start := time.Now()
	defer func() {
		if c.config.Enabled {
			c.recorder.RecordOperation(opDecryptNumber, err, time.Since(start))
		}
	}()

	plaintext, err := c.DecryptString(token)
	if err != nil {
		return 0, err
	}
	return parseNumber(plaintext)
}

// SafeEncrypt is Encrypt for optional values: nil in, nil out.
func (c *Crypto) SafeEncrypt(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}
	token, err := c.Encrypt(value)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// SafeDecryptString is DecryptString for optional values.
func (c *Crypto) SafeDecryptString(token *string) (*string, error) {
	if token == nil {
		return nil, nil
	}
	s, err := c.DecryptString(*token)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SafeDecryptNumber is DecryptNumber for optional values.
func (c *Crypto) SafeDecryptNumber(token *string) (*float64, error) {
	if token == nil {
		return nil, nil
	}
	n, err := c.DecryptNumber(*token)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DecryptStringResult never fails: on error the result carries fallback
// and the cause.
func (c *Crypto) DecryptStringResult(token, fallback string) Result[string] {
	s, err := c.DecryptString(token)
	if err != nil {
		return failed(fallback, err)
	}
	return ok(s)
}

// DecryptNumberResult never fails: on error the result carries fallback
// and the cause.
func (c *Crypto) DecryptNumberResult(token string, fallback float64) Result[float64] {
	n, err := c.DecryptNumber(token)
	if err != nil {
		return failed(fallback, err)
	}
	return ok(n)
}

func wrapOpenError(value string, err error) *EncryptionError {
	wrapped := WrapEncryptionError(err)
	if wrapped.Code == CodeCorruptedData && wrapped.Snippet == "" {
		wrapped.Snippet = truncate(value, snippetLength)
	}
	return wrapped
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, NewCorruptedDataError(s, fmt.Errorf("not a number: %w", err))
	}
	if math.IsNaN(n) {
		return 0, NewCorruptedDataError(s, fmt.Errorf("not a number"))
	}
	return n, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stringify renders the supported scalar kinds.
func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, v)
		}
		return formatNumber(v), nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, v)
		}
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}
