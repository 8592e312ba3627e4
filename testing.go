package fieldcrypt

import (
	"log/slog"
	"testing"

	"github.com/pocketledger/fieldcrypt/internal/monitoring"
)

// TestKey is a fixed key for tests. Never use it for real data.
const TestKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewTestCrypto creates an enabled Crypto with TestKey and a silent logger.
func NewTestCrypto(t testing.TB, opts ...CryptoOption) *Crypto {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Key = TestKey
	return NewTestCryptoWithConfig(t, cfg, opts...)
}

// NewTestCryptoWithConfig creates a Crypto from cfg with a silent logger.
func NewTestCryptoWithConfig(t testing.TB, cfg Config, opts ...CryptoOption) *Crypto {
	t.Helper()
	base := []CryptoOption{WithLogger(monitoring.NewDiscardLogger())}
	c, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create test crypto: %v", err)
	}
	return c
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *slog.Logger {
	return monitoring.NewDiscardLogger()
}
