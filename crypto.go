package fieldcrypt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pocketledger/fieldcrypt/audit"
	"github.com/pocketledger/fieldcrypt/internal/cipher"
	"github.com/pocketledger/fieldcrypt/internal/monitoring"
	"github.com/pocketledger/fieldcrypt/internal/reliability"
	"github.com/pocketledger/fieldcrypt/internal/schema"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives operational metrics. *Metrics implements it.
type Recorder = monitoring.Recorder

// Metrics is a Recorder backed by prometheus collectors.
type Metrics = monitoring.Registry

// NewMetrics registers the collectors on reg. A nil reg uses a fresh
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return monitoring.NewRegistry()
	}
	return monitoring.NewRegistryWith(reg)
}

// RetryConfig controls retries of a failing KeyProvider.
type RetryConfig = reliability.RetryConfig

// KeyProvider supplies the hex encoded key when it does not come from
// Config.Key, for example from a secrets store.
type KeyProvider interface {
	EncryptionKey(ctx context.Context) (string, error)
}

// Crypto is the encryption service. It is built once at startup from a
// Config and passed to whatever needs it. Safe for concurrent use.
type Crypto struct {
	config   Config
	registry *schema.Registry
	logger   *slog.Logger
	recorder Recorder
	auditor  *audit.Logger

	keyProvider KeyProvider
	keyTimeout  time.Duration
	keyRetry    reliability.RetryConfig

	keyMu     sync.Mutex
	loaded    atomic.Bool
	engine    *cipher.Engine
	engineErr error
}

// CryptoOption configures a Crypto.
type CryptoOption func(c *Crypto) error

// WithRegistry replaces the schema registry.
func WithRegistry(r *schema.Registry) CryptoOption {
	return func(c *Crypto) error {
		if r == nil {
			return errors.New("registry is nil")
		}
		c.registry = r
		return nil
	}
}

// WithSchemaFile loads the schema registry from a YAML file.
func WithSchemaFile(path string) CryptoOption {
	return func(c *Crypto) error {
		r, err := schema.LoadFile(path)
		if err != nil {
			return err
		}
		c.registry = r
		return nil
	}
}

func WithLogger(logger *slog.Logger) CryptoOption {
	return func(c *Crypto) error {
		c.logger = logger
		return nil
	}
}

func WithRecorder(r Recorder) CryptoOption {
	return func(c *Crypto) error {
		c.recorder = r
		return nil
	}
}

// WithAuditor makes record decryption emit DECRYPT audit events.
func WithAuditor(a *audit.Logger) CryptoOption {
	return func(c *Crypto) error {
		c.auditor = a
		return nil
	}
}

// WithKeyProvider fetches the key from p on first use instead of
// Config.Key. timeout bounds the lazy fetch; Init uses its own context.
func WithKeyProvider(p KeyProvider, timeout time.Duration) CryptoOption {
	return func(c *Crypto) error {
		c.keyProvider = p
		c.keyTimeout = timeout
		return nil
	}
}

// WithKeyRetry sets how often a failing KeyProvider is retried. Errors of
// type *EncryptionError are never retried.
func WithKeyRetry(cfg RetryConfig) CryptoOption {
	return func(c *Crypto) error {
		c.keyRetry = cfg
		return nil
	}
}

// New creates a Crypto. The key is not read until the first cipher
// operation or an explicit Init.
func New(cfg Config, opts ...CryptoOption) (*Crypto, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	c := &Crypto{
		config:     cfg,
		registry:   schema.Default(),
		recorder:   monitoring.NoOpRecorder{},
		keyTimeout: 10 * time.Second,
		keyRetry:   reliability.DefaultRetryConfig(),
	}
	if cfg.SchemaFile != "" {
		opts = append([]CryptoOption{WithSchemaFile(cfg.SchemaFile)}, opts...)
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.logger == nil {
		c.logger = monitoring.NewLogger(monitoring.LoggerConfig{
			Level:  levelFor(cfg),
			Format: formatFor(cfg),
		})
	}
	c.logger = c.logger.With(slog.String("component", "fieldcrypt"))
	return c, nil
}

// NewFromEnvironment is LoadConfigFromEnvironment followed by New. It also
// builds the audit logger from the AUDIT_* variables.
func NewFromEnvironment(opts ...CryptoOption) (*Crypto, error) {
	cfg, err := LoadConfigFromEnvironment()
	if err != nil {
		return nil, err
	}
	logger := monitoring.NewEnvironmentLogger(cfg.AppEnv, "")
	auditCfg, err := cfg.Audit.ToAudit()
	if err != nil {
		return nil, err
	}
	base := []CryptoOption{
		WithLogger(logger),
		WithAuditor(audit.New(auditCfg, audit.WithLogger(logger))),
	}
	return New(cfg, append(base, opts...)...)
}

// Init resolves the key now instead of on first use. It returns the same
// error every cipher operation would.
func (c *Crypto) Init(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	_, err := c.cipherEngine(ctx)
	return err
}

// Enabled reports whether encryption is on.
func (c *Crypto) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the schema registry in use.
func (c *Crypto) Registry() *schema.Registry {
	return c.registry
}

// Auditor returns the configured audit logger, or nil.
func (c *Crypto) Auditor() *audit.Logger {
	return c.auditor
}

// NewCache creates a decryption cache sized by Config.Cache and reporting
// to the Crypto's recorder.
func (c *Crypto) NewCache(opts ...CacheOption) *DecryptionCache {
	base := []CacheOption{
		WithMaxSize(c.config.Cache.MaxSize),
		WithTTL(c.config.Cache.TTL),
		WithCacheRecorder(c.recorder),
	}
	return NewDecryptionCache(append(base, opts...)...)
}

// cipherEngine parses the key once. Misconfiguration is remembered so that
// every later call fails identically. Provider outages and cancelled
// contexts are not remembered and the next call fetches again.
func (c *Crypto) cipherEngine(ctx context.Context) (*cipher.Engine, error) {
	if c.loaded.Load() {
		return c.engine, c.engineErr
	}

	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.loaded.Load() {
		return c.engine, c.engineErr
	}

	engine, final, err := c.loadEngine(ctx)
	if err != nil {
		c.logger.Error("encryption key unusable", slog.Any("error", err), slog.Bool("final", final))
	}
	if !final {
		return nil, err
	}
	c.engine, c.engineErr = engine, err
	c.loaded.Store(true)
	return engine, err
}

// loadEngine reports final=false when err came from an unreachable key
// provider rather than from the key itself.
func (c *Crypto) loadEngine(ctx context.Context) (engine *cipher.Engine, final bool, err error) {
	hexKey := c.config.Key
	if c.keyProvider != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, c.keyTimeout)
		defer cancel()
		k, err := c.fetchKey(ctx)
		if err != nil {
			var encErr *EncryptionError
			if errors.As(err, &encErr) {
				return nil, true, encErr
			}
			return nil, false, NewInvalidKeyError(fmt.Errorf("key provider: %w", err))
		}
		hexKey = k
	}
	if hexKey == "" {
		return nil, true, NewMissingKeyError()
	}

	key, err := cipher.ParseHexKey(hexKey)
	if err != nil {
		return nil, true, NewInvalidKeyError(err)
	}
	engine, err = cipher.New(key)
	if err != nil {
		return nil, true, NewInvalidKeyError(err)
	}
	return engine, true, nil
}

// SelfTest loads the key and checks that a value survives a round trip.
// It does nothing when encryption is disabled.
func (c *Crypto) SelfTest(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	engine, err := c.cipherEngine(ctx)
	if err != nil {
		return err
	}
	const canary = "fieldcrypt self-test"
	token, err := engine.Seal(canary)
	if err != nil {
		return NewEncryptionFailedError(err)
	}
	got, err := engine.Open(token)
	if err != nil {
		return WrapEncryptionError(err)
	}
	if got != canary {
		return NewDecryptionFailedError(errors.New("self-test round trip mismatch"))
	}
	return nil
}

// fetchKey asks the provider for the key, retrying transient failures.
func (c *Crypto) fetchKey(ctx context.Context) (string, error) {
	var key string
	err := reliability.Retry(ctx, c.keyRetry, func(ctx context.Context) error {
		k, err := c.keyProvider.EncryptionKey(ctx)
		if err != nil {
			var encErr *EncryptionError
			if errors.As(err, &encErr) {
				return reliability.Permanent(err)
			}
			return err
		}
		key = k
		return nil
	}, func(err error, delay time.Duration) {
		c.logger.Warn("key provider failed, retrying",
			slog.Any("error", err),
			slog.Duration("delay", delay))
	})
	return key, err
}

func levelFor(cfg Config) slog.Level {
	def := slog.LevelDebug
	if cfg.IsProduction() {
		def = slog.LevelInfo
	}
	if cfg.LogLevel == "" {
		return def
	}
	l, err := monitoring.ParseLevel(cfg.LogLevel)
	if err != nil {
		return def
	}
	return l
}

func formatFor(cfg Config) monitoring.LogFormat {
	def := monitoring.FormatConsole
	if cfg.IsProduction() {
		def = monitoring.FormatJSON
	}
	if cfg.LogFormat == "" {
		return def
	}
	f, err := monitoring.ParseFormat(cfg.LogFormat)
	if err != nil {
		return def
	}
	return f
}
