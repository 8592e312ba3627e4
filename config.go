package fieldcrypt

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketledger/fieldcrypt/audit"
	"github.com/pocketledger/fieldcrypt/internal/config"
)

// Config holds the configuration for a Crypto instance.
//
// The encryption key is not validated here. A missing or malformed key is
// reported by the first cipher operation that needs it.
type Config struct {
	// Key is the AES-256 key as 64 hex characters.
	Key string `yaml:"key"`

	// Enabled turns encryption on. When false every operation is a
	// pass-through and the key is never read.
	Enabled bool `yaml:"enabled"`

	// Strict makes Encrypt fail on input that is already ciphertext instead
	// of returning it unchanged.
	Strict bool `yaml:"strict"`

	AppEnv    string `yaml:"appEnv" validate:"required"`
	LogLevel  string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `yaml:"logFormat" validate:"omitempty,oneof=json text console"`

	// SchemaFile replaces the built-in models when set.
	SchemaFile string `yaml:"schemaFile"`

	Audit AuditConfig `yaml:"audit"`
	Cache CacheConfig `yaml:"cache"`
}

// AuditConfig mirrors audit.Config with string severities for env and YAML.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	MinSeverity   string `yaml:"minSeverity" validate:"required,oneof=INFO NOTICE WARNING CRITICAL"`
	LogDecryption bool   `yaml:"logDecryption"`
	LogReads      bool   `yaml:"logReads"`
}

// CacheConfig holds the defaults for caches created by Crypto.NewCache.
type CacheConfig struct {
	MaxSize int           `yaml:"maxSize" validate:"min=1"`
	TTL     time.Duration `yaml:"ttl" validate:"min=1ms"`
}

// DefaultConfig returns a configuration with encryption and audit logging
// enabled and no key.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		AppEnv:  DefaultAppEnv,
		Audit: AuditConfig{
			Enabled:     true,
			MinSeverity: DefaultAuditMinSeverity,
		},
		Cache: CacheConfig{
			MaxSize: DefaultCacheMaxSize,
			TTL:     DefaultCacheTTL,
		},
	}
}

// Validate applies defaults to unset fields and checks the rest.
func (c *Config) Validate() error {
	if c.AppEnv == "" {
		c.AppEnv = DefaultAppEnv
	}
	if c.Audit.MinSeverity == "" {
		c.Audit.MinSeverity = DefaultAuditMinSeverity
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	c.Audit.MinSeverity = strings.ToUpper(c.Audit.MinSeverity)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	return config.ValidateStruct(c)
}

// IsProduction reports whether AppEnv is "production".
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ToAudit converts to the audit package configuration.
func (a AuditConfig) ToAudit() (audit.Config, error) {
	sev, err := audit.ParseSeverity(a.MinSeverity)
	if err != nil {
		return audit.Config{}, fmt.Errorf("invalid audit severity: %w", err)
	}
	return audit.Config{
		Enabled:       a.Enabled,
		MinSeverity:   sev,
		LogDecryption: a.LogDecryption,
		LogReads:      a.LogReads,
	}, nil
}
