package fieldcrypt

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	"github.com/pocketledger/fieldcrypt/internal/config"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from environment variables.
//
// A .env file at the project root (the nearest parent directory holding a
// .env or go.mod) is loaded first. Variables already set in the process
// environment take precedence over the file.
//
// Recognized variables:
//   - ENCRYPTION_KEY: 64 hex characters (checked lazily, see Config)
//   - USE_ENCRYPTION: "false" disables encryption (default: true)
//   - APP_ENV: "production" selects JSON logs (default: development)
//   - LOG_LEVEL, LOG_FORMAT: logger overrides
//   - AUDIT_LOGGING (default: true), AUDIT_LOG_DECRYPTION, AUDIT_LOG_READS
//     (default: false), AUDIT_MIN_SEVERITY (default: INFO)
//   - DECRYPTION_CACHE_MAX_SIZE (default: 1000), DECRYPTION_CACHE_TTL
//     (Go duration, default: 60s)
//   - FIELDCRYPT_SCHEMA_FILE, FIELDCRYPT_STRICT
//
// Example:
//
//	cfg, err := fieldcrypt.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	crypto, err := fieldcrypt.New(cfg)
func LoadConfigFromEnvironment() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.Key = os.Getenv(EnvEncryptionKey)
	cfg.AppEnv = getEnvOrDefault(EnvAppEnv, DefaultAppEnv)
	cfg.LogLevel = os.Getenv(EnvLogLevel)
	cfg.LogFormat = os.Getenv(EnvLogFormat)
	cfg.SchemaFile = os.Getenv(EnvSchemaFile)
	cfg.Audit.MinSeverity = getEnvOrDefault(EnvAuditMinSeverity, DefaultAuditMinSeverity)

	var errs errsx.Map
	parseBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs.Set(key, fmt.Errorf("invalid boolean %q", v))
			return
		}
		*dst = b
	}
	parseBool(EnvUseEncryption, &cfg.Enabled)
	parseBool(EnvStrict, &cfg.Strict)
	parseBool(EnvAuditLogging, &cfg.Audit.Enabled)
	parseBool(EnvAuditLogDecryption, &cfg.Audit.LogDecryption)
	parseBool(EnvAuditLogReads, &cfg.Audit.LogReads)

	if v := os.Getenv(EnvCacheMaxSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.Set(EnvCacheMaxSize, fmt.Errorf("invalid integer %q", v))
		} else {
			cfg.Cache.MaxSize = n
		}
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs.Set(EnvCacheTTL, fmt.Errorf("invalid duration %q", v))
		} else {
			cfg.Cache.TTL = d
		}
	}
	if !errs.IsEmpty() {
		return Config{}, fmt.Errorf("invalid environment: %w", errs.AsError())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file. Keys absent from the file
// keep their DefaultConfig values.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.SchemaFile != "" && !filepath.IsAbs(cfg.SchemaFile) {
		cfg.SchemaFile = filepath.Join(filepath.Dir(path), cfg.SchemaFile)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	root, err := config.FindProjectRoot(wd, ".env", "go.mod")
	if err != nil {
		return nil
	}
	err = godotenv.Load(filepath.Join(root, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable, or a
// default value if it is unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
