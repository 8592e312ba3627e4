package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pocketledger/fieldcrypt"
	"github.com/pocketledger/fieldcrypt/audit"
	"github.com/pocketledger/fieldcrypt/internal/monitoring"
	"github.com/pocketledger/fieldcrypt/providers/awskms"
	"github.com/pocketledger/fieldcrypt/providers/secrets/hashicorp"
	"github.com/pocketledger/fieldcrypt/providers/sqlite"
	"github.com/spf13/pflag"
)

type cryptoFlags struct {
	configPath string
	schemaPath string
	auditDB    string
	keySource  string
	verbose    bool
}

func (f *cryptoFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file (default: environment)")
	fs.StringVar(&f.schemaPath, "schema", "", "YAML schema file replacing the built-in models")
	fs.StringVar(&f.keySource, "key-source", "env", "where the key comes from: env, vault or kms")
	fs.StringVar(&f.auditDB, "audit-db", "", "record decryption audit events in this SQLite database")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output to stderr")
}

func (f *cryptoFlags) config() (fieldcrypt.Config, error) {
	var (
		cfg fieldcrypt.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = fieldcrypt.LoadConfigFile(f.configPath)
		// config files usually leave the key to the environment
		if err == nil && cfg.Key == "" {
			cfg.Key = os.Getenv(fieldcrypt.EnvEncryptionKey)
		}
	} else {
		cfg, err = fieldcrypt.LoadConfigFromEnvironment()
	}
	if err != nil {
		return cfg, err
	}
	if f.schemaPath != "" {
		cfg.SchemaFile = f.schemaPath
	}
	return cfg, nil
}

// keyProvider is replaced in tests. A nil provider means the key comes from
// the configuration.
var keyProvider = func(source string) (fieldcrypt.KeyProvider, error) {
	switch source {
	case "", "env":
		return nil, nil
	case "vault":
		return hashicorp.NewKeyStore()
	case "kms":
		return awskms.New(context.Background(), awskms.ConfigFromEnv())
	default:
		return nil, fmt.Errorf("unknown key source %q", source)
	}
}

// crypto builds a Crypto whose logs go to stderr so that stdout carries
// only results. The returned func releases the audit database, if any.
func (a *app) crypto(f *cryptoFlags) (*fieldcrypt.Crypto, func(), error) {
	noop := func() {}
	cfg, err := f.config()
	if err != nil {
		return nil, noop, err
	}
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:     level,
		Format:    monitoring.FormatText,
		Output:    a.stderr,
		Component: "cli",
	})
	opts := []fieldcrypt.CryptoOption{fieldcrypt.WithLogger(logger)}

	kp, err := keyProvider(f.keySource)
	if err != nil {
		return nil, noop, err
	}
	if kp != nil {
		opts = append(opts, fieldcrypt.WithKeyProvider(kp, 30*time.Second))
	}

	closer := noop
	if f.auditDB != "" {
		auditCfg, err := cfg.Audit.ToAudit()
		if err != nil {
			return nil, noop, err
		}
		auditCfg.Enabled = true
		auditCfg.LogDecryption = true

		store, err := sqlite.Open(context.Background(), f.auditDB)
		if err != nil {
			return nil, noop, err
		}
		closer = func() { _ = store.Close() }
		opts = append(opts, fieldcrypt.WithAuditor(audit.New(auditCfg,
			audit.WithHandler(store),
			audit.WithLogger(logger),
		)))
	}

	c, err := fieldcrypt.New(cfg, opts...)
	if err != nil {
		closer()
		return nil, noop, err
	}
	return c, closer, nil
}
