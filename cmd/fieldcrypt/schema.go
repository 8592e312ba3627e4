package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pocketledger/fieldcrypt"
	"gopkg.in/yaml.v3"
)

// schema prints the active registry as YAML, or validates --file.
func (a *app) schema(args []string) error {
	fs := a.newFlagSet("schema")
	file := fs.String("file", "", "schema file to validate")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	reg := fieldcrypt.DefaultRegistry()
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		if reg, err = fieldcrypt.ParseSchema(data); err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "%s: %d models OK\n", *file, len(reg.Models()))
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(reg)
}

type fileConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	Strict    bool                   `yaml:"strict"`
	AppEnv    string                 `yaml:"appEnv"`
	LogLevel  string                 `yaml:"logLevel"`
	LogFormat string                 `yaml:"logFormat"`
	Audit     fieldcrypt.AuditConfig `yaml:"audit"`
	Cache     cacheFileConfig        `yaml:"cache"`
}

type cacheFileConfig struct {
	MaxSize int    `yaml:"maxSize"`
	TTL     string `yaml:"ttl"`
}

const configHeader = `# fieldcrypt configuration.
# The key is read from ENCRYPTION_KEY unless a "key" entry is added here.
`

// initConfig writes a configuration file with the defaults.
func (a *app) initConfig(args []string) error {
	fs := a.newFlagSet("init")
	out := fs.StringP("output", "o", "fieldcrypt.yaml", "file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	if ok, err := parse(fs, args); !ok || err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", *out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	def := fieldcrypt.DefaultConfig()
	data, err := yaml.Marshal(fileConfig{
		Enabled:   def.Enabled,
		Strict:    def.Strict,
		AppEnv:    def.AppEnv,
		LogLevel:  "info",
		LogFormat: "json",
		Audit:     def.Audit,
		Cache:     cacheFileConfig{MaxSize: def.Cache.MaxSize, TTL: def.Cache.TTL.String()},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, append([]byte(configHeader), data...), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %s\n", *out)
	return nil
}
