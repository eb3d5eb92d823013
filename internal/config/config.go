// Package config loads the store configuration: store name, schema
// version, table definitions and backend selection.
//
// A configuration file is YAML (.yaml, .yml) or CUE (.cue):
//
//	name: offline-forms
//	version: 2
//	backend: indexeddb
//	path: ./offline.db
//	tables:
//	  formData: "uuid, fullName, species"
//	  species: "uuid, &name"
//
// Environment variables override file values:
//
//	OFFSTORE_NAME, OFFSTORE_VERSION, OFFSTORE_BACKEND, OFFSTORE_PATH,
//	OFFSTORE_QUOTA_BYTES
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offstore/internal/schema"
	"github.com/roach88/offstore/internal/storage"
)

// Backend selects the storage engine.
type Backend string

const (
	// BackendLocal is the synchronous key-value backend. With a path it
	// persists to a SQLite file, otherwise it is in memory.
	BackendLocal Backend = "local"
	// BackendIndexedDB is the embedded, versioned, indexed backend.
	BackendIndexedDB Backend = "indexeddb"
)

// Config describes one store.
type Config struct {
	Name       string            `json:"name" yaml:"name" env:"OFFSTORE_NAME"`
	Version    int               `json:"version" yaml:"version" env:"OFFSTORE_VERSION"`
	Backend    Backend           `json:"backend" yaml:"backend" env:"OFFSTORE_BACKEND"`
	Path       string            `json:"path,omitempty" yaml:"path,omitempty" env:"OFFSTORE_PATH"`
	QuotaBytes int64             `json:"quota_bytes,omitempty" yaml:"quota_bytes,omitempty" env:"OFFSTORE_QUOTA_BYTES"`
	Tables     map[string]string `json:"tables" yaml:"tables"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	return Config{
		Name:    "offline-forms",
		Version: 1,
		Backend: BackendLocal,
	}
}

// Load reads path over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, storage.WrapError(storage.KindConfig, "config", "", fmt.Errorf("read %s: %w", path, err))
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".cue":
		err = decodeCUE(path, data, &cfg)
	default:
		return Config{}, storage.NewError(storage.KindConfig, "config", "", "unsupported config format %q", ext)
	}
	if err != nil {
		return Config{}, storage.WrapError(storage.KindConfig, "config", "", fmt.Errorf("%s: %w", path, err))
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("compile cue: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate cue: %w", err)
	}
	if err := value.Decode(cfg); err != nil {
		return fmt.Errorf("decode cue: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any OFFSTORE_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return storage.WrapError(storage.KindConfig, "config", "", fmt.Errorf("parse env: %w", err))
	}
	return nil
}

// Validate checks everything except the table definitions, which Schema
// checks.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendIndexedDB:
		if c.Path == "" {
			return storage.NewError(storage.KindConfig, "config", "", "backend %q requires a path", c.Backend)
		}
	default:
		return storage.NewError(storage.KindConfig, "config", "",
			"unknown backend %q: must be %q or %q", c.Backend, BackendLocal, BackendIndexedDB)
	}
	if c.QuotaBytes < 0 {
		return storage.NewError(storage.KindConfig, "config", "", "quota_bytes must not be negative, got %d", c.QuotaBytes)
	}
	return nil
}

// Schema validates c and builds its store schema.
func (c Config) Schema() (schema.Store, error) {
	if err := c.Validate(); err != nil {
		return schema.Store{}, err
	}
	return schema.NewStore(c.Name, c.Version, c.Tables)
}
