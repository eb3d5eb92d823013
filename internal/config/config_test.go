package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offstore/internal/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `
name: offline-forms
version: 2
backend: indexeddb
path: ./offline.db
tables:
  formData: "uuid, fullName, species"
  species: "uuid, &name"
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "store.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "offline-forms", cfg.Name)
	assert.Equal(t, 2, cfg.Version)
	assert.Equal(t, BackendIndexedDB, cfg.Backend)
	assert.Equal(t, "./offline.db", cfg.Path)
	assert.Equal(t, map[string]string{
		"formData": "uuid, fullName, species",
		"species":  "uuid, &name",
	}, cfg.Tables)

	s, err := cfg.Schema()
	require.NoError(t, err)
	assert.Equal(t, "offline-forms@v2 formData(uuid, fullName, species) species(uuid, &name)", s.String())
}

func TestLoad_YAMLRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeFile(t, "store.yml", "name: x\nversoin: 2\n"))
	require.Error(t, err)
	assert.True(t, storage.IsConfig(err))
	assert.Contains(t, err.Error(), "versoin")
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "store.cue", `
name:    "offline-forms"
version: 1
tables: {
	formData: "uuid, fullName, species"
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "offline-forms", cfg.Name)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, BackendLocal, cfg.Backend, "default kept")
	assert.Equal(t, "uuid, fullName, species", cfg.Tables["formData"])
}

func TestLoad_CUEMustBeConcrete(t *testing.T) {
	_, err := Load(writeFile(t, "store.cue", "name: string\nversion: 1\n"))
	require.Error(t, err)
	assert.True(t, storage.IsConfig(err))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, storage.IsConfig(err))

	_, err = Load(writeFile(t, "store.toml", "name = 1"))
	assert.True(t, storage.IsConfig(err))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OFFSTORE_VERSION", "3")
	t.Setenv("OFFSTORE_BACKEND", "local")
	t.Setenv("OFFSTORE_QUOTA_BYTES", "4096")

	cfg, err := Load(writeFile(t, "store.yaml", yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, "offline-forms", cfg.Name)
	assert.Equal(t, 3, cfg.Version)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, int64(4096), cfg.QuotaBytes)
}

func TestApplyEnv_ParseError(t *testing.T) {
	t.Setenv("OFFSTORE_VERSION", "two")
	cfg := Default()
	err := ApplyEnv(&cfg)
	require.Error(t, err)
	assert.True(t, storage.IsConfig(err))
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"indexeddb with path", func(c *Config) { c.Backend = BackendIndexedDB; c.Path = "x.db" }, true},
		{"indexeddb without path", func(c *Config) { c.Backend = BackendIndexedDB }, false},
		{"unknown backend", func(c *Config) { c.Backend = "websql" }, false},
		{"negative quota", func(c *Config) { c.QuotaBytes = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, storage.IsConfig(err))
		})
	}
}

func TestSchema_RequiresTables(t *testing.T) {
	_, err := Default().Schema()
	require.Error(t, err)
	assert.True(t, storage.IsConfig(err))
}
