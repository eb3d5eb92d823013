package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offstore/internal/config"
)

func TestLoadScenario_SyncLayout(t *testing.T) {
	s := loadTestScenario(t, "sync_layout")

	assert.Equal(t, "sync_layout", s.Name)
	assert.Equal(t, config.BackendLocal, s.Store.Backend)
	assert.Equal(t, "uuid, fullName, species", s.Store.Tables["formData"])
	require.Len(t, s.Flow, 3)
	assert.Equal(t, OpCreate, s.Flow[0].Op)
	assert.Equal(t, map[string]any{"species": "grouper"}, s.Flow[0].Record)
	require.NotNil(t, s.Flow[2].Expect)
	assert.Len(t, s.Flow[2].Expect.Records, 2)
	require.Len(t, s.Assertions, 2)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 2, *s.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: "assertion instead of assertions"
store:
  tables: { t: "uuid" }
flow:
  - op: find
    table: t
assertion:
  - type: trace_count
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	const base = `
name: v
description: "d"
store:
  tables: { t: "uuid" }
`
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nstore: {tables: {t: uuid}}\nflow: [{op: find, table: t}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "name is required",
		},
		{
			name: "no tables",
			body: "name: v\ndescription: d\nflow: [{op: find, table: t}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "store.tables is required",
		},
		{
			name: "bad backend",
			body: "name: v\ndescription: d\nstore: {backend: websql, tables: {t: uuid}}\nflow: [{op: find, table: t}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "unknown backend",
		},
		{
			name: "empty flow",
			body: base + "flow: []\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "flow list is required",
		},
		{
			name: "unknown op",
			body: base + "flow: [{op: upsert, table: t}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: `unknown op "upsert"`,
		},
		{
			name: "missing table",
			body: base + "flow: [{op: find}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "table is required for find",
		},
		{
			name: "reopen without version",
			body: base + "flow: [{op: reopen}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "version is required for reopen",
		},
		{
			name: "unknown error kind",
			body: base + "flow: [{op: find, table: t, expect: {error: oops}}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: `unknown error kind "oops"`,
		},
		{
			name: "count on create",
			body: base + "flow: [{op: create, table: t, expect: {count: 1}}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "apply to find only",
		},
		{
			name: "expect in setup",
			body: base + "setup: [{op: find, table: t, expect: {count: 1}}]\nflow: [{op: find, table: t}]\nassertions: [{type: trace_order, ops: [find]}]\n",
			want: "expect is not allowed in setup",
		},
		{
			name: "no assertions",
			body: base + "flow: [{op: find, table: t}]\nassertions: []\n",
			want: "assertions list is required",
		},
		{
			name: "trace_count without count",
			body: base + "flow: [{op: find, table: t}]\nassertions: [{type: trace_count, op: find}]\n",
			want: "non-negative count is required",
		},
		{
			name: "final_state without checks",
			body: base + "flow: [{op: find, table: t}]\nassertions: [{type: final_state, table: t}]\n",
			want: "count or expect is required",
		},
		{
			name: "unknown assertion",
			body: base + "flow: [{op: find, table: t}]\nassertions: [{type: trace_contains}]\n",
			want: `unknown assertion type "trace_contains"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
