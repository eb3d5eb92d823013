package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_SyncLayout(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "sync_layout"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_AsyncFind(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "async_find"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "sync_layout")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalSnapshot_NoHTMLEscaping(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Seq: 1, Op: "create", Args: map[string]any{"note": "<b>&</b>"}, Outcome: OutcomeOK})

	data, err := MarshalSnapshot("html", result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"note": "<b>&</b>"`)
}
