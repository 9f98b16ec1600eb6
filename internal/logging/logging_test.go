package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		base = newBase()
	})

	require.NoError(t, Configure("info", "json"))
	NewLogger("orchestrator").WithField("team", "alpha").Info("Team started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "orchestrator", entry["component"])
	assert.Equal(t, "alpha", entry["team"])
	assert.Equal(t, "Team started", entry["msg"])
}

func TestConfigureRejectsUnknownValues(t *testing.T) {
	t.Cleanup(func() {
		base = newBase()
	})

	assert.Error(t, Configure("loud", "text"))
	assert.Error(t, Configure("info", "xml"))
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		base = newBase()
	})

	require.NoError(t, Configure("warn", "text"))
	NewLogger("builder").Debug("hidden")
	assert.Empty(t, buf.String())
}
