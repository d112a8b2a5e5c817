package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("matrix-engine", LevelInfo, &buf).With(map[string]interface{}{"event_id": "e-1"})

	log.Debug("dropped", nil)
	log.Info("slot filled", map[string]interface{}{"slot": 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "matrix-engine", entry["service"])
	assert.Equal(t, "slot filled", entry["message"])
	assert.Equal(t, "e-1", entry["event_id"])
	assert.Equal(t, float64(2), entry["slot"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}
