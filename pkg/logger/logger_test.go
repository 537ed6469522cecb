package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(zapcore.AddSync(buf), true)
	t.Cleanup(func() {
		SetLevel(INFO)
	})
	return buf
}

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	InfoCF("chat", "Turn completed", map[string]any{"conversation_id": "c1", "messages": 4})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Turn completed", entry["msg"])
	assert.Equal(t, "chat", entry["component"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.EqualValues(t, 4, entry["messages"])
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	DebugC("chat", "hidden")
	assert.Empty(t, buf.String())

	SetLevel(DEBUG)
	DebugC("chat", "visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
