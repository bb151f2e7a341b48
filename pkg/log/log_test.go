package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "error", want: LogLevelError},
		{input: "warn", want: LogLevelWarn},
		{input: "info", want: LogLevelInfo},
		{input: "debug", want: LogLevelDebug},
		{input: "trace", want: LogLevelTrace},
		{input: "loud", want: LogLevelError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_levels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "", LogLevelInfo)

	logger.Debug("hidden %d", 1)
	logger.Trace("hidden %d", 2)
	logger.Info("player %d joined", 3)
	logger.Error("boom: %v", "disk")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "player 3 joined", entry["msg"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom: disk", entry["msg"])
}

func TestLogger_traceEnabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "handler", LogLevelInfo)
	logger.SetLevel(LogLevelTrace)

	logger.With("slot", 2).Trace("tick")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "tick", entry["msg"])
	assert.Equal(t, "handler", entry["logger"])
	assert.EqualValues(t, 2, entry["slot"])
}
