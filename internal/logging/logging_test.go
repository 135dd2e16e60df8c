package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: FormatJSON}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Named("indexer").Info("file indexed", zap.String("type", "pdf"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "indexer", entry["logger"])
	assert.Equal(t, "file indexed", entry["msg"])
	assert.Equal(t, "pdf", entry["type"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`, entry["ts"])
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("walking", zap.Int("files", 3))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "walking")
	assert.Contains(t, out, `{"files": 3}`)
}

func TestNewWithWriter_Invalid(t *testing.T) {
	_, err := NewWithWriter(Config{Level: "chatty"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)

	_, err = NewWithWriter(Config{Format: "xml"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

type failingSyncer struct {
	bytes.Buffer
	err error
}

func (f *failingSyncer) Sync() error { return f.err }

func TestSync_IgnoresTerminalErrors(t *testing.T) {
	ws := &failingSyncer{err: fmt.Errorf("sync /dev/stderr: %w", syscall.EINVAL)}
	logger, err := NewWithWriter(Config{}, ws)
	require.NoError(t, err)
	assert.NoError(t, Sync(logger))

	ws.err = assert.AnError
	assert.ErrorIs(t, Sync(logger), assert.AnError)
}
