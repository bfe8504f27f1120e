package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWith_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Options{Level: slog.LevelInfo, Output: &buf})
	logger.Info("failed", "error", errors.New("boom"))
	assert.Contains(t, buf.String(), "err=boom")
	assert.NotContains(t, buf.String(), "error=")
}

func TestNewWith_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Options{Level: slog.LevelDebug, Format: FormatJSON, Output: &buf})
	logger.Debug("collect", "freed", 2)
	assert.Contains(t, buf.String(), `"msg":"collect"`)
	assert.Contains(t, buf.String(), `"freed":2`)
}

func TestNewWith_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Options{Level: slog.LevelWarn, Output: &buf})
	logger.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
