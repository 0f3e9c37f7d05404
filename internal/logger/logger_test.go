package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Out: &buf})
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("key", "value").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "value", entry["key"])
	assert.Contains(t, entry, "time")
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "loud", Console: true, Out: &buf})
	require.NoError(t, err)

	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "codecontext.log")
	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	wl := l.Component("watch")
	wl.Debug().Msg("to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"watch"`)
	assert.Contains(t, string(data), "to file")
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Pretty: true, Out: &buf})
	require.NoError(t, err)

	l.Info().Msg("human readable")
	assert.Contains(t, buf.String(), "human readable")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error().Msg("nothing")
	assert.NoError(t, l.Close())
}
