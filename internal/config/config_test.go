package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yml := `
search:
  default_limit: 25
scan:
  exclude: ["**/testdata/**"]
watch:
  debounce: 2s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{"**/testdata/**"}, cfg.Scan.Exclude)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Status.RecentActivity)
	assert.Equal(t, "127.0.0.1:7420", cfg.Server.Addr)
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), nil, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODECONTEXT_LIMIT", "3")
	t.Setenv("CODECONTEXT_EXCLUDE", "a/**, b/** ,")
	t.Setenv("CODECONTEXT_DEBOUNCE", "100ms")
	t.Setenv("CODECONTEXT_ADDR", ":9000")
	t.Setenv("CODECONTEXT_RECENT", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{"a/**", "b/**"}, cfg.Scan.Exclude)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Status.RecentActivity, "unparsable values are ignored")
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "search:\n  limit: 4\n",
		"bad limit":     "search:\n  default_limit: 0\n",
		"bad pattern":   "scan:\n  exclude: [\"[\"]\n",
		"bad level":     "logging:\n  level: loud\n",
		"bad debounce":  "watch:\n  debounce: soon\n",
		"not a mapping": "- a\n- b\n",
	}
	for name, yml := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0o644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Search.DefaultLimit = 7
	cfg.Watch.Debounce = 750 * time.Millisecond
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
