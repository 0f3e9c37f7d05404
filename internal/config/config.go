// Package config loads per-project settings from .codecontext/config.yaml
// and CODECONTEXT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the state directory
const FileName = "config.yaml"

const envPrefix = "CODECONTEXT_"

type Config struct {
	Search  SearchConfig  `yaml:"search"`
	Scan    ScanConfig    `yaml:"scan"`
	Status  StatusConfig  `yaml:"status"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

type ScanConfig struct {
	Exclude       []string `yaml:"exclude"`
	MaxFileSize   int64    `yaml:"max_file_size"`
	IncludeHidden bool     `yaml:"include_hidden"`
}

type StatusConfig struct {
	RecentActivity int `yaml:"recent_activity"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Search: SearchConfig{DefaultLimit: 10},
		Scan: ScanConfig{
			Exclude:     []string{"**/node_modules/**", "**/.git/**", "**/vendor/**", "**/dist/**", "**/build/**"},
			MaxFileSize: 1 << 20,
		},
		Status:  StatusConfig{RecentActivity: 5},
		Server:  ServerConfig{Addr: "127.0.0.1:7420"},
		Watch:   WatchConfig{Debounce: 500 * time.Millisecond},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// Load reads stateDir/config.yaml over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(stateDir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(stateDir, FileName))
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", FileName, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg to stateDir/config.yaml
func Save(stateDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", FileName, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Search.DefaultLimit = envInt("LIMIT", c.Search.DefaultLimit)
	c.Status.RecentActivity = envInt("RECENT", c.Status.RecentActivity)
	c.Scan.Exclude = envList("EXCLUDE", c.Scan.Exclude)
	c.Scan.IncludeHidden = envBool("INCLUDE_HIDDEN", c.Scan.IncludeHidden)
	c.Server.Addr = envStr("ADDR", c.Server.Addr)
	c.Watch.Debounce = envDuration("DEBOUNCE", c.Watch.Debounce)
	c.Logging.Level = envStr("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = envStr("LOG_FILE", c.Logging.File)
}

func (c *Config) validate() error {
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Status.RecentActivity < 0 {
		return fmt.Errorf("status.recent_activity must not be negative, got %d", c.Status.RecentActivity)
	}
	if c.Scan.MaxFileSize < 1 {
		return fmt.Errorf("scan.max_file_size must be positive, got %d", c.Scan.MaxFileSize)
	}
	for _, p := range c.Scan.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("scan.exclude: invalid pattern %q", p)
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
