package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "foreman.db"
	defaultTickInterval   = 15 * time.Second
	defaultStaleThreshold = 30 * time.Second
	defaultStopTimeout    = 10 * time.Second
	defaultRateLimit      = 60
	defaultRateWindow     = time.Minute
	defaultDockerBin      = "docker"

	envConfigFile     = "FOREMAN_CONFIG"
	envListenAddr     = "FOREMAN_LISTEN_ADDR"
	envDBPath         = "FOREMAN_DB_PATH"
	envLogLevel       = "FOREMAN_LOG_LEVEL"
	envTickInterval   = "FOREMAN_TICK_INTERVAL"
	envStaleThreshold = "FOREMAN_STALE_THRESHOLD"
	envStopTimeout    = "FOREMAN_STOP_TIMEOUT"
	envRateLimit      = "FOREMAN_RATE_LIMIT"
	envRateWindow     = "FOREMAN_RATE_WINDOW"
	envDockerBin      = "FOREMAN_DOCKER_BIN"
)

// Config holds application configuration. Values come from an optional YAML
// file (FOREMAN_CONFIG) overridden by environment variables, with safe
// defaults for anything malformed or missing.
type Config struct {
	ListenAddr     string
	DBPath         string
	LogLevel       slog.Level
	TickInterval   time.Duration
	StaleThreshold time.Duration
	StopTimeout    time.Duration
	RateLimit      int
	RateWindow     time.Duration
	DockerBin      string
}

// fileConfig is the YAML representation. Durations are strings so that a
// malformed value degrades to the default instead of failing the decode.
type fileConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	DBPath         string `yaml:"db_path"`
	LogLevel       string `yaml:"log_level"`
	TickInterval   string `yaml:"tick_interval"`
	StaleThreshold string `yaml:"stale_threshold"`
	StopTimeout    string `yaml:"stop_timeout"`
	RateLimit      *int   `yaml:"rate_limit"`
	RateWindow     string `yaml:"rate_window"`
	DockerBin      string `yaml:"docker_bin"`
}

// Load reads configuration from the optional YAML file and environment
// variables. Configuration errors are never fatal: unparseable values fall
// back to defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		TickInterval:   defaultTickInterval,
		StaleThreshold: defaultStaleThreshold,
		StopTimeout:    defaultStopTimeout,
		RateLimit:      defaultRateLimit,
		RateWindow:     defaultRateWindow,
		DockerBin:      defaultDockerBin,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		applyFile(&cfg, path)
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envTickInterval); v != "" {
		cfg.TickInterval = parseDuration(v, cfg.TickInterval)
	}
	if v := os.Getenv(envStaleThreshold); v != "" {
		cfg.StaleThreshold = parseDuration(v, cfg.StaleThreshold)
	}
	if v := os.Getenv(envStopTimeout); v != "" {
		cfg.StopTimeout = parseDuration(v, cfg.StopTimeout)
	}
	if v := os.Getenv(envRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit = n // zero or negative disables rate limiting
		}
	}
	if v := os.Getenv(envRateWindow); v != "" {
		cfg.RateWindow = parseDuration(v, cfg.RateWindow)
	}
	if v := os.Getenv(envDockerBin); v != "" {
		cfg.DockerBin = v
	}

	return cfg
}

// applyFile overlays values from a YAML config file onto cfg. A missing or
// malformed file is ignored entirely.
func applyFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.TickInterval != "" {
		cfg.TickInterval = parseDuration(fc.TickInterval, cfg.TickInterval)
	}
	if fc.StaleThreshold != "" {
		cfg.StaleThreshold = parseDuration(fc.StaleThreshold, cfg.StaleThreshold)
	}
	if fc.StopTimeout != "" {
		cfg.StopTimeout = parseDuration(fc.StopTimeout, cfg.StopTimeout)
	}
	if fc.RateLimit != nil {
		cfg.RateLimit = *fc.RateLimit
	}
	if fc.RateWindow != "" {
		cfg.RateWindow = parseDuration(fc.RateWindow, cfg.RateWindow)
	}
	if fc.DockerBin != "" {
		cfg.DockerBin = fc.DockerBin
	}
}

// parseDuration parses a Go duration string, falling back to def when the
// value is malformed or non-positive.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// String renders the config for startup logging.
func (c Config) String() string {
	return fmt.Sprintf("listen=%s db=%s tick=%s stale=%s rate=%d/%s",
		c.ListenAddr, c.DBPath, c.TickInterval, c.StaleThreshold, c.RateLimit, c.RateWindow)
}
