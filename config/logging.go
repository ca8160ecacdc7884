package config

import (
	"log/slog"
	"strings"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string    `env:"LOG_LEVEL"  envDefault:"info"`
	Format LogFormat `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize lower-cases the format and falls back to json for unknown values.
func (c *LogConfig) Sanitize() {
	c.Format = LogFormat(strings.ToLower(strings.TrimSpace(string(c.Format))))
	if c.Format != LogFormatText {
		c.Format = LogFormatJSON
	}
}

// SlogLevel parses Level ("debug", "info", "warn", "error", or offsets like "info+2").
// Unparseable values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}
