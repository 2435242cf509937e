package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format selects the line encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds the logger configuration.
type Config struct {
	Level        Level
	Format       Format
	EnableColors bool
	TimeFormat   string
	Output       io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatConsole,
		EnableColors: true,
		TimeFormat:   time.RFC3339,
		Output:       os.Stdout,
	}
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR and LOG_TIME_FORMAT.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = ParseLevel(level)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		cfg.Format = FormatJSON
	}
	if color := os.Getenv("LOG_COLOR"); color != "" {
		cfg.EnableColors = color == "1" || strings.EqualFold(color, "true")
	}
	switch tf := os.Getenv("LOG_TIME_FORMAT"); strings.ToUpper(tf) {
	case "":
	case "RFC3339NANO":
		cfg.TimeFormat = time.RFC3339Nano
	case "KITCHEN":
		cfg.TimeFormat = time.Kitchen
	default:
		cfg.TimeFormat = tf
	}

	return cfg
}
