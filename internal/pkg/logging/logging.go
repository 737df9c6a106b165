package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger settings.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// File enables rotation into the given path; stdout is used when empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ConfigFromViper reads the log.* keys.
func ConfigFromViper(v *viper.Viper) Config {
	return Config{
		Level:      v.GetString("log.level"),
		Format:     v.GetString("log.format"),
		File:       v.GetString("log.file"),
		MaxSizeMB:  v.GetInt("log.max_size_mb"),
		MaxBackups: v.GetInt("log.max_backups"),
		MaxAgeDays: v.GetInt("log.max_age_days"),
	}
}

// New builds a slog logger from cfg.
func New(cfg Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = rotatingWriter(cfg)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// Setup builds a logger and installs it as the slog default.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

func rotatingWriter(cfg Config) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	if cfg.MaxSizeMB > 0 {
		l.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		l.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		l.MaxAge = cfg.MaxAgeDays
	}
	return l
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
