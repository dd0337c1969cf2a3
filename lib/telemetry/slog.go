package telemetry

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Json switches the handler from text to JSON lines.
	Json bool `json:"json"`
	// File, when set, additionally writes logs to a rotated file.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) slog.Level {
	var out slog.Level
	if err := out.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return out
}

// NewLogger builds a logger writing to w and, if configured, the rotated log file.
// The returned closer releases the log file.
func NewLogger(w io.Writer, config LogConfig) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if config.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotated)
		closer = rotated
	}

	level := parseLevel(config.Level)
	if config.Json {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closer
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		// color escapes have no place in a rotated log file
		NoColor: config.File != "",
	})), closer
}

// InitSlog installs the logger as the slog default, writing to stderr.
func InitSlog(config LogConfig) io.Closer {
	logger, closer := NewLogger(os.Stderr, config)
	slog.SetDefault(logger)
	return closer
}
