package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string     `mapstructure:"level"`
	Format      string     `mapstructure:"format"`
	TimeFormat  string     `mapstructure:"time_format"`
	Caller      bool       `mapstructure:"caller"`
	PrettyPrint bool       `mapstructure:"pretty"`
	File        FileConfig `mapstructure:"file"`
}

// FileConfig enables an additional rotating log file.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// NewLogger constructs a zerolog logger from config.
func NewLogger(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && cfg.Level != "" {
		level = parsed
	}

	writer := logWriter(cfg)
	logger := zerolog.New(writer).Level(level)
	builder := logger.With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}

	return builder.Logger()
}

func logWriter(cfg Config) io.Writer {
	var out io.Writer = os.Stdout
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	if cfg.File.Path == "" {
		return out
	}
	// 文件始终写 JSON，便于采集
	return zerolog.MultiLevelWriter(out, fileWriter(cfg.File))
}

func fileWriter(cfg FileConfig) io.Writer {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
