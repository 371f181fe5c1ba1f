// Package logger provides the structured logger shared by every service.
// It wraps logrus so callers can use WithError/WithFields chains and the
// printf-style helpers interchangeably.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, encoding and destination of log output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from configuration. Unknown levels fall back to info,
// unknown formats to text, and an unusable file output to stdout.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	base.SetOutput(openOutput(cfg))
	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with the component name.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Level: "info", Format: "text"}).Component(component)
}

// NewDiscard returns a logger that drops everything. Useful in tests.
func NewDiscard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// Component returns a child logger tagged with the given component name.
func (l *Logger) Component(name string) *Logger {
	if name == "" {
		return l
	}
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

// With returns a child logger carrying the given fields on every line.
func (l *Logger) With(fields logrus.Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "ledger"
		}
		name := prefix + "-" + time.Now().UTC().Format("20060102") + ".log"
		if dir := filepath.Dir(name); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return os.Stdout
			}
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}
