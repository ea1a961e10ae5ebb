package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with component and field helpers
type Logger struct {
	logger zerolog.Logger
}

// Config represents logger configuration
type Config struct {
	Level   string `yaml:"level" mapstructure:"level"`       // trace, debug, info, warn, error
	Format  string `yaml:"format" mapstructure:"format"`     // console, json
	Output  string `yaml:"output" mapstructure:"output"`     // stdout, stderr, file path
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"` // plain console output
	Caller  bool   `yaml:"caller" mapstructure:"caller"`     // include caller info
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Initialize sets up the global logger with the provided configuration
func Initialize(config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	output, err := openOutput(config.Output)
	if err != nil {
		return err
	}

	l := New(output, config)

	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()

	log.Logger = l.logger
	return nil
}

// New builds a logger writing to w. The global level is left untouched.
func New(w io.Writer, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if strings.EqualFold(config.Format, "json") {
		zl = zerolog.New(w)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    config.NoColor,
		})
	}

	ctx := zl.Level(level).With().Timestamp()
	if config.Caller {
		ctx = ctx.Caller()
	}
	return &Logger{logger: ctx.Logger()}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Get returns the global logger, initializing it with defaults on first use
func Get() *Logger {
	globalMu.Lock()
	l := globalLogger
	globalMu.Unlock()
	if l != nil {
		return l
	}

	_ = Initialize(nil)

	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}

// Zerolog exposes the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.logger
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{logger: l.logger.With().Fields(fields).Logger()}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// WithContext attaches ctx to emitted events
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{logger: l.logger.With().Ctx(ctx).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// GetLevel returns the logger's minimum level
func (l *Logger) GetLevel() zerolog.Level {
	return l.logger.GetLevel()
}

// Global convenience wrappers

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }

// WithComponent returns a component logger derived from the global logger
func WithComponent(component string) *Logger {
	return Get().WithComponent(component)
}

// WithField returns a logger with a field derived from the global logger
func WithField(key string, value interface{}) *Logger {
	return Get().WithField(key, value)
}
