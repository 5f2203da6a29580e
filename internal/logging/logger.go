// =============================================================================
// Insurance Report ETL - Logging
// =============================================================================
//
// Every component receives a Logger instead of printing directly. The
// interface is printf-style so call sites read like the messages they emit:
//
//   logger.Info("Processing file: %s", path)
//
// The production implementation writes leveled console output through
// zerolog. Tests use Nop.
//
// =============================================================================

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging contract used across the pipeline.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// =============================================================================
// ZEROLOG IMPLEMENTATION
// =============================================================================

type zeroLogger struct {
	log zerolog.Logger
}

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). Unknown levels mean "info".
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true}
	return &zeroLogger{
		log: zerolog.New(console).Level(ParseLevel(level)).With().Timestamp().Logger(),
	}
}

// With returns a logger that adds key=value to every message.
func With(l Logger, key, value string) Logger {
	zl, ok := l.(*zeroLogger)
	if !ok {
		return l
	}
	return &zeroLogger{log: zl.log.With().Str(key, value).Logger()}
}

// ParseLevel maps a config level name onto a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Debug(msg string, args ...interface{}) { l.log.Debug().Msgf(msg, args...) }
func (l *zeroLogger) Info(msg string, args ...interface{})  { l.log.Info().Msgf(msg, args...) }
func (l *zeroLogger) Warn(msg string, args ...interface{})  { l.log.Warn().Msgf(msg, args...) }
func (l *zeroLogger) Error(msg string, args ...interface{}) { l.log.Error().Msgf(msg, args...) }

// =============================================================================
// NOP LOGGER
// =============================================================================

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Warn(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}
