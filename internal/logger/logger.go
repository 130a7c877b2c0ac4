// Package logger provides a small, centralized logging facility
// with configurable verbosity levels, backed by zap.
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Example usage:
//
//	logger.SetVerbosity(2) // Debug
//	logger.Infof("fetching %s chain", symbol)
//	logger.With(zap.String("source", "deribit")).Debugf("tickers=%d", n)
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	mu      sync.RWMutex
	current = Info
	format  = FormatConsole
	out     = zapcore.Lock(os.Stderr)
	base    = build(current, format)
)

// Logger is a field-scoped view of the package logger. It follows later SetVerbosity and
// SetFormat calls.
type Logger struct {
	fields []zap.Field

	mu   sync.Mutex
	base *zap.Logger
	z    *zap.SugaredLogger
}

func build(l Level, f Format) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if f == FormatJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, out, zapLevel(l))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

func zapLevel(l Level) zapcore.Level {
	switch {
	case l <= Error:
		return zapcore.ErrorLevel
	case l == Info:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// SetVerbosity sets the global logging verbosity.
// Typically called once during application startup
// (e.g. after parsing CLI flags).
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	current = Level(v)
	base = build(current, format)
}

// SetFormat switches between console and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f != FormatJSON {
		f = FormatConsole
	}
	format = f
	base = build(current, format)
}

// Verbosity reports the active level.
func Verbosity() Level {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Zap exposes the underlying zap logger for libraries that want one.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered log entries.
func Sync() error {
	return Zap().Sync()
}

// With returns a Logger that attaches fields to every entry.
func With(fields ...zap.Field) *Logger {
	return &Logger{fields: fields}
}

// sugar returns the scoped logger, rebuilt when the package logger has been replaced.
func (l *Logger) sugar() *zap.SugaredLogger {
	b := Zap()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.base != b {
		l.base = b
		l.z = b.With(l.fields...).Sugar()
	}
	return l.z
}

func logf(z *zap.SugaredLogger, l Level, format string, args ...any) {
	if Verbosity() < l {
		return
	}
	switch l {
	case Error:
		z.Errorf(format, args...)
	case Info:
		z.Infof(format, args...)
	case Debug:
		z.Debugf(format, args...)
	default:
		z.With("trace", true).Debugf(format, args...)
	}
}

func warnf(z *zap.SugaredLogger, format string, args ...any) {
	if Verbosity() >= Info {
		z.Warnf(format, args...)
	}
}

func sugar() *zap.SugaredLogger { return Zap().Sugar() }

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) { logf(sugar(), Error, format, args...) }

// Warnf logs a recoverable problem at info verbosity.
func Warnf(format string, args ...any) { warnf(sugar(), format, args...) }

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) { logf(sugar(), Info, format, args...) }

// Debugf logs debugging information.
func Debugf(format string, args ...any) { logf(sugar(), Debug, format, args...) }

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) { logf(sugar(), Trace, format, args...) }

func (l *Logger) Errorf(format string, args ...any) { logf(l.sugar(), Error, format, args...) }

func (l *Logger) Warnf(format string, args ...any) { warnf(l.sugar(), format, args...) }

func (l *Logger) Infof(format string, args ...any)  { logf(l.sugar(), Info, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { logf(l.sugar(), Debug, format, args...) }
func (l *Logger) Tracef(format string, args ...any) { logf(l.sugar(), Trace, format, args...) }
