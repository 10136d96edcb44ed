// Package logging provides the small leveled logger used across eventdeck,
// with adapters for zap (default) and logrus.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a minimal structured field map for log entries.
type Fields map[string]any

// Logger is a tiny leveled logger. A nil Logger is never passed around;
// use Nop when logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, Fields) {}
func (Nop) Info(string, Fields)  {}
func (Nop) Warn(string, Fields)  {}
func (Nop) Error(string, Fields) {}

// Zap adapts a *zap.Logger.
type Zap struct{ L *zap.Logger }

func (z Zap) Debug(msg string, f Fields) { z.L.Debug(msg, zapFields(f)...) }
func (z Zap) Info(msg string, f Fields)  { z.L.Info(msg, zapFields(f)...) }
func (z Zap) Warn(msg string, f Fields)  { z.L.Warn(msg, zapFields(f)...) }
func (z Zap) Error(msg string, f Fields) { z.L.Error(msg, zapFields(f)...) }

func zapFields(f Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Logrus adapts a *logrus.Entry.
type Logrus struct{ E *logrus.Entry }

func (l Logrus) Debug(msg string, f Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logrus) Info(msg string, f Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logrus) Warn(msg string, f Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logrus) Error(msg string, f Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

// Options selects and configures a logging backend.
type Options struct {
	Backend string    // "zap" (default) or "logrus"
	Level   string    // debug, info, warn, error
	File    string    // log file path; empty means Writer
	Writer  io.Writer // used when File is empty; nil disables logging
}

// New builds a Logger from opts. The returned close func flushes and
// releases the backend; it is never nil.
func New(opts Options) (Logger, func() error, error) {
	noop := func() error { return nil }
	if opts.File == "" && opts.Writer == nil {
		return Nop{}, noop, nil
	}

	switch strings.ToLower(opts.Backend) {
	case "", "zap":
		lvl, err := zapcore.ParseLevel(levelOrDefault(opts.Level))
		if err != nil {
			return nil, noop, fmt.Errorf("logging: %w", err)
		}
		var ws zapcore.WriteSyncer
		closeFn := noop
		if opts.File != "" {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, noop, fmt.Errorf("logging: opening %s: %w", opts.File, err)
			}
			ws = zapcore.AddSync(f)
			closeFn = f.Close
		} else {
			ws = zapcore.AddSync(opts.Writer)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, lvl)
		zl := zap.New(core)
		return Zap{L: zl}, func() error {
			_ = zl.Sync()
			return closeFn()
		}, nil

	case "logrus":
		lvl, err := logrus.ParseLevel(levelOrDefault(opts.Level))
		if err != nil {
			return nil, noop, fmt.Errorf("logging: %w", err)
		}
		l := logrus.New()
		l.SetLevel(lvl)
		closeFn := noop
		if opts.File != "" {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, noop, fmt.Errorf("logging: opening %s: %w", opts.File, err)
			}
			l.SetOutput(f)
			closeFn = f.Close
		} else {
			l.SetOutput(opts.Writer)
		}
		return Logrus{E: logrus.NewEntry(l)}, closeFn, nil

	default:
		return nil, noop, fmt.Errorf("logging: unknown backend %q", opts.Backend)
	}
}

func levelOrDefault(level string) string {
	if level == "" {
		return "warn"
	}
	return level
}
