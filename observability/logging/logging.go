package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below slog.LevelDebug for the most verbose node output.
const LevelTrace = slog.Level(-8)

type options struct {
	output io.Writer
	level  slog.Leveler
}

// Option customises the handler built by New and Setup.
type Option func(*options)

// WithOutput directs log lines to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithLevel sets the minimum level emitted.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		if level != nil {
			o.level = level
		}
	}
}

// NewRotatingFile returns a size-rotated log file writer. Callers own the
// writer and should Close it during teardown.
func NewRotatingFile(path string, maxSizeMB, maxBackups int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}
}

// New builds a structured JSON logger. All log lines include the service name
// and environment when provided.
func New(service, env string, opts ...Option) *slog.Logger {
	logger, _ := build(service, env, opts...)
	return logger
}

// Setup configures the standard library logger to emit structured JSON and
// returns the underlying slog.Logger, which also becomes the slog default.
func Setup(service, env string, opts ...Option) *slog.Logger {
	base, handler := build(service, env, opts...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func build(service, env string, opts ...Option) (*slog.Logger, slog.Handler) {
	o := options{output: os.Stderr, level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}
	var handler slog.Handler = slog.NewJSONHandler(o.output, &slog.HandlerOptions{
		AddSource: false,
		Level:     o.level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				return slog.String("severity", levelName(attr.Value))
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	handler = handler.WithAttrs(attrs)
	return slog.New(handler), handler
}

func levelName(v slog.Value) string {
	if level, ok := v.Any().(slog.Level); ok && level <= LevelTrace {
		return "TRACE"
	}
	return strings.ToUpper(v.String())
}
