// Package logging provides a small wrapper around zap tailored to the
// access control service's per-component logging needs: every component
// (graph, buffer, handlers, supervisor, rpc) gets its own named logger,
// and log levels can be adjusted per-module at runtime without a restart.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with component/actor/action tagging.
type Logger struct {
	component string
	logger    *zap.Logger
	sugar     *zap.SugaredLogger
	level     zapcore.Level
	writer    io.Writer
}

const (
	fieldActor       = "actor"
	fieldAction      = "action"
	fieldComponent   = "component"
	fieldTenant      = "tenant"
	defaultActor     = "system"
	defaultActionTag = "unspecified"
)

func newLogger(component string) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	encoder := buildEncoder(cfg)
	reportCaller := os.Getenv("ACS_LOG_REPORT_CALLER") != ""

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if reportCaller {
		opts = append(opts, zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{
		component: component,
		logger:    zl,
		sugar:     zl.Sugar(),
		level:     zapcore.InfoLevel,
	}
}

func buildEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	switch os.Getenv("ACS_LOG_FORMATTER") {
	case "text":
		return zapcore.NewConsoleEncoder(cfg)
	default:
		return zapcore.NewJSONEncoder(cfg)
	}
}

// IsDebugEnabled reports whether debug-level (or more verbose) logging is active.
// Use this to guard expensive log-argument construction in hot paths such as
// the command buffer consumer loop or permission resolution.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// SetLevel changes the active logging level, rebuilding the underlying core.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level = level

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoder := buildEncoder(cfg)

	out := io.Writer(os.Stdout)
	if l.writer != nil {
		out = l.writer
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if os.Getenv("ACS_LOG_REPORT_CALLER") != "" {
		opts = append(opts, zap.AddCaller())
	}

	l.logger = zap.New(core, opts...)
	l.sugar = l.logger.Sugar()
}

// SetOutput redirects log output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.writer = w
	l.SetLevel(l.level)
}

func (l *Logger) with(actor, action string) *zap.SugaredLogger {
	return l.sugar.With(
		zap.String(fieldActor, actor),
		zap.String(fieldAction, action),
		zap.String(fieldComponent, l.component),
	)
}

// WithTenant returns a derived logger that tags every record with a tenant id.
func (l *Logger) WithTenant(tenantID string) *Logger {
	derived := *l
	derived.sugar = l.sugar.With(zap.String(fieldTenant, tenantID))
	return &derived
}

// Debug logs at debug level with an actor/action pair identifying the call site.
func (l *Logger) Debug(actor, action string, args ...interface{}) { l.with(actor, action).Debug(args...) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(actor, action, format string, args ...interface{}) {
	l.with(actor, action).Debugf(format, args...)
}

// Info logs at info level.
func (l *Logger) Info(actor, action string, args ...interface{}) { l.with(actor, action).Info(args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(actor, action, format string, args ...interface{}) {
	l.with(actor, action).Infof(format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(actor, action string, args ...interface{}) { l.with(actor, action).Warn(args...) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(actor, action, format string, args ...interface{}) {
	l.with(actor, action).Warnf(format, args...)
}

// Error logs at error level.
func (l *Logger) Error(actor, action string, args ...interface{}) {
	l.with(actor, action).Error(args...)
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(actor, action, format string, args ...interface{}) {
	l.with(actor, action).Errorf(format, args...)
}

// Fatal logs at fatal level and terminates the process.
func (l *Logger) Fatal(actor, action string, args ...interface{}) {
	l.with(actor, action).Fatal(args...)
}

// SysInfo logs at info level with default actor/action tags, for
// startup/shutdown messages that have no specific request context.
func (l *Logger) SysInfo(args ...interface{}) { l.Info(defaultActor, defaultActionTag, args...) }

// SysInfof logs a formatted message at info level with default tags.
func (l *Logger) SysInfof(format string, args ...interface{}) {
	l.Infof(defaultActor, defaultActionTag, format, args...)
}

// SysError logs at error level with default actor/action tags.
func (l *Logger) SysError(args ...interface{}) { l.Error(defaultActor, defaultActionTag, args...) }

// SysErrorf logs a formatted message at error level with default tags.
func (l *Logger) SysErrorf(format string, args ...interface{}) {
	l.Errorf(defaultActor, defaultActionTag, format, args...)
}

// SysWarnf logs a formatted message at warn level with default tags.
func (l *Logger) SysWarnf(format string, args ...interface{}) {
	l.Warnf(defaultActor, defaultActionTag, format, args...)
}
