package core

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var (
	baseMu     sync.RWMutex
	baseLogger = newBaseLogger("info")
)

func newBaseLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLogLevel rebuilds the process logger with the given level.
func SetLogLevel(level string) {
	baseMu.Lock()
	defer baseMu.Unlock()
	baseLogger = newBaseLogger(level)
}

// SetLogger replaces the process logger. Tests use it to install zaptest/observer loggers.
func SetLogger(l *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	baseLogger = l
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger
}

// WithDefaultLogger attaches a request scoped logger to the context
func WithDefaultLogger(parent context.Context, reqId string) context.Context {
	return WithLogger(parent, Logger().Sugar().With("req_id", reqId))
}

// WithLogger attaches the given logger to the context
func WithLogger(parent context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(parent, loggerKey{}, l)
}

// WithFields returns a context whose logger carries the extra key/value pairs
func WithFields(ctx context.Context, kv ...any) context.Context {
	return WithLogger(ctx, GetLogger(ctx).With(kv...))
}

// GetLogger returns the logger stored in ctx or the process logger
func GetLogger(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return Logger().Sugar()
}

func Infof(ctx context.Context, tpl string, args ...any) {
	GetLogger(ctx).Infof(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	GetLogger(ctx).Errorf(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	GetLogger(ctx).Warnf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	GetLogger(ctx).Debugf(tpl, args...)
}
