package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes JSON lines through zap. Alert/Critical/Emergency map to
// zap's error level with a "severity" field so they stay searchable.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

func NewZapLogger(level string) (*ZapLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *ZapLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.sugar.With("severity", "alert").Errorf(format, args...)
}

func (l *ZapLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *ZapLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.sugar.With("severity", "notice").Infof(format, args...)
}

func (l *ZapLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.sugar.With("severity", "critical").Errorf(format, args...)
}

func (l *ZapLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.sugar.With("severity", "emergency").Errorf(format, args...)
}
