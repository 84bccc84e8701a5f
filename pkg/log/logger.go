package log

import (
	"context"
	"strings"

	"github.com/thep200/content-radar/cfg"
)

type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Alert(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
	Critical(ctx context.Context, format string, args ...interface{})
	Emergency(ctx context.Context, format string, args ...interface{})
}

func NewLogger(logger Logger) (Logger, error) {
	return logger, nil
}

// NewLoggerFromConfig picks the backend named by Log.Driver.
func NewLoggerFromConfig(config *cfg.Config) (Logger, error) {
	switch strings.ToLower(config.Log.Driver) {
	case "zap":
		return NewZapLogger(config.Log.Level)
	default:
		return NewCslLogger()
	}
}
