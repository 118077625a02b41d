package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/qr-ticket-service/internal/config"
)

// NewLogger builds the process logger. LOG_FORMAT=console switches to the
// human-readable encoder for local runs; anything else is JSON.
func NewLogger(cfg config.LoggerConfig, app config.AppConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      app.Env == "development",
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]interface{}{
			"service": app.Name,
			"version": app.Version,
			"env":     app.Env,
		},
	}
	return zapCfg.Build()
}

// LoggerFactory hands out one named child logger per component, so log
// lines read "worker", "issuance", "http" and so on.
type LoggerFactory struct {
	base *zap.Logger
}

// NewLoggerFactory wraps base. A nil base yields no-op loggers.
func NewLoggerFactory(base *zap.Logger) *LoggerFactory {
	if base == nil {
		base = zap.NewNop()
	}
	return &LoggerFactory{base: base}
}

// Create returns the logger for a component.
func (f *LoggerFactory) Create(component string) *zap.Logger {
	if f == nil {
		return zap.NewNop()
	}
	return f.base.Named(component)
}
