package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the ports.Logger interface on top of zap. The chart
// binary uses it so structured logs can be routed to a file while the
// terminal is occupied by the chart itself.
type ZapLogger struct {
	raw   *zap.Logger
	sugar *zap.SugaredLogger
}

// ZapConfig holds the knobs for building a ZapLogger.
type ZapConfig struct {
	// Level is a zap level string: debug, info, warn, error.
	Level string
	// DevMode switches to the human-readable console encoder.
	DevMode bool
	// OutputPath, when set, redirects all output to the given file.
	// Leave empty to log to stderr.
	OutputPath string
}

// NewZapLogger builds a ZapLogger. Call Sync before exiting to flush
// buffered entries.
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	var zcfg zap.Config
	if cfg.DevMode {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.CallerKey = "caller"

	if cfg.OutputPath != "" {
		zcfg.OutputPaths = []string{cfg.OutputPath}
		zcfg.ErrorOutputPaths = []string{cfg.OutputPath}
	}

	raw, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &ZapLogger{raw: raw, sugar: raw.Sugar()}, nil
}

// Sync flushes buffered entries. Call before exit.
func (l *ZapLogger) Sync() error {
	return l.raw.Sync()
}

// flatten converts the variadic field maps into zap's alternating
// key/value form.
func flatten(fields []map[string]interface{}) []interface{} {
	kvs := make([]interface{}, 0, 8)
	for _, m := range fields {
		for k, v := range m {
			kvs = append(kvs, k, v)
		}
	}
	return kvs
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Debugw(msg, flatten(fields)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Infow(msg, flatten(fields)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Warnw(msg, flatten(fields)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	kvs := flatten(fields)
	if err != nil {
		kvs = append(kvs, "error", err)
	}
	l.sugar.Errorw(msg, kvs...)
}
