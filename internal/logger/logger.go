// Package logger provides structured logging for the application.
package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interface defines the logger interface used throughout the application.
type Interface interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Interface
	WithComponent(component string) Interface
	WithError(err error) Interface
}

// Config holds logger configuration.
type Config struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Encoding    string `mapstructure:"encoding"    yaml:"encoding"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Logger implements Interface on top of zap's sugared logger.
type Logger struct {
	zapLogger *zap.SugaredLogger
}

var logLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// New creates a new logger instance.
func New(cfg Config) (Interface, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
		}
		encoderConfig.ConsoleSeparator = " | "
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	zapCfg := zap.Config{
		Level:         zap.NewAtomicLevelAt(getLogLevel(cfg.Level)),
		Development:   cfg.Development,
		Encoding:      cfg.Encoding,
		EncoderConfig: encoderConfig,
		OutputPaths:   []string{"stdout"},
		ErrorOutputPaths: []string{
			"stderr",
		},
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &Logger{zapLogger: zl.Sugar()}, nil
}

func getLogLevel(level string) zapcore.Level {
	lvl, exists := logLevels[strings.ToLower(level)]
	if !exists {
		return zapcore.InfoLevel
	}
	return lvl
}

// Debug logs a debug message with key-value fields.
func (l *Logger) Debug(msg string, fields ...any) { l.zapLogger.Debugw(msg, fields...) }

// Info logs an info message with key-value fields.
func (l *Logger) Info(msg string, fields ...any) { l.zapLogger.Infow(msg, fields...) }

// Warn logs a warning message with key-value fields.
func (l *Logger) Warn(msg string, fields ...any) { l.zapLogger.Warnw(msg, fields...) }

// Error logs an error message with key-value fields.
func (l *Logger) Error(msg string, fields ...any) { l.zapLogger.Errorw(msg, fields...) }

// With returns a logger with the given fields attached to every message.
func (l *Logger) With(fields ...any) Interface {
	return &Logger{zapLogger: l.zapLogger.With(fields...)}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(component string) Interface {
	return l.With("component", component)
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) Interface {
	return l.With("error", err)
}
