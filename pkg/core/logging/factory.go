package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultMu     sync.RWMutex
	defaultLevel  = LevelInfo
	defaultFormat = "json"
	defaultOutput io.Writer
)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service name, emitted as the logger name
	ServiceName string

	// Log level (debug, info, warn, error)
	Level string

	// Output format: "json" or "text"
	Format string

	// Output defaults to stderr so that command output on stdout stays parseable
	Output io.Writer
}

// DefaultLoggerConfig returns the configuration used by New
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       defaultLevel.String(),
		Format:      defaultFormat,
		Output:      defaultOutput,
	}
}

// Configure sets the process-wide defaults used by New
func Configure(level, format string, output io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = ParseLevel(level)
	if format != "" {
		defaultFormat = format
	}
	defaultOutput = output
}

// Logger wraps a zap sugared logger with key/value logging methods
type Logger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
	name  string
	cfg   LoggerConfig
}

// NewLogger creates a new logger from the given configuration
func NewLogger(cfg LoggerConfig) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), ParseLevel(cfg.Level).zapLevel())
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(cfg.ServiceName)

	return &Logger{
		sugar: base.Sugar(),
		base:  base,
		name:  cfg.ServiceName,
		cfg:   cfg,
	}
}

// New creates a logger with the process-wide defaults
func New(name string) *Logger {
	return NewLogger(DefaultLoggerConfig(name))
}

// WithLevel returns a new logger with the specified level
func (l *Logger) WithLevel(level Level) *Logger {
	cfg := l.cfg
	cfg.Level = level.String()
	return NewLogger(cfg)
}

// With returns a logger that adds the given key/value pairs to every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sugar: l.sugar.With(keysAndValues...),
		base:  l.base,
		name:  l.name,
		cfg:   l.cfg,
	}
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	base := zap.NewNop()
	return &Logger{sugar: base.Sugar(), base: base, name: "nop"}
}
