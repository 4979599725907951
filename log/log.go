// Package log wraps go.uber.org/zap into the structured, leveled logger
// used by every stage of the order-match pipeline. It mirrors the teacher's
// call-site convention of package-level Infow/Warnw/Errorw/Debugw rather
// than plumbing a logger instance through every function signature.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

func init() {
	// Usable before Init is called (e.g. in tests), matching the
	// teacher's fallback-to-development-logger convention.
	base, err := zap.NewDevelopment()
	if err != nil {
		panic(fmt.Sprintf("log: failed to build fallback logger: %v", err))
	}
	logger = base.Sugar()
}

// Init rebuilds the package logger with the given level ("debug", "info",
// "warn", "error") and output paths (e.g. "stdout", or a file path).
// outputPaths defaults to ["stdout"] when empty.
func Init(level string, outputPaths []string) error {
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.OutputPaths = outputPaths
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = built.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return logger.Sync()
}

func Debugw(msg string, keysAndValues ...interface{}) { logger.Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...interface{})  { logger.Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { logger.Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { logger.Errorw(msg, keysAndValues...) }
