// Package logger provides opinionated logging capabilities for the branches system
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to stdout.
func NewLogger(debug bool) *zap.Logger {
	return newLogger(zapcore.AddSync(os.Stdout), debug, true)
}

// NewFileLogger returns a logger appending to the file at path.
// The terminal UI owns stdout, so it logs through this instead.
func NewFileLogger(path string, debug bool) (*zap.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open log file %s: %w", path, err)
	}

	return newLogger(zapcore.AddSync(f), debug, false), f.Close, nil
}

// NewWriterLogger returns a logger writing uncolored console lines to w.
func NewWriterLogger(w io.Writer, debug bool) *zap.Logger {
	return newLogger(zapcore.AddSync(w), debug, false)
}

func newLogger(sink zapcore.WriteSyncer, debug bool, color bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		sink,
		level,
	)

	return zap.New(core, zap.AddCaller())
}
