// Package logging builds the structured logger shared by all pipeline stages.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON zap logger writing to w (stderr when nil).
// verbose lowers the level from info to debug.
func New(w io.Writer, verbose bool) *zap.Logger {
	return build(w, verbose, zapcore.NewJSONEncoder)
}

// NewConsole returns a logger with zap's console encoder, for a terminal.
func NewConsole(w io.Writer, verbose bool) *zap.Logger {
	return build(w, verbose, zapcore.NewConsoleEncoder)
}

func build(w io.Writer, verbose bool, newEncoder func(zapcore.EncoderConfig) zapcore.Encoder) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	core := zapcore.NewCore(newEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Stage returns a child logger tagged with the pipeline stage name.
func Stage(l *zap.Logger, stage string) *zap.Logger {
	return OrNop(l).With(zap.String("stage", stage))
}
