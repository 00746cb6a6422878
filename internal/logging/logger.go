package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logr's V().
const (
	DEFAULT = 0
	DEBUG   = 1
	TRACE   = 2
)

// atomicLevel lets the level be raised after the logger has been handed out.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// New builds the process logger. Output goes to stderr so stdout stays free
// for command results.
func New(verbosity int, development bool) logr.Logger {
	SetVerbosity(verbosity)

	var cfg uberzap.Config
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		// Only reachable with a broken encoder config.
		zl = uberzap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(uberzap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			atomicLevel,
		))
	}
	return zapr.NewLogger(zl)
}

// SetVerbosity maps a logr verbosity onto the shared zap level. zapr logs
// V(n) at zap level -n.
func SetVerbosity(verbosity int) {
	if verbosity < 0 {
		verbosity = 0
	}
	atomicLevel.SetLevel(zapcore.Level(-verbosity))
}

// IntoContext stores logger in ctx.
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// NewTestLogger creates a development logger that shows every level.
func NewTestLogger() logr.Logger {
	cfg := uberzap.NewDevelopmentConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLoggerIntoContext creates a development logger and inserts it into
// the given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return logr.NewContext(ctx, NewTestLogger())
}
