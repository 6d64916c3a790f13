// Package logger owns the global CLI logger for matcli.
//
// Library code (the materialize client) never touches this package; it
// takes a *zap.SugaredLogger through its Config and defaults to a nop
// logger. This package only exists so the CLI commands share one logger
// configured from the -v flag count.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance for CLI commands
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether structured JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so commands that log before
	// Initialize() runs don't panic
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger for the given verbosity.
// jsonOutput selects machine-readable structured output.
func Initialize(verbosity int, jsonOutput bool) error {
	JSONOutput = jsonOutput

	level := VerbosityToLevel(verbosity)

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stderr"}
		zapLogger, err := config.Build()
		if err != nil {
			return err
		}
		Logger = zapLogger.Sugar()
		return nil
	}

	// Human-readable console output on stderr so command results on
	// stdout stay pipeable
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapLogger := zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		),
	)
	Logger = zapLogger.Sugar()
	return nil
}
