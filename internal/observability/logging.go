// Package observability provides the shared loggers for CLI and service output.
//
// CLILogger is the operator-facing logger: console encoding, message-first,
// structured fields appended. Service loggers use full structured encoding.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command output.
//
// It is initialized at package load with info level so commands and tests can
// log without explicit setup; InitCLILogger reconfigures it once the config
// has been loaded.
var CLILogger = newConsoleLogger(zapcore.InfoLevel)

// InitCLILogger reconfigures the CLI logger with the requested level.
// Unknown levels fall back to info.
func InitCLILogger(level string) {
	CLILogger = newConsoleLogger(parseLevel(level))
}

// NewServiceLogger returns a structured JSON logger for long-running
// processes (the ops gateway).
func NewServiceLogger(level string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		parseLevel(level),
	)
	return zap.New(core, zap.AddCaller())
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
