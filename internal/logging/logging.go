// Package logging builds the zap logger shared by the CLI and the MCP server.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "ctxpack"

// New returns a logger writing to stderr. Debug mode uses the development
// console encoder at debug level; otherwise JSON at warn level so command
// output on stdout stays clean.
func New(debug bool, version string) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.Sampling = nil
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	cfg.InitialFields = map[string]interface{}{
		"appName":    appName,
		"appVersion": version,
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), err
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
