// Package util provides shared helpers for logging, request pacing, and the
// ad account's calendar.
package util

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured zap logger at the specified level. Supported
// levels: "debug", "info", "warn", "error"; anything else falls back to
// "info". format "json" selects the production encoder, anything else the
// human-readable console encoder.
func NewLogger(level, format string) (*zap.SugaredLogger, error) {
	var zlevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zlevel = zap.DebugLevel
	case "warn":
		zlevel = zap.WarnLevel
	case "error":
		zlevel = zap.ErrorLevel
	default:
		zlevel = zap.InfoLevel
	}

	var cfg zap.Config
	if strings.ToLower(format) == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(zlevel)
	cfg.OutputPaths = []string{"stdout"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
