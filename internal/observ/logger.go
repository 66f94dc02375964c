package observ

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger.
//
// env "production" gets zap's production config: JSON lines, sampling, and
// stack traces from error level up. Any other env gets the development
// config with the console encoder and colored levels, which reads better in
// a terminal. level is any zapcore level name ("debug", "info", "warn",
// "error"); an unknown name falls back to info rather than failing startup.
//
// Every entry carries service and env fields so logs from several
// deployments can share one sink.
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// An AtomicLevel can be changed at runtime without rebuilding the logger.
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "strangersmeet"), zap.String("env", env)), nil
}
