package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a production-ready zap logger.
func New(env string) (*zap.Logger, error) {
	return config(env).Build()
}

// Must panics if the logger cannot be initialized. Useful in main().
func Must(env string) *zap.Logger {
	log, err := New(env)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return log
}

// NewWriter builds a logger whose entries go to ws instead of stderr. It is
// used for the application log that is written through the rotation engine,
// so the encoder never colours levels.
func NewWriter(env string, ws zapcore.WriteSyncer) *zap.Logger {
	cfg := config(env)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	if env == "production" {
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	}
	return zap.New(zapcore.NewCore(enc, ws, cfg.Level))
}

func config(env string) zap.Config {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}
