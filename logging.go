package instrumentz

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is reported in startup and shutdown diagnostics.
const Version = "0.1.0"

// LogConfig defines logger configuration.
type LogConfig struct {
	Level       string   `yaml:"level" envconfig:"LEVEL" default:"info"`
	Development bool     `yaml:"development" envconfig:"DEV" default:"false"`
	OutputPaths []string `yaml:"output_paths" envconfig:"OUTPUT" default:"stderr"`
}

// DefaultLogConfig returns the production logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		OutputPaths: []string{"stderr"},
	}
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, &ConfigError{Field: "log.level", Msg: err.Error()}
		}
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
	}

	return zapCfg.Build()
}

// newLoggerOrNop builds a logger and falls back to a no-op logger.
func newLoggerOrNop(cfg LogConfig) *zap.Logger {
	logger, err := NewLogger(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	return cfg
}
