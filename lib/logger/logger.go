package logger

import (
	"go.uber.org/zap"
)

// New constructs a named sugared logger used across all services.
func New(name string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stdout"}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return l.Sugar().Named(name), nil
}
