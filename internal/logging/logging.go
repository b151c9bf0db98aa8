package logging

import (
	"go.uber.org/zap"
)

// New returns a human-readable logger in development and a JSON logger
// everywhere else.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must is New for process entry points.
func Must(env string) *zap.Logger {
	log, err := New(env)
	if err != nil {
		panic(err)
	}
	return log
}
