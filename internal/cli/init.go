// Package cli provides common CLI initialization utilities shared by
// cmd/budget, cmd/budget-worker and cmd/adduser.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budget/internal/config"
	blog "budget/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Bootstrap loads .env and the configuration, validates it and installs the
// default logger for component.
func Bootstrap(component string) (*config.Config, *blog.Logger, error) {
	LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := blog.Setup(cfg.LogLevel, component)
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Fatal logs err through logger (or stderr when logging is not up yet) and
// exits with status 1.
func Fatal(logger *blog.Logger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, blog.FieldError, err)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	}
	os.Exit(1)
}
