package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/sentinel/internal/app/runtime"
	"github.com/R3E-Network/sentinel/internal/config"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// commandContext lazily loads configuration and owns the handles a command
// opens so they are released after it returns.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggers []*logging.Logger
	app     *runtime.Application
	stop    context.CancelFunc
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

// logger builds a logger for the named process from LOG_* settings.
func (c *commandContext) logger(service string) (*logging.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.NewFromConfig(service, logging.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Dir:    cfg.Paths.LogDir,
	})
	if err != nil {
		log.WithError(err).Warn("log file unavailable; logging to stdout")
	}
	c.loggers = append(c.loggers, log)
	return log, nil
}

// application builds the runtime for service and waits for its backing
// stores to answer.
func (c *commandContext) application(ctx context.Context, service string) (*runtime.Application, *logging.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := c.logger(service)
	if err != nil {
		return nil, nil, err
	}
	application, err := runtime.NewApplication(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise %s: %w", service, err)
	}
	c.app = application
	if err := application.WaitReady(ctx); err != nil {
		return nil, nil, err
	}
	return application, log, nil
}

func (c *commandContext) close() {
	if c.app != nil {
		if err := c.app.Close(); err != nil && len(c.loggers) > 0 {
			c.loggers[0].WithError(err).Warn("close application")
		}
		c.app = nil
	}
	for _, l := range c.loggers {
		_ = l.Close()
	}
	c.loggers = nil
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}
