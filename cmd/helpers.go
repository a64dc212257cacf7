package cmd

import (
	"fmt"

	"github.com/ziadkadry99/expertroute/internal/app"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/logger"
)

// loadConfig loads the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `expertroute init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// buildApp loads the config and wires the engine. The caller must call
// the returned cleanup.
func buildApp() (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, app.Options{Logger: log})
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Warn("closing resources", logger.Error(err))
		}
		log.Sync()
	}
	return a, cleanup, nil
}
