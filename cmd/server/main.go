// Package main is the entry point for the portfolio alert engine.
// It evaluates alert rules on a cron schedule and exposes one-off commands
// for running a pass, managing rules and reading tax-lot reports.
package main

import (
	"fmt"
	"os"

	"github.com/aristath/sentinel-alerts/internal/config"
	"github.com/aristath/sentinel-alerts/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
		FilePath: cfg.LogFile,
	})

	if err := newRootCmd(cfg, log).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
