package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"sakay-eta/internal/config"

	_ "time/tzdata"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	setupLogging(cfg)

	app := &cli.App{
		Name:        "sakay",
		Usage:       "bus ETA board and rider proximity notifications",
		Description: "Estimates arrivals along fixed routes, tracks buses and notifies a rider when one is close.",

		Commands: []*cli.Command{
			serveCommand(cfg),
			simulateCommand(cfg),
			boardCommand(cfg),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.Logger.Level(cfg.LogLevel)
}
