package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"sakay-eta/internal/config"
	"sakay-eta/internal/publisher"
	"sakay-eta/internal/sim"
)

func simulateCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "publish simulated bus positions to NATS",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: cfg.SimInterval,
				Usage: "time between position publishes",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			mcol := startMetrics(ctx, cfg)
			net, err := loadNetwork(ctx, cfg, false)
			if err != nil {
				return err
			}
			s, err := sim.New(net.Routes, net.Vehicles, sim.WithLocation(cfg.Location), sim.WithMetrics(mcol))
			if err != nil {
				return err
			}

			nc, err := connectNATS(ctx, cfg, "sakay-simulator", mcol)
			if err != nil {
				return err
			}
			pub := publisher.NewNATSPublisher(nc, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
			defer pub.Close()

			if err := s.Run(ctx, pub, c.Duration("interval")); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
