package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"sakay-eta/internal/api"
	"sakay-eta/internal/config"
)

func serveCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the polling loop and the display API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Value: cfg.HTTPAddr,
				Usage: "listen target for the web server",
			},
			&cli.BoolFlag{
				Name:  "init-schema",
				Usage: "create the network tables before loading (postgres network source)",
			},
		},
		Action: func(c *cli.Context) error {
			// Root context with cancellation on SIGINT/SIGTERM
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			mcol := startMetrics(ctx, cfg)
			e, err := buildEngine(ctx, cfg, mcol, c.Bool("init-schema"))
			if err != nil {
				return err
			}
			defer e.Close()

			srv := api.New(e.poller, e.watch, cfg.Location)

			p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
			p.Go(func(ctx context.Context) error {
				return e.poller.Run(ctx)
			})
			p.Go(func(ctx context.Context) error {
				log.Info().Str("addr", c.String("listen")).Msg("http listening")
				return srv.Listen(c.String("listen"))
			})
			p.Go(func(ctx context.Context) error {
				<-ctx.Done()
				return srv.Shutdown()
			})

			err = p.Wait()
			log.Info().Msg("shutdown complete")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
