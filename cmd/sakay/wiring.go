package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"sakay-eta/internal/config"
	"sakay-eta/internal/db"
	"sakay-eta/internal/eta"
	"sakay-eta/internal/feed"
	"sakay-eta/internal/location"
	"sakay-eta/internal/metrics"
	"sakay-eta/internal/network"
	"sakay-eta/internal/notify"
	"sakay-eta/internal/poller"
	"sakay-eta/internal/publisher"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/sim"
	"sakay-eta/internal/transit"
)

// retry runs op with exponential backoff until it succeeds, ctx ends or
// maxElapsed passes.
func retry(ctx context.Context, what string, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	onErr := func(err error, next time.Duration) {
		log.Warn().Err(err).Str("target", what).Dur("retry_in", next).Msg("connection failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), onErr); err != nil {
		return fmt.Errorf("connect %s: %w", what, err)
	}
	return nil
}

func loadNetwork(ctx context.Context, cfg *config.Config, initSchema bool) (*network.Network, error) {
	var (
		n   *network.Network
		err error
	)
	switch cfg.NetworkSource {
	case config.NetworkFile:
		n, err = network.LoadFile(cfg.NetworkFile)
	case config.NetworkGTFS:
		n, err = network.LoadGTFSFile(cfg.GTFSPath)
	case config.NetworkPostgres:
		n, err = loadPostgresNetwork(ctx, cfg.DatabaseURL, initSchema)
	default:
		n = network.Default()
	}
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("source", cfg.NetworkSource).
		Int("routes", len(n.Routes)).
		Int("segments", len(n.Segments)).
		Int("vehicles", len(n.Vehicles)).
		Msg("network loaded")
	return n, nil
}

func loadPostgresNetwork(ctx context.Context, dsn string, initSchema bool) (*network.Network, error) {
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	defer sqlDB.Close()
	if err := retry(ctx, "postgres", time.Minute, func() error { return db.Ping(ctx, sqlDB) }); err != nil {
		return nil, err
	}
	if initSchema {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			return nil, err
		}
	}
	return db.LoadNetwork(ctx, sqlDB)
}

func connectNATS(ctx context.Context, cfg *config.Config, name string, mcol *metrics.Collector) (*nats.Conn, error) {
	var nc *nats.Conn
	err := retry(ctx, "nats", time.Minute, func() error {
		var err error
		nc, err = publisher.Connect(cfg.NATSURL, name, wrapPublisherMetrics(mcol))
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", cfg.NATSURL).Msg("connected to nats")
	return nc, nil
}

// wrapPublisherMetrics returns a nil interface, not a typed nil, when
// metrics are disabled.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c.PublisherMetrics()
}

func startMetrics(ctx context.Context, cfg *config.Config) *metrics.Collector {
	if cfg.MetricsAddr == "" {
		return nil
	}
	mcol := metrics.NewCollector(cfg.ETAInterval, cfg.ProximityInterval)
	srv := mcol.Serve(cfg.MetricsAddr)
	go func() {
		<-ctx.Done()
		// Shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return mcol
}

// engine is everything the polling loop needs, plus what must be closed.
type engine struct {
	net    *network.Network
	poller *poller.Poller
	watch  *location.Watch
	closer []func()
}

func (e *engine) Close() {
	for i := len(e.closer) - 1; i >= 0; i-- {
		e.closer[i]()
	}
}

func buildEngine(ctx context.Context, cfg *config.Config, mcol *metrics.Collector, initSchema bool) (*engine, error) {
	net, err := loadNetwork(ctx, cfg, initSchema)
	if err != nil {
		return nil, err
	}
	table, err := net.Table()
	if err != nil {
		return nil, err
	}
	e := &engine{net: net, watch: location.NewWatch()}
	if cfg.User != nil {
		if err := e.watch.Set(*cfg.User); err != nil {
			return nil, err
		}
	}

	feedback := notify.MultiFeedback{notify.LogFeedback{}}
	var source transit.VehicleSource
	switch cfg.VehicleSource {
	case config.VehiclesNATS:
		nc, err := connectNATS(ctx, cfg, "sakay-eta", mcol)
		if err != nil {
			return nil, err
		}
		pub := publisher.NewNATSPublisher(nc, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		e.closer = append(e.closer, pub.Close)
		src, err := feed.Subscribe(nc, cfg.NATSSubjectPrefix, feed.DefaultMaxAge)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("subscribe positions: %w", err)
		}
		e.closer = append(e.closer, func() { _ = src.Close() })
		source = src
		feedback = append(feedback, pub)
	default:
		s, err := sim.New(net.Routes, net.Vehicles, sim.WithLocation(cfg.Location))
		if err != nil {
			return nil, err
		}
		source = s
	}

	n, err := notify.New(cfg.Destination, notify.WithFeedback(feedback))
	if err != nil {
		e.Close()
		return nil, err
	}
	est := eta.NewEstimator(table, cfg.Window, segments.NewRand(cfg.Seed), cfg.Location)
	e.poller = poller.New(net.Routes, est, n, source, e.watch,
		poller.WithIntervals(cfg.ETAInterval, cfg.ProximityInterval),
		poller.WithMetrics(mcol),
	)
	return e, nil
}
