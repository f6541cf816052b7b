package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	reg *prometheus.Registry

	ETARefreshes   prometheus.Counter
	ProximityTicks prometheus.Counter
	Notifications  *prometheus.CounterVec // kind label: near|on_way|dest|traffic
	FeedErrors     prometheus.Counter
	LocationSkips  prometheus.Counter

	ServiceOpen     prometheus.Gauge
	TrafficTier     prometheus.Gauge // 1 light, 2 moderate, 3 heavy
	TrackedVehicles prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	ETAInterval       prometheus.Gauge // seconds
	ProximityInterval prometheus.Gauge // seconds
}

func NewCollector(etaInterval, proximityInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ETARefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_eta_refreshes_total",
			Help: "Total ETA board refresh cycles.",
		}),
		ProximityTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_proximity_ticks_total",
			Help: "Total proximity evaluation ticks.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sakay_notifications_total",
			Help: "Notifications fired by kind.",
		}, []string{"kind"}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_feed_errors_total",
			Help: "Vehicle feed fetch failures.",
		}),
		LocationSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_location_unavailable_ticks_total",
			Help: "Ticks that skipped proximity checks for lack of a rider location.",
		}),
		ServiceOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_service_open",
			Help: "1 while inside the daily service window, 0 otherwise.",
		}),
		TrafficTier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_traffic_tier",
			Help: "Current traffic tier (1 light, 2 moderate, 3 heavy).",
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_tracked_vehicles",
			Help: "Vehicles in the last position snapshot.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sakay_tick_duration_seconds",
			Help:    "Duration of proximity tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sakay_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakay_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		ETAInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_eta_refresh_interval_seconds",
			Help: "ETA refresh interval in seconds.",
		}),
		ProximityInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sakay_proximity_interval_seconds",
			Help: "Proximity tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ETARefreshes, c.ProximityTicks, c.Notifications, c.FeedErrors, c.LocationSkips,
		c.ServiceOpen, c.TrafficTier, c.TrackedVehicles,
		c.TickDuration, c.PublishDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.ETAInterval, c.ProximityInterval,
	)

	c.ETAInterval.Set(etaInterval.Seconds())
	c.ProximityInterval.Set(proximityInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// PublisherMetrics adapts the collector to the publisher's metrics hooks.
func (c *Collector) PublisherMetrics() *PublisherHooks {
	if c == nil {
		return nil
	}
	return &PublisherHooks{c: c}
}

type PublisherHooks struct{ c *Collector }

func (p *PublisherHooks) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *PublisherHooks) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *PublisherHooks) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *PublisherHooks) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
