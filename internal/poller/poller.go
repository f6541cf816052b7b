// Package poller runs the single loop that refreshes the ETA board and
// evaluates rider notifications.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sakay-eta/internal/eta"
	"sakay-eta/internal/geo"
	"sakay-eta/internal/location"
	mmetrics "sakay-eta/internal/metrics"
	"sakay-eta/internal/notify"
	"sakay-eta/internal/transit"
)

const (
	DefaultETAInterval       = 30 * time.Second
	DefaultProximityInterval = 10 * time.Second
	DefaultFetchTimeout      = 5 * time.Second
)

// Status summarises the loop state for display.
type Status struct {
	Closed            bool      `json:"closed"`
	Tier              string    `json:"tier"`
	LocationAvailable bool      `json:"locationAvailable"`
	LocationReason    string    `json:"locationReason,omitempty"`
	FeedError         string    `json:"feedError,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Snapshot is an immutable copy of the loop state; readers never see a board
// that is being rebuilt.
type Snapshot struct {
	Board         eta.Board
	Notifications []notify.Record
	Vehicles      []transit.Vehicle
	Status        Status
}

type Poller struct {
	routes    []transit.Route
	estimator *eta.Estimator
	notifier  *notify.Notifier
	source    transit.VehicleSource
	location  *location.Watch
	metrics   *mmetrics.Collector
	now       func() time.Time

	etaInterval       time.Duration
	proximityInterval time.Duration
	fetchTimeout      time.Duration

	// owned by the loop goroutine
	board          eta.Board
	vehicles       []transit.Vehicle
	feedErr        error
	locationWarned bool

	mu   sync.RWMutex
	snap Snapshot
}

type Option func(*Poller)

func WithClock(now func() time.Time) Option    { return func(p *Poller) { p.now = now } }
func WithMetrics(c *mmetrics.Collector) Option { return func(p *Poller) { p.metrics = c } }
func WithFetchTimeout(d time.Duration) Option  { return func(p *Poller) { p.fetchTimeout = d } }

func WithIntervals(etaEvery, proximityEvery time.Duration) Option {
	return func(p *Poller) {
		p.etaInterval = etaEvery
		p.proximityInterval = proximityEvery
	}
}

func New(routes []transit.Route, est *eta.Estimator, n *notify.Notifier, src transit.VehicleSource, loc *location.Watch, opts ...Option) *Poller {
	p := &Poller{
		routes:            routes,
		estimator:         est,
		notifier:          n,
		source:            src,
		location:          loc,
		now:               time.Now,
		etaInterval:       DefaultETAInterval,
		proximityInterval: DefaultProximityInterval,
		fetchTimeout:      DefaultFetchTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run refreshes and ticks once, then on each interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.RefreshETAs()
	p.Tick(ctx)

	etaTick := time.NewTicker(p.etaInterval)
	defer etaTick.Stop()
	proxTick := time.NewTicker(p.proximityInterval)
	defer proxTick.Stop()

	log.Info().Dur("eta_interval", p.etaInterval).Dur("proximity_interval", p.proximityInterval).Int("routes", len(p.routes)).Msg("poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poller stopped")
			return ctx.Err()
		case <-etaTick.C:
			p.RefreshETAs()
		case <-proxTick.C:
			p.Tick(ctx)
		}
	}
}

// RefreshETAs rebuilds the board for every route.
func (p *Poller) RefreshETAs() {
	now := p.now()
	p.board = p.estimator.EstimateAll(p.routes, now)
	if p.metrics != nil {
		p.metrics.ETARefreshes.Inc()
		if p.board.Closed {
			p.metrics.ServiceOpen.Set(0)
		} else {
			p.metrics.ServiceOpen.Set(1)
		}
		p.metrics.TrafficTier.Set(float64(p.board.Tier))
	}
	log.Debug().Bool("closed", p.board.Closed).Stringer("tier", p.board.Tier).Msg("eta board refreshed")
	p.publish()
}

// Tick fetches vehicles and evaluates proximity. A failed fetch keeps the
// previous vehicle snapshot.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()
	now := p.now()

	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	vehicles, err := p.source.Vehicles(fctx)
	cancel()
	if err != nil {
		if p.feedErr == nil {
			log.Warn().Err(err).Msg("vehicle feed unavailable, using last known positions")
		}
		p.feedErr = err
		if p.metrics != nil {
			p.metrics.FeedErrors.Inc()
		}
	} else {
		if p.feedErr != nil {
			log.Info().Int("vehicles", len(vehicles)).Msg("vehicle feed recovered")
		}
		p.feedErr = nil
		p.vehicles = vehicles
	}

	var user *geo.Point
	if pt, ok := p.location.Current(); ok {
		user = &pt
		if p.locationWarned {
			log.Info().Msg("rider location available again")
		}
		p.locationWarned = false
	} else if !p.locationWarned {
		_, reason, _ := p.location.Status()
		log.Warn().Str("reason", reason).Msg("rider location unavailable, skipping proximity checks")
		p.locationWarned = true
	}

	tier := p.estimator.Tier(now)
	res := p.notifier.Tick(user, p.vehicles, tier)
	if p.metrics != nil {
		p.metrics.ProximityTicks.Inc()
		p.metrics.TrackedVehicles.Set(float64(len(p.vehicles)))
		if res.LocationSkipped {
			p.metrics.LocationSkips.Inc()
		}
		for _, r := range res.Fired {
			p.metrics.Notifications.WithLabelValues(kindLabel(r)).Inc()
		}
		p.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	p.publish()
}

func kindLabel(r notify.Record) string {
	if r.Category == notify.CategoryAlert {
		return "traffic"
	}
	return r.Kind.String()
}

func (p *Poller) publish() {
	available, reason, _ := p.location.Status()
	now := p.now()
	snap := Snapshot{
		Board:         p.board,
		Notifications: p.notifier.History(),
		Vehicles:      append([]transit.Vehicle(nil), p.vehicles...),
		Status: Status{
			Closed:            p.estimator.Closed(now),
			Tier:              p.estimator.Tier(now).String(),
			LocationAvailable: available,
			LocationReason:    reason,
			UpdatedAt:         now,
		},
	}
	if p.feedErr != nil {
		snap.Status.FeedError = p.feedErr.Error()
	}
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}

// Snapshot returns the state as of the last refresh or tick.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Poller) Routes() []transit.Route { return p.routes }
