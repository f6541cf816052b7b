// Package sim moves simulated buses along their route paths.
package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sakay-eta/internal/geo"
	mmetrics "sakay-eta/internal/metrics"
	"sakay-eta/internal/network"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// PositionPublisher receives every simulated position on each Run tick.
type PositionPublisher interface {
	PublishPosition(v transit.Vehicle, at time.Time) error
}

type bus struct {
	id     int
	route  string
	path   []geo.Point
	cum    []float64
	total  float64
	factor float64
	pos    float64 // km along path
}

// Simulator is a VehicleSource whose buses cruise at the traffic tier speed.
// Paths loop: a bus reaching the end of its path restarts from the first
// point.
type Simulator struct {
	now     func() time.Time
	loc     *time.Location
	metrics *mmetrics.Collector

	mu    sync.Mutex
	buses []*bus
	last  time.Time
}

type Option func(*Simulator)

func WithClock(now func() time.Time) Option    { return func(s *Simulator) { s.now = now } }
func WithLocation(loc *time.Location) Option   { return func(s *Simulator) { s.loc = loc } }
func WithMetrics(c *mmetrics.Collector) Option { return func(s *Simulator) { s.metrics = c } }

func New(routes []transit.Route, specs []network.VehicleSpec, opts ...Option) (*Simulator, error) {
	s := &Simulator{now: time.Now, loc: time.Local}
	for _, o := range opts {
		o(s)
	}

	for _, spec := range specs {
		r, ok := transit.RouteByID(routes, spec.RouteID)
		if !ok {
			return nil, fmt.Errorf("vehicle %d: unknown route %d", spec.ID, spec.RouteID)
		}
		cum := geo.CumDistances(r.Path)
		if len(cum) < 2 || cum[len(cum)-1] == 0 {
			return nil, fmt.Errorf("vehicle %d: route %d has no usable path", spec.ID, spec.RouteID)
		}
		factor := spec.SpeedFactor
		if factor == 0 {
			factor = 1
		}
		b := &bus{
			id:     spec.ID,
			route:  r.Name,
			path:   r.Path,
			cum:    cum,
			total:  cum[len(cum)-1],
			factor: factor,
		}
		b.pos = math.Mod(spec.OffsetKm, b.total)
		s.buses = append(s.buses, b)
	}
	sort.Slice(s.buses, func(i, j int) bool { return s.buses[i].id < s.buses[j].id })
	s.last = s.now()
	return s, nil
}

// Vehicles advances every bus to the current time and returns their
// positions ordered by id.
func (s *Simulator) Vehicles(ctx context.Context) ([]transit.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	out := make([]transit.Vehicle, 0, len(s.buses))
	for _, b := range s.buses {
		p, _ := geo.Interpolate(b.path, b.cum, b.pos)
		out = append(out, transit.Vehicle{ID: b.id, Lat: p.Lat, Lng: p.Lng, RouteRef: b.route})
	}
	return out, nil
}

// advance moves every bus by the distance covered since the last call at the
// speed of the tier in effect now.
func (s *Simulator) advance(now time.Time) {
	elapsed := now.Sub(s.last)
	if elapsed <= 0 {
		return
	}
	s.last = now
	kph := traffic.SpeedKph(traffic.Classify(now.In(s.loc).Hour()))
	for _, b := range s.buses {
		b.pos = math.Mod(b.pos+elapsed.Hours()*kph*b.factor, b.total)
	}
}

// Run publishes every bus position each interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, pub PositionPublisher, interval time.Duration) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	log.Info().Int("vehicles", len(s.buses)).Dur("interval", interval).Msg("simulation started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("simulation stopped")
			return ctx.Err()
		case <-tick.C:
			s.publishOnce(ctx, pub)
		}
	}
}

func (s *Simulator) publishOnce(ctx context.Context, pub PositionPublisher) {
	tickStart := time.Now()
	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return
	}
	at := s.now()
	for _, v := range vehicles {
		if err := pub.PublishPosition(v, at); err != nil {
			log.Warn().Err(err).Int("vehicle", v.ID).Msg("publish position failed")
		}
	}
	if s.metrics != nil {
		s.metrics.TrackedVehicles.Set(float64(len(vehicles)))
		s.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
	}
}
