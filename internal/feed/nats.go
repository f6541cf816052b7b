// Package feed provides a vehicle position source backed by positions
// published on NATS.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"sakay-eta/internal/publisher"
	"sakay-eta/internal/transit"
)

var (
	ErrNoPositions = errors.New("feed: no vehicle positions received")
	ErrClosed      = errors.New("feed: connection closed")
)

// DefaultMaxAge drops vehicles that have not reported for this long.
const DefaultMaxAge = 2 * time.Minute

// NATSSource keeps the latest position of every vehicle seen on the position
// subjects.
type NATSSource struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	latest map[int]entry
}

type entry struct {
	vehicle transit.Vehicle
	stamp   time.Time // publisher timestamp
	seen    time.Time // local receive time
}

func newSource(maxAge time.Duration) *NATSSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &NATSSource{maxAge: maxAge, now: time.Now, latest: make(map[int]entry)}
}

func Subscribe(nc *nats.Conn, prefix string, maxAge time.Duration) (*NATSSource, error) {
	s := newSource(maxAge)
	s.nc = nc
	sub, err := nc.Subscribe(publisher.PositionWildcard(prefix), s.handle)
	if err != nil {
		return nil, err
	}
	s.sub = sub
	log.Info().Str("subject", sub.Subject).Msg("subscribed to vehicle positions")
	return s, nil
}

func (s *NATSSource) handle(m *nats.Msg) {
	var pm publisher.PositionMessage
	if err := json.Unmarshal(m.Data, &pm); err != nil {
		log.Warn().Err(err).Str("subject", m.Subject).Msg("dropping malformed position")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// out-of-order delivery must not move a vehicle backwards
	if prev, ok := s.latest[pm.VehicleID]; ok && pm.Timestamp.Before(prev.stamp) {
		return
	}
	s.latest[pm.VehicleID] = entry{
		vehicle: transit.Vehicle{ID: pm.VehicleID, Lat: pm.Lat, Lng: pm.Lng, RouteRef: pm.Route},
		stamp:   pm.Timestamp,
		seen:    s.now(),
	}
}

// Vehicles returns the fresh positions ordered by vehicle id.
func (s *NATSSource) Vehicles(ctx context.Context) ([]transit.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.nc != nil && s.nc.IsClosed() {
		return nil, ErrClosed
	}
	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	out := make([]transit.Vehicle, 0, len(s.latest))
	for id, e := range s.latest {
		if e.seen.Before(cutoff) {
			delete(s.latest, id)
			continue
		}
		out = append(out, e.vehicle)
	}
	s.mu.Unlock()

	if len(out) == 0 {
		return nil, ErrNoPositions
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *NATSSource) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
