// Package notify decides when a bus is close enough to the rider, or to the
// rider's destination, to raise a notification, and when the traffic regime
// changes.
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// Thresholds are distances in km. A bus is Near at or under NearKm, on the
// way in (NearKm, OnTheWayKm], and approaching the destination at or under
// DestinationKm from it.
type Thresholds struct {
	NearKm        float64
	OnTheWayKm    float64
	DestinationKm float64
}

var DefaultThresholds = Thresholds{NearKm: 0.5, OnTheWayKm: 1.2, DestinationKm: 0.8}

func (t Thresholds) Validate() error {
	if t.NearKm <= 0 || t.OnTheWayKm <= 0 || t.DestinationKm <= 0 {
		return errors.New("notify: thresholds must be positive")
	}
	if t.NearKm >= t.OnTheWayKm {
		return fmt.Errorf("notify: near threshold %.2fkm must be below on-the-way threshold %.2fkm", t.NearKm, t.OnTheWayKm)
	}
	return nil
}

type Notifier struct {
	destination geo.Point
	thresholds  Thresholds
	history     *History
	notified    KeySet
	feedback    Feedback
	now         func() time.Time
	newID       func() string

	prevTier traffic.Tier
}

type Option func(*Notifier)

func WithThresholds(t Thresholds) Option { return func(n *Notifier) { n.thresholds = t } }
func WithFeedback(f Feedback) Option     { return func(n *Notifier) { n.feedback = f } }
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}
func WithIDs(newID func() string) Option { return func(n *Notifier) { n.newID = newID } }
func WithHistoryLimit(limit int) Option  { return func(n *Notifier) { n.history = NewHistory(limit) } }

func New(destination geo.Point, opts ...Option) (*Notifier, error) {
	n := &Notifier{
		destination: destination,
		thresholds:  DefaultThresholds,
		history:     NewHistory(MaxHistory),
		notified:    make(KeySet),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.thresholds.Validate(); err != nil {
		return nil, err
	}
	if !destination.Valid() {
		return nil, fmt.Errorf("notify: invalid destination %v", destination)
	}
	return n, nil
}

// TickResult describes what one evaluation did.
type TickResult struct {
	Fired           []Record
	TierChanged     bool
	LocationSkipped bool
}

// Tick evaluates one polling cycle. user is nil when the rider's location is
// unavailable, in which case only the traffic check runs. Keys fired during the
// tick are committed to the notified set once every vehicle has been
// evaluated.
func (n *Notifier) Tick(user *geo.Point, vehicles []transit.Vehicle, tier traffic.Tier) TickResult {
	tier.MustValid()
	var res TickResult

	if n.prevTier != 0 && n.prevTier != tier {
		res.TierChanged = true
		res.Fired = append(res.Fired, n.fire(Record{
			Category: CategoryAlert,
			Message:  trafficMessage(n.prevTier, tier),
		}))
	}
	n.prevTier = tier

	if user == nil {
		res.LocationSkipped = true
		return res
	}

	pending := make(KeySet)
	for _, v := range vehicles {
		pos := v.Position()
		userKm := geo.DistanceKm(*user, pos)
		destKm := geo.DistanceKm(n.destination, pos)

		if userKm > n.thresholds.NearKm && userKm <= n.thresholds.OnTheWayKm {
			n.check(&res, pending, v, OnTheWay, fmt.Sprintf("Bus #%d is on the way, %.1f km from you (about %d min)\nRoute: %s",
				v.ID, userKm, traffic.TravelMinutes(userKm, tier), v.RouteRef))
		}
		if userKm <= n.thresholds.NearKm {
			n.check(&res, pending, v, Near, fmt.Sprintf("Bus #%d is near you!\nRoute: %s\nLocation: (%.4f, %.4f)",
				v.ID, v.RouteRef, v.Lat, v.Lng))
		}
		if destKm <= n.thresholds.DestinationKm {
			n.check(&res, pending, v, ApproachingDestination, fmt.Sprintf("Bus #%d is approaching your destination (about %d min)\nRoute: %s",
				v.ID, traffic.TravelMinutes(destKm, tier), v.RouteRef))
		}
	}
	for k := range pending {
		n.notified.Add(k)
	}
	return res
}

func (n *Notifier) check(res *TickResult, pending KeySet, v transit.Vehicle, kind Kind, msg string) {
	k := Key{VehicleID: v.ID, Kind: kind}
	if n.notified.Has(k) || pending.Has(k) {
		return
	}
	pending.Add(k)
	res.Fired = append(res.Fired, n.fire(Record{
		Category:  CategoryBus,
		Message:   msg,
		VehicleID: v.ID,
		Kind:      kind,
	}))
}

func (n *Notifier) fire(r Record) Record {
	r.ID = n.newID()
	r.CreatedAt = n.now()
	n.history.Push(r)
	deliver(n.feedback, r)
	return r
}

func trafficMessage(from, to traffic.Tier) string {
	switch {
	case to > from:
		return fmt.Sprintf("Traffic is getting worse (%s -> %s). Expect longer travel times.", from, to)
	default:
		return fmt.Sprintf("Traffic is easing (%s -> %s).", from, to)
	}
}

// History returns the notification list, newest first.
func (n *Notifier) History() []Record { return n.history.Records() }

// Notified reports whether k has already fired.
func (n *Notifier) Notified(k Key) bool { return n.notified.Has(k) }

// Forget re-arms a single key.
func (n *Notifier) Forget(k Key) { n.notified.Remove(k) }

// Reset re-arms every key, as on a fresh session.
func (n *Notifier) Reset() { n.notified.Clear() }
