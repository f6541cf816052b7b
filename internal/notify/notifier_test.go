package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

var (
	user = geo.Point{Lat: 14.6510, Lng: 121.0490}
	// far enough from every test vehicle to never trigger the destination check
	farDestination = geo.Point{Lat: 14.7500, Lng: 121.2000}
)

func newTestNotifier(t *testing.T, dest geo.Point, opts ...Option) (*Notifier, *[]Record) {
	t.Helper()
	var delivered []Record
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC) }),
		WithIDs(func() string { seq++; return fmt.Sprintf("n%d", seq) }),
		WithFeedback(FeedbackFunc(func(r Record) { delivered = append(delivered, r) })),
	}
	n, err := New(dest, append(base, opts...)...)
	require.NoError(t, err)
	return n, &delivered
}

func kinds(records []Record) []Kind {
	out := make([]Kind, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind)
	}
	return out
}

func TestNearFiresOnce(t *testing.T) {
	n, delivered := newTestNotifier(t, farDestination)
	bus := transit.Vehicle{ID: 1, Lat: 14.6510, Lng: 121.0495, RouteRef: "QC Hall to Cubao"}

	for i := 0; i < 5; i++ {
		n.Tick(&user, []transit.Vehicle{bus}, traffic.Light)
	}

	history := n.History()
	require.Len(t, history, 1)
	assert.Equal(t, Near, history[0].Kind)
	assert.Equal(t, CategoryBus, history[0].Category)
	assert.Equal(t, 1, history[0].VehicleID)
	assert.Equal(t, "n1", history[0].ID)
	assert.Contains(t, history[0].Message, "Bus #1 is near you!")
	assert.Len(t, *delivered, 1)
	assert.True(t, n.Notified(Key{VehicleID: 1, Kind: Near}))
}

func TestOutsideOnTheWayRange(t *testing.T) {
	n, _ := newTestNotifier(t, farDestination)
	bus := transit.Vehicle{ID: 1, Lat: 14.6600, Lng: 121.0600}
	require.Greater(t, geo.DistanceKm(user, bus.Position()), 1.2)

	res := n.Tick(&user, []transit.Vehicle{bus}, traffic.Light)
	assert.Empty(t, res.Fired)
	assert.Empty(t, n.History())
}

func TestOnTheWayThenNear(t *testing.T) {
	n, _ := newTestNotifier(t, farDestination)

	// ~0.86 km north of the rider
	res := n.Tick(&user, []transit.Vehicle{{ID: 2, Lat: 14.6587, Lng: 121.0490}}, traffic.Heavy)
	require.Len(t, res.Fired, 1)
	assert.Equal(t, OnTheWay, res.Fired[0].Kind)
	assert.Contains(t, res.Fired[0].Message, "about 6 min")

	res = n.Tick(&user, []transit.Vehicle{{ID: 2, Lat: 14.6520, Lng: 121.0490}}, traffic.Heavy)
	require.Len(t, res.Fired, 1)
	assert.Equal(t, Near, res.Fired[0].Kind)

	// back out to on-the-way distance: already notified
	res = n.Tick(&user, []transit.Vehicle{{ID: 2, Lat: 14.6587, Lng: 121.0490}}, traffic.Heavy)
	assert.Empty(t, res.Fired)

	assert.Equal(t, []Kind{Near, OnTheWay}, kinds(n.History()))
}

func TestNearAndDestinationSameTick(t *testing.T) {
	dest := geo.Point{Lat: 14.6515, Lng: 121.0490}
	n, delivered := newTestNotifier(t, dest)

	res := n.Tick(&user, []transit.Vehicle{{ID: 3, Lat: 14.6512, Lng: 121.0491}}, traffic.Moderate)
	assert.ElementsMatch(t, []Kind{Near, ApproachingDestination}, kinds(res.Fired))
	assert.Len(t, *delivered, 2)
	assert.Len(t, n.History(), 2)
}

func TestDuplicateVehicleInSnapshot(t *testing.T) {
	n, _ := newTestNotifier(t, farDestination)
	bus := transit.Vehicle{ID: 4, Lat: 14.6511, Lng: 121.0490}

	res := n.Tick(&user, []transit.Vehicle{bus, bus}, traffic.Light)
	assert.Len(t, res.Fired, 1)
}

func TestLocationUnavailable(t *testing.T) {
	n, delivered := newTestNotifier(t, farDestination)
	bus := transit.Vehicle{ID: 1, Lat: 14.6510, Lng: 121.0495}

	res := n.Tick(nil, []transit.Vehicle{bus}, traffic.Light)
	assert.True(t, res.LocationSkipped)
	assert.Empty(t, res.Fired)
	assert.Empty(t, *delivered)

	res = n.Tick(&user, []transit.Vehicle{bus}, traffic.Light)
	assert.False(t, res.LocationSkipped)
	assert.Len(t, res.Fired, 1)
}

func TestTrafficChangeAlert(t *testing.T) {
	n, delivered := newTestNotifier(t, farDestination)

	res := n.Tick(nil, nil, traffic.Light)
	assert.False(t, res.TierChanged, "first tick only remembers the tier")

	res = n.Tick(nil, nil, traffic.Light)
	assert.False(t, res.TierChanged)

	res = n.Tick(nil, nil, traffic.Heavy)
	require.True(t, res.TierChanged)
	require.Len(t, res.Fired, 1)
	assert.Equal(t, CategoryAlert, res.Fired[0].Category)
	assert.Contains(t, res.Fired[0].Message, "light -> heavy")

	res = n.Tick(nil, nil, traffic.Moderate)
	require.True(t, res.TierChanged)
	assert.Contains(t, res.Fired[0].Message, "easing")

	assert.Len(t, *delivered, 2)
	assert.Panics(t, func() { n.Tick(nil, nil, traffic.Tier(0)) })
}

func TestHistoryCap(t *testing.T) {
	n, delivered := newTestNotifier(t, farDestination)

	vehicles := make([]transit.Vehicle, 0, 20)
	for id := 1; id <= 20; id++ {
		vehicles = append(vehicles, transit.Vehicle{ID: id, Lat: 14.6510, Lng: 121.0491})
	}
	for _, v := range vehicles {
		n.Tick(&user, []transit.Vehicle{v}, traffic.Light)
		assert.LessOrEqual(t, len(n.History()), MaxHistory)
	}

	history := n.History()
	require.Len(t, history, MaxHistory)
	assert.Equal(t, 20, history[0].VehicleID)
	assert.Equal(t, 6, history[MaxHistory-1].VehicleID)
	assert.Len(t, *delivered, 20)
}

func TestResetRearmsKeys(t *testing.T) {
	n, _ := newTestNotifier(t, farDestination)
	bus := transit.Vehicle{ID: 1, Lat: 14.6510, Lng: 121.0495}

	n.Tick(&user, []transit.Vehicle{bus}, traffic.Light)
	n.Forget(Key{VehicleID: 1, Kind: Near})
	res := n.Tick(&user, []transit.Vehicle{bus}, traffic.Light)
	assert.Len(t, res.Fired, 1)

	n.Reset()
	assert.False(t, n.Notified(Key{VehicleID: 1, Kind: Near}))
}

func TestPanickingFeedbackDoesNotBreakTick(t *testing.T) {
	n, err := New(farDestination, WithFeedback(FeedbackFunc(func(Record) { panic("speaker unplugged") })))
	require.NoError(t, err)

	bus := transit.Vehicle{ID: 1, Lat: 14.6510, Lng: 121.0495}
	assert.NotPanics(t, func() { n.Tick(&user, []transit.Vehicle{bus}, traffic.Light) })
	assert.Len(t, n.History(), 1)
	assert.True(t, n.Notified(Key{VehicleID: 1, Kind: Near}))
}

func TestNewValidation(t *testing.T) {
	_, err := New(farDestination, WithThresholds(Thresholds{NearKm: 1.5, OnTheWayKm: 1.2, DestinationKm: 0.8}))
	assert.Error(t, err)

	_, err = New(farDestination, WithThresholds(Thresholds{NearKm: 0, OnTheWayKm: 1.2, DestinationKm: 0.8}))
	assert.Error(t, err)

	_, err = New(geo.Point{Lat: 120, Lng: 0})
	assert.Error(t, err)
}

func TestMultiFeedback(t *testing.T) {
	var got []string
	m := MultiFeedback{
		FeedbackFunc(func(r Record) { got = append(got, "a:"+r.ID) }),
		nil,
		FeedbackFunc(func(Record) { panic("boom") }),
		FeedbackFunc(func(r Record) { got = append(got, "b:"+r.ID) }),
	}
	m.Notify(Record{ID: "x"})
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}
