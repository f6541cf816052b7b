package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sakay-eta/internal/eta"
	"sakay-eta/internal/geo"
	"sakay-eta/internal/location"
	mmetrics "sakay-eta/internal/metrics"
	"sakay-eta/internal/network"
	"sakay-eta/internal/notify"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/transit"
)

var (
	manila      = time.FixedZone("PHT", 8*3600)
	rider       = geo.Point{Lat: 14.6994, Lng: 121.0359}
	destination = geo.Point{Lat: 14.5000, Lng: 121.3000}
)

// fakeSource replays queued responses, repeating the last one.
type fakeSource struct {
	vehicles [][]transit.Vehicle
	errs     []error
	calls    int
}

func (f *fakeSource) Vehicles(ctx context.Context) ([]transit.Vehicle, error) {
	i := f.calls
	if i >= len(f.vehicles) {
		i = len(f.vehicles) - 1
	}
	f.calls++
	return f.vehicles[i], f.errs[i]
}

type fixture struct {
	poller  *Poller
	watch   *location.Watch
	source  *fakeSource
	metrics *mmetrics.Collector
	now     *time.Time
}

func newFixture(t *testing.T, src *fakeSource) *fixture {
	t.Helper()
	net := network.Default()
	table, err := net.Table()
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 8, 0, 0, 0, manila)
	clock := func() time.Time { return now }
	seed := int64(7)
	est := eta.NewEstimator(table, eta.DefaultServiceWindow, segments.NewRand(&seed), manila)

	seq := 0
	n, err := notify.New(destination,
		notify.WithClock(clock),
		notify.WithIDs(func() string { seq++; return fmt.Sprintf("n%d", seq) }),
	)
	require.NoError(t, err)

	watch := location.NewWatch()
	m := mmetrics.NewCollector(DefaultETAInterval, DefaultProximityInterval)
	p := New(net.Routes, est, n, src, watch, WithClock(clock), WithMetrics(m))
	return &fixture{poller: p, watch: watch, source: src, metrics: m, now: &now}
}

func bus(id int, p geo.Point) transit.Vehicle {
	return transit.Vehicle{ID: id, Lat: p.Lat, Lng: p.Lng, RouteRef: "QC Hall to Cubao"}
}

func TestRefreshETAs(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{nil}, errs: []error{nil}})
	f.poller.RefreshETAs()

	snap := f.poller.Snapshot()
	require.Len(t, snap.Board.Routes, 3)
	assert.False(t, snap.Board.Closed)
	assert.Equal(t, "heavy", snap.Status.Tier)

	cubao, ok := snap.Board.Route(1)
	require.True(t, ok)
	require.Len(t, cubao.Stops, 3)
	assert.Equal(t, f.now.UnixMilli(), cubao.Stops[0].ArrivalTimestamp)
	// heavy ranges for the Cubao corridor are 12-18 then 15-22 minutes
	first := cubao.Stops[1].ArrivalTimestamp - cubao.Stops[0].ArrivalTimestamp
	assert.GreaterOrEqual(t, first, int64(12*60000))
	assert.LessOrEqual(t, first, int64(18*60000))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ETARefreshes))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ServiceOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TrafficTier))
}

func TestRefreshClosed(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{nil}, errs: []error{nil}})
	*f.now = time.Date(2026, 10, 14, 23, 0, 0, 0, manila)
	f.poller.RefreshETAs()

	snap := f.poller.Snapshot()
	assert.True(t, snap.Board.Closed)
	assert.True(t, snap.Status.Closed)
	for _, r := range snap.Board.Routes {
		for _, s := range r.Stops {
			assert.Zero(t, s.ArrivalTimestamp, "route %d stop %s", r.RouteID, s.StopName)
		}
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ServiceOpen))
}

func TestTickFiresOncePerVehicle(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{{bus(1, rider)}}, errs: []error{nil}})
	require.NoError(t, f.watch.Set(rider))

	f.poller.Tick(context.Background())
	f.poller.Tick(context.Background())

	snap := f.poller.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, notify.Near, snap.Notifications[0].Kind)
	assert.Equal(t, []transit.Vehicle{bus(1, rider)}, snap.Vehicles)
	assert.True(t, snap.Status.LocationAvailable)
	assert.Empty(t, snap.Status.FeedError)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ProximityTicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("near")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrackedVehicles))
}

func TestFeedErrorKeepsLastSnapshot(t *testing.T) {
	down := errors.New("broker down")
	src := &fakeSource{
		vehicles: [][]transit.Vehicle{{bus(1, rider)}, nil, {bus(1, rider), bus(2, rider)}},
		errs:     []error{nil, down, nil},
	}
	f := newFixture(t, src)
	require.NoError(t, f.watch.Set(rider))

	f.poller.Tick(context.Background())
	f.poller.Tick(context.Background())

	snap := f.poller.Snapshot()
	assert.Equal(t, []transit.Vehicle{bus(1, rider)}, snap.Vehicles)
	assert.Equal(t, "broker down", snap.Status.FeedError)
	assert.Len(t, snap.Notifications, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FeedErrors))

	f.poller.Tick(context.Background())
	snap = f.poller.Snapshot()
	assert.Empty(t, snap.Status.FeedError)
	assert.Len(t, snap.Vehicles, 2)
	assert.Len(t, snap.Notifications, 2)
}

func TestTickWithoutLocation(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{{bus(1, rider)}}, errs: []error{nil}})

	f.poller.Tick(context.Background())
	f.poller.Tick(context.Background())

	snap := f.poller.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.False(t, snap.Status.LocationAvailable)
	assert.Equal(t, location.ReasonUnknown, snap.Status.LocationReason)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LocationSkips))

	// location arrives later; the bus is still in range and fires
	require.NoError(t, f.watch.Set(rider))
	f.poller.Tick(context.Background())
	assert.Len(t, f.poller.Snapshot().Notifications, 1)
}

func TestTrafficAlertCounted(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{nil}, errs: []error{nil}})
	f.poller.Tick(context.Background())
	*f.now = time.Date(2026, 10, 14, 11, 0, 0, 0, manila)
	f.poller.Tick(context.Background())

	snap := f.poller.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, notify.CategoryAlert, snap.Notifications[0].Category)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("traffic")))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, &fakeSource{vehicles: [][]transit.Vehicle{nil}, errs: []error{nil}})
	f.poller.etaInterval = time.Hour
	f.poller.proximityInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.poller.Snapshot().Board.Routes) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
