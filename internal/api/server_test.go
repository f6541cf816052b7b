package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sakay-eta/internal/eta"
	"sakay-eta/internal/location"
	"sakay-eta/internal/notify"
	"sakay-eta/internal/poller"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

var manila = time.FixedZone("PHT", 8*3600)

type fakeState struct {
	snap   poller.Snapshot
	routes []transit.Route
}

func (f *fakeState) Snapshot() poller.Snapshot { return f.snap }
func (f *fakeState) Routes() []transit.Route   { return f.routes }

func newTestServer(t *testing.T) (*Server, *fakeState, *location.Watch, time.Time) {
	t.Helper()
	generated := time.Date(2026, 10, 14, 8, 0, 0, 0, manila)
	base := generated.UnixMilli()
	state := &fakeState{
		routes: []transit.Route{{ID: 1, Name: "QC Hall to Cubao", Stops: []string{"QC Hall", "EDSA-Kamuning", "Cubao Terminal"}}},
		snap: poller.Snapshot{
			Board: eta.Board{
				GeneratedAt: generated,
				Tier:        traffic.Heavy,
				Routes: []eta.RouteBoard{{
					RouteID:   1,
					RouteName: "QC Hall to Cubao",
					Stops: []transit.StopEta{
						{StopName: "QC Hall", ArrivalTimestamp: base},
						{StopName: "EDSA-Kamuning", ArrivalTimestamp: base + 10*60000},
						{StopName: "Cubao Terminal", ArrivalTimestamp: base + 25*60000},
					},
				}},
			},
			Notifications: []notify.Record{{ID: "n2", Message: "Bus #1 is near you!", Category: notify.CategoryBus, VehicleID: 1, Kind: notify.Near}},
			Vehicles:      []transit.Vehicle{{ID: 1, Lat: 14.6994, Lng: 121.0359, RouteRef: "QC Hall to Cubao"}},
			Status:        poller.Status{Tier: "heavy", FeedError: "broker down", UpdatedAt: generated},
		},
	}
	watch := location.NewWatch()
	// the request arrives 4m30s after the board was built
	now := generated.Add(4*time.Minute + 30*time.Second)
	s := New(state, watch, manila, WithClock(func() time.Time { return now }))
	return s, state, watch, now
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestGetBoard(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	resp, body := do(t, s, "GET", "/api/eta", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got boardView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "heavy", got.Tier)
	assert.False(t, got.Closed)
	require.Len(t, got.Routes, 1)
	stops := got.Routes[0].Stops
	require.Len(t, stops, 3)

	assert.Equal(t, stopView{StopName: "QC Hall", Arrival: stops[0].Arrival, Clock: "8:00 AM", Countdown: "Arrived"}, stops[0])
	assert.Equal(t, "8:10 AM", stops[1].Clock)
	assert.Equal(t, "5m 30s", stops[1].Countdown)
	assert.Equal(t, "8:25 AM", stops[2].Clock)
	assert.Equal(t, "20m 30s", stops[2].Countdown)
}

func TestGetBoardClosed(t *testing.T) {
	s, state, _, _ := newTestServer(t)
	state.snap.Board.Closed = true
	for i := range state.snap.Board.Routes[0].Stops {
		state.snap.Board.Routes[0].Stops[i].ArrivalTimestamp = 0
	}

	_, body := do(t, s, "GET", "/api/eta/1", "")
	var got routeView
	require.NoError(t, json.Unmarshal(body, &got))
	for _, st := range got.Stops {
		assert.Equal(t, stopView{StopName: st.StopName}, st)
	}
}

func TestGetRouteBoard(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp, body := do(t, s, "GET", "/api/eta/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got routeView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "QC Hall to Cubao", got.RouteName)

	resp, body = do(t, s, "GET", "/api/eta/9", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "could not find route 9")

	resp, _ = do(t, s, "GET", "/api/eta/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEndpoints(t *testing.T) {
	s, state, _, _ := newTestServer(t)

	_, body := do(t, s, "GET", "/api/routes", "")
	assert.JSONEq(t, `[{"id":1,"name":"QC Hall to Cubao","stops":["QC Hall","EDSA-Kamuning","Cubao Terminal"]}]`, string(body))

	_, body = do(t, s, "GET", "/api/vehicles", "")
	assert.JSONEq(t, `[{"id":1,"lat":14.6994,"lng":121.0359,"route":"QC Hall to Cubao"}]`, string(body))

	_, body = do(t, s, "GET", "/api/notifications", "")
	var records []map[string]any
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "near", records[0]["kind"])
	assert.Equal(t, "bus", records[0]["category"])

	state.snap = poller.Snapshot{}
	_, body = do(t, s, "GET", "/api/notifications", "")
	assert.JSONEq(t, `[]`, string(body))
	_, body = do(t, s, "GET", "/api/vehicles", "")
	assert.JSONEq(t, `[]`, string(body))
}

func TestLocationLifecycle(t *testing.T) {
	s, _, watch, _ := newTestServer(t)

	_, body := do(t, s, "GET", "/api/status", "")
	var st poller.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.False(t, st.LocationAvailable)
	assert.Equal(t, "broker down", st.FeedError)

	resp, _ := do(t, s, "PUT", "/api/location", `{"lat": 14.65, "lng": 121.05}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	p, ok := watch.Current()
	require.True(t, ok)
	assert.Equal(t, 14.65, p.Lat)

	_, body = do(t, s, "GET", "/api/status", "")
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.LocationAvailable)

	resp, _ = do(t, s, "DELETE", "/api/location", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok = watch.Current()
	assert.False(t, ok)
	_, reason, _ := watch.Status()
	assert.Equal(t, location.ReasonDenied, reason)
}

func TestPutLocationRejects(t *testing.T) {
	s, _, watch, _ := newTestServer(t)
	for _, body := range []string{`{"lat": 95, "lng": 121}`, `{"lat": 14.6}`, `not json`} {
		resp, _ := do(t, s, "PUT", "/api/location", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	_, ok := watch.Current()
	assert.False(t, ok)
}
