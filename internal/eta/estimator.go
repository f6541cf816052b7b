// Package eta produces per-stop arrival estimates for a route by walking its
// stops and accumulating sampled segment times.
package eta

import (
	"fmt"
	"time"

	"sakay-eta/internal/segments"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// ServiceWindow is the daily operating window. Service is open for hours h
// with OpenHour <= h < CloseHour.
type ServiceWindow struct {
	OpenHour  int
	CloseHour int
}

var DefaultServiceWindow = ServiceWindow{OpenHour: 5, CloseHour: 21}

func (w ServiceWindow) Closed(hour int) bool {
	return hour < w.OpenHour || hour >= w.CloseHour
}

func (w ServiceWindow) Validate() error {
	if w.OpenHour < 0 || w.CloseHour > 24 || w.OpenHour >= w.CloseHour {
		return fmt.Errorf("invalid service window %02d:00-%02d:00", w.OpenHour, w.CloseHour)
	}
	return nil
}

type Estimator struct {
	table  *segments.Table
	window ServiceWindow
	rng    segments.Rand
	loc    *time.Location
}

// NewEstimator returns an estimator reading the wall-clock hour in loc
// (time.Local when nil). The estimator is not safe for concurrent use when
// rng is not.
func NewEstimator(table *segments.Table, window ServiceWindow, rng segments.Rand, loc *time.Location) *Estimator {
	if loc == nil {
		loc = time.Local
	}
	return &Estimator{table: table, window: window, rng: rng, loc: loc}
}

func (e *Estimator) hour(now time.Time) int { return now.In(e.loc).Hour() }

func (e *Estimator) Closed(now time.Time) bool { return e.window.Closed(e.hour(now)) }

func (e *Estimator) Tier(now time.Time) traffic.Tier { return traffic.Classify(e.hour(now)) }

// Estimate returns one StopEta per stop in route order. The first stop is the
// origin and arrives at now; each later stop adds a freshly sampled segment
// time. Outside the service window every arrival is 0.
func (e *Estimator) Estimate(route transit.Route, now time.Time) []transit.StopEta {
	out := make([]transit.StopEta, len(route.Stops))
	if e.Closed(now) {
		for i, stop := range route.Stops {
			out[i] = transit.StopEta{StopName: stop}
		}
		return out
	}

	tier := e.Tier(now)
	base := now.UnixMilli()
	cumulative := 0
	for i, stop := range route.Stops {
		if i > 0 {
			cumulative += e.table.Sample(route.Stops[i-1], stop, tier, e.rng)
		}
		out[i] = transit.StopEta{
			StopName:         stop,
			ArrivalTimestamp: base + int64(cumulative)*int64(time.Minute/time.Millisecond),
		}
	}
	return out
}

type RouteBoard struct {
	RouteID   int               `json:"routeId"`
	RouteName string            `json:"routeName"`
	Stops     []transit.StopEta `json:"stops"`
}

// Board is the result of one refresh cycle over every route.
type Board struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Closed      bool         `json:"closed"`
	Tier        traffic.Tier `json:"tier"`
	Routes      []RouteBoard `json:"routes"`
}

// Route returns the board entry for a route id.
func (b Board) Route(id int) (RouteBoard, bool) {
	for _, r := range b.Routes {
		if r.RouteID == id {
			return r, true
		}
	}
	return RouteBoard{}, false
}

// EstimateAll refreshes every route. Each call samples anew; nothing is
// carried over from earlier boards.
func (e *Estimator) EstimateAll(routes []transit.Route, now time.Time) Board {
	b := Board{
		GeneratedAt: now,
		Closed:      e.Closed(now),
		Tier:        e.Tier(now),
		Routes:      make([]RouteBoard, 0, len(routes)),
	}
	for _, r := range routes {
		b.Routes = append(b.Routes, RouteBoard{
			RouteID:   r.ID,
			RouteName: r.Name,
			Stops:     e.Estimate(r, now),
		})
	}
	return b
}
