package transit

import (
	"context"

	"sakay-eta/internal/geo"
)

// Route is an ordered stop sequence. Stop names are unique within a route and
// their order is the direction of travel.
type Route struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Stops []string    `json:"stops"`
	Path  []geo.Point `json:"path,omitempty"` // polyline used for simulation, may be empty
}

// StopEta is the estimated arrival at one stop. ArrivalTimestamp is epoch
// milliseconds, or 0 when service is closed.
type StopEta struct {
	StopName         string `json:"stopName"`
	ArrivalTimestamp int64  `json:"arrivalTimestamp"`
}

func (s StopEta) Closed() bool { return s.ArrivalTimestamp == 0 }

type Vehicle struct {
	ID       int     `json:"id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RouteRef string  `json:"route"`
}

func (v Vehicle) Position() geo.Point { return geo.Point{Lat: v.Lat, Lng: v.Lng} }

// VehicleSource yields a snapshot of current vehicle positions.
type VehicleSource interface {
	Vehicles(ctx context.Context) ([]Vehicle, error)
}

// RouteByID returns the route with the given id.
func RouteByID(routes []Route, id int) (Route, bool) {
	for _, r := range routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}
