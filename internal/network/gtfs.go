package network

import (
	"fmt"
	"os"
	"sort"

	"github.com/jamespfennell/gtfs"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/transit"
)

// LoadGTFSFile builds a network from a static GTFS zip. Each route takes the
// stop sequence of its longest trip. The segment table is left empty so every
// segment uses the tier defaults.
func LoadGTFSFile(path string) (*Network, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read GTFS file: %w", err)
	}
	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse GTFS data: %w", err)
	}
	return fromStatic(static)
}

func fromStatic(static *gtfs.Static) (*Network, error) {
	longest := make(map[string]*gtfs.ScheduledTrip)
	for i := range static.Trips {
		t := &static.Trips[i]
		if t.Route == nil {
			continue
		}
		if cur, ok := longest[t.Route.Id]; !ok || len(t.StopTimes) > len(cur.StopTimes) {
			longest[t.Route.Id] = t
		}
	}

	gtfsRoutes := make([]gtfs.Route, len(static.Routes))
	copy(gtfsRoutes, static.Routes)
	sort.Slice(gtfsRoutes, func(i, j int) bool { return gtfsRoutes[i].Id < gtfsRoutes[j].Id })

	n := &Network{}
	for _, gr := range gtfsRoutes {
		trip, ok := longest[gr.Id]
		if !ok {
			continue
		}
		route := transit.Route{ID: len(n.Routes) + 1, Name: routeName(gr)}

		stopTimes := make([]gtfs.ScheduledStopTime, len(trip.StopTimes))
		copy(stopTimes, trip.StopTimes)
		sort.Slice(stopTimes, func(i, j int) bool { return stopTimes[i].StopSequence < stopTimes[j].StopSequence })

		var stopPath []geo.Point
		seen := make(map[string]bool, len(stopTimes))
		for _, st := range stopTimes {
			if st.Stop == nil {
				continue
			}
			name := st.Stop.Name
			if name == "" {
				name = st.Stop.Id
			}
			// loop routes revisit stops; keep the first visit
			if seen[name] {
				continue
			}
			seen[name] = true
			route.Stops = append(route.Stops, name)
			if st.Stop.Latitude != nil && st.Stop.Longitude != nil {
				stopPath = append(stopPath, geo.Point{Lat: *st.Stop.Latitude, Lng: *st.Stop.Longitude})
			}
		}

		if trip.Shape != nil && len(trip.Shape.Points) >= 2 {
			for _, pt := range trip.Shape.Points {
				route.Path = append(route.Path, geo.Point{Lat: pt.Latitude, Lng: pt.Longitude})
			}
		} else if len(stopPath) >= 2 {
			route.Path = stopPath
		}

		n.Routes = append(n.Routes, route)
		if len(route.Path) >= 2 {
			n.Vehicles = append(n.Vehicles, VehicleSpec{ID: len(n.Vehicles) + 1, RouteID: route.ID, SpeedFactor: 1})
		}
	}

	if len(n.Routes) == 0 {
		return nil, fmt.Errorf("%w: GTFS feed has no routes with trips", ErrInvalid)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func routeName(r gtfs.Route) string {
	switch {
	case r.LongName != "":
		return r.LongName
	case r.ShortName != "":
		return r.ShortName
	default:
		return r.Id
	}
}
