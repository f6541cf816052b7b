// Package network defines the static bus network: routes, the segment time
// table and the simulated fleet, and loads it from the built-in default, a
// YAML file or a GTFS feed.
package network

import (
	"errors"
	"fmt"

	"sakay-eta/internal/segments"
	"sakay-eta/internal/transit"
)

var ErrInvalid = errors.New("invalid network")

// VehicleSpec places a simulated bus on a route path. OffsetKm is the starting
// distance along the path; SpeedFactor scales the tier speed (1 when zero).
type VehicleSpec struct {
	ID          int
	RouteID     int
	OffsetKm    float64
	SpeedFactor float64
}

type Network struct {
	Routes   []transit.Route
	Segments []segments.Entry
	Vehicles []VehicleSpec
}

// Table builds the segment time table.
func (n *Network) Table() (*segments.Table, error) {
	t, err := segments.NewTable(n.Segments...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return t, nil
}

func (n *Network) Validate() error {
	ids := make(map[int]transit.Route, len(n.Routes))
	for _, r := range n.Routes {
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("%w: duplicate route id %d", ErrInvalid, r.ID)
		}
		ids[r.ID] = r
		if r.Name == "" {
			return fmt.Errorf("%w: route %d has no name", ErrInvalid, r.ID)
		}
		seen := make(map[string]bool, len(r.Stops))
		for _, s := range r.Stops {
			if s == "" {
				return fmt.Errorf("%w: route %d has an unnamed stop", ErrInvalid, r.ID)
			}
			if seen[s] {
				return fmt.Errorf("%w: route %d lists stop %q twice", ErrInvalid, r.ID, s)
			}
			seen[s] = true
		}
		for i, p := range r.Path {
			if !p.Valid() {
				return fmt.Errorf("%w: route %d path point %d out of range", ErrInvalid, r.ID, i)
			}
		}
	}
	if _, err := n.Table(); err != nil {
		return err
	}
	vehicles := make(map[int]bool, len(n.Vehicles))
	for _, v := range n.Vehicles {
		if vehicles[v.ID] {
			return fmt.Errorf("%w: duplicate vehicle id %d", ErrInvalid, v.ID)
		}
		vehicles[v.ID] = true
		r, ok := ids[v.RouteID]
		if !ok {
			return fmt.Errorf("%w: vehicle %d references unknown route %d", ErrInvalid, v.ID, v.RouteID)
		}
		if len(r.Path) < 2 {
			return fmt.Errorf("%w: vehicle %d is on route %d which has no path", ErrInvalid, v.ID, v.RouteID)
		}
		if v.OffsetKm < 0 || v.SpeedFactor < 0 {
			return fmt.Errorf("%w: vehicle %d has a negative offset or speed factor", ErrInvalid, v.ID)
		}
	}
	return nil
}
