package network

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// File layout:
//
//	routes:
//	  - id: 1
//	    name: QC Hall to Cubao
//	    stops: [QC Hall, EDSA-Kamuning, Cubao Terminal]
//	    path: [[14.6994, 121.0359], [14.6933, 121.0395]]
//	segments:
//	  - from: QC Hall
//	    to: EDSA-Kamuning
//	    light: [4, 6]
//	    moderate: [7, 10]
//	    heavy: [12]
//	vehicles:
//	  - id: 1
//	    route: 1
//	    offset_km: 0.5
type fileNetwork struct {
	Routes   []fileRoute   `yaml:"routes"`
	Segments []fileSegment `yaml:"segments"`
	Vehicles []fileVehicle `yaml:"vehicles"`
}

type fileRoute struct {
	ID    int          `yaml:"id"`
	Name  string       `yaml:"name"`
	Stops []string     `yaml:"stops"`
	Path  [][2]float64 `yaml:"path"`
}

// fileSegment ranges are [min, max] or [n] for a fixed time.
type fileSegment struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Light    []int  `yaml:"light"`
	Moderate []int  `yaml:"moderate"`
	Heavy    []int  `yaml:"heavy"`
}

type fileVehicle struct {
	ID          int     `yaml:"id"`
	Route       int     `yaml:"route"`
	OffsetKm    float64 `yaml:"offset_km"`
	SpeedFactor float64 `yaml:"speed_factor"`
}

func LoadFile(path string) (*Network, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network file: %w", err)
	}
	n, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Parse decodes and validates a YAML network. Unknown keys are rejected.
func Parse(b []byte) (*Network, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var f fileNetwork
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	n := &Network{}
	for _, r := range f.Routes {
		route := transit.Route{ID: r.ID, Name: r.Name, Stops: r.Stops}
		for _, p := range r.Path {
			route.Path = append(route.Path, geo.Point{Lat: p[0], Lng: p[1]})
		}
		n.Routes = append(n.Routes, route)
	}
	for _, s := range f.Segments {
		e := segments.Entry{From: s.From, To: s.To, Ranges: make(map[traffic.Tier]segments.Range, 3)}
		for tier, raw := range map[traffic.Tier][]int{traffic.Light: s.Light, traffic.Moderate: s.Moderate, traffic.Heavy: s.Heavy} {
			r, err := parseRange(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: segment %q -> %q %s: %v", ErrInvalid, s.From, s.To, tier, err)
			}
			e.Ranges[tier] = r
		}
		n.Segments = append(n.Segments, e)
	}
	for _, v := range f.Vehicles {
		n.Vehicles = append(n.Vehicles, VehicleSpec{ID: v.ID, RouteID: v.Route, OffsetKm: v.OffsetKm, SpeedFactor: v.SpeedFactor})
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func parseRange(raw []int) (segments.Range, error) {
	switch len(raw) {
	case 1:
		return segments.Range{Min: raw[0], Max: raw[0]}, nil
	case 2:
		return segments.Range{Min: raw[0], Max: raw[1]}, nil
	}
	return segments.Range{}, fmt.Errorf("expected [min, max] or [minutes], got %d values", len(raw))
}
