package network

import (
	"sakay-eta/internal/geo"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// qcPath is the Quezon City corridor drawn on the rider map.
var qcPath = []geo.Point{
	{Lat: 14.6994, Lng: 121.0359},
	{Lat: 14.6933, Lng: 121.0395},
	{Lat: 14.6868, Lng: 121.0426},
	{Lat: 14.6760, Lng: 121.0437},
	{Lat: 14.6700, Lng: 121.0505},
	{Lat: 14.6549, Lng: 121.0526},
	{Lat: 14.6474, Lng: 121.0563},
	{Lat: 14.6396, Lng: 121.0560},
	{Lat: 14.6312, Lng: 121.0581},
	{Lat: 14.6255, Lng: 121.0611},
	{Lat: 14.6192, Lng: 121.0698},
	{Lat: 14.6130, Lng: 121.0805},
}

func entry(from, to string, light, moderate, heavy segments.Range) segments.Entry {
	return segments.Entry{From: from, To: to, Ranges: map[traffic.Tier]segments.Range{
		traffic.Light:    light,
		traffic.Moderate: moderate,
		traffic.Heavy:    heavy,
	}}
}

// Default returns the free city bus network. Segments missing from the table
// use the tier defaults.
func Default() *Network {
	path := make([]geo.Point, len(qcPath))
	copy(path, qcPath)

	n := &Network{
		Routes: []transit.Route{
			{ID: 1, Name: "QC Hall to Cubao", Stops: []string{"QC Hall", "EDSA-Kamuning", "Cubao Terminal"}, Path: path},
			{ID: 2, Name: "QC Hall to Litex/IBP", Stops: []string{"QC Hall", "Commonwealth", "Litex", "IBP Road"}},
			{ID: 3, Name: "Welcome Rotonda to Katipunan", Stops: []string{"Welcome Rotonda", "Espana", "Aurora Blvd", "Katipunan"}},
		},
		Segments: []segments.Entry{
			entry("QC Hall", "EDSA-Kamuning", segments.Range{Min: 4, Max: 6}, segments.Range{Min: 7, Max: 10}, segments.Range{Min: 12, Max: 18}),
			entry("EDSA-Kamuning", "Cubao Terminal", segments.Range{Min: 5, Max: 7}, segments.Range{Min: 8, Max: 12}, segments.Range{Min: 15, Max: 22}),
			entry("QC Hall", "Commonwealth", segments.Range{Min: 6, Max: 8}, segments.Range{Min: 10, Max: 14}, segments.Range{Min: 18, Max: 25}),
			entry("Welcome Rotonda", "Espana", segments.Range{Min: 3, Max: 5}, segments.Range{Min: 5, Max: 8}, segments.Range{Min: 9, Max: 14}),
		},
	}

	// five buses start on successive corridor points
	cum := geo.CumDistances(path)
	for i := 0; i < 5; i++ {
		n.Vehicles = append(n.Vehicles, VehicleSpec{ID: i + 1, RouteID: 1, OffsetKm: cum[i%len(cum)], SpeedFactor: 1})
	}
	return n
}
