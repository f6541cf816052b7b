package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/network"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/traffic"
)

func TestAssemble(t *testing.T) {
	routes := []routeRow{{ID: 1, Name: "QC Hall to Cubao"}, {ID: 2, Name: "Loop"}}
	stops := []stopRow{
		{RouteID: 1, Sequence: 3, Name: "Cubao Terminal"},
		{RouteID: 1, Sequence: 1, Name: "QC Hall"},
		{RouteID: 2, Sequence: 1, Name: "North"},
		{RouteID: 1, Sequence: 2, Name: "EDSA-Kamuning"},
	}
	paths := []pathRow{
		{RouteID: 1, Sequence: 2, Lat: 14.69, Lng: 121.04},
		{RouteID: 1, Sequence: 1, Lat: 14.70, Lng: 121.03},
	}
	segs := []segmentRow{
		{From: "QC Hall", To: "EDSA-Kamuning", Tier: "light", Min: 4, Max: 6},
		{From: "QC Hall", To: "EDSA-Kamuning", Tier: "moderate", Min: 7, Max: 10},
		{From: "QC Hall", To: "EDSA-Kamuning", Tier: "HEAVY", Min: 12, Max: 18},
	}
	vehicles := []vehicleRow{{ID: 4, RouteID: 1, OffsetKm: 0.5, SpeedFactor: 1}}

	n, err := assemble(routes, stops, paths, segs, vehicles)
	require.NoError(t, err)

	require.Len(t, n.Routes, 2)
	assert.Equal(t, []string{"QC Hall", "EDSA-Kamuning", "Cubao Terminal"}, n.Routes[0].Stops)
	assert.Equal(t, []geo.Point{{Lat: 14.70, Lng: 121.03}, {Lat: 14.69, Lng: 121.04}}, n.Routes[0].Path)
	assert.Equal(t, []string{"North"}, n.Routes[1].Stops)
	assert.Empty(t, n.Routes[1].Path)

	table, err := n.Table()
	require.NoError(t, err)
	assert.Equal(t, segments.Range{Min: 12, Max: 18}, table.Lookup("QC Hall", "EDSA-Kamuning", traffic.Heavy))
	assert.Equal(t, []network.VehicleSpec{{ID: 4, RouteID: 1, OffsetKm: 0.5, SpeedFactor: 1}}, n.Vehicles)
}

func TestAssembleRejects(t *testing.T) {
	routes := []routeRow{{ID: 1, Name: "A"}}
	full := func(tier string) []segmentRow {
		return []segmentRow{
			{From: "X", To: "Y", Tier: "light", Min: 1, Max: 2},
			{From: "X", To: "Y", Tier: "moderate", Min: 1, Max: 2},
			{From: "X", To: "Y", Tier: tier, Min: 1, Max: 2},
		}
	}

	tests := []struct {
		name  string
		stops []stopRow
		paths []pathRow
		segs  []segmentRow
	}{
		{name: "stop on unknown route", stops: []stopRow{{RouteID: 9, Sequence: 1, Name: "X"}}},
		{name: "path on unknown route", paths: []pathRow{{RouteID: 9, Sequence: 1}}},
		{name: "unknown tier", segs: full("gridlock")},
		{name: "tier listed twice", segs: full("light")},
		{name: "missing tier", segs: full("light")[:1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assemble(routes, tt.stops, tt.paths, tt.segs, nil)
			assert.ErrorIs(t, err, network.ErrInvalid)
		})
	}
}
