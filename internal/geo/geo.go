package geo

import (
	"math"
)

// EarthRadiusKm is the mean Earth radius used for all distance computations.
const EarthRadiusKm = 6371.0

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p lies within the WGS-84 coordinate ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// DistanceKm returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair above 1 for antipodal points
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BearingDeg returns the initial bearing from a to b in degrees [0,360).
func BearingDeg(a, b Point) float64 {
	dLng := toRad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(toRad(b.Lat))
	x := math.Cos(toRad(a.Lat))*math.Sin(toRad(b.Lat)) - math.Sin(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Cos(dLng)
	brng := math.Atan2(y, x) * 180 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// CumDistances returns the cumulative distance in km from the first point of
// path to every point of path.
func CumDistances(path []Point) []float64 {
	n := len(path)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	for i := 1; i < n; i++ {
		cum[i] = cum[i-1] + DistanceKm(path[i-1], path[i])
	}
	return cum
}

// Interpolate returns the point at distance km along path, together with the
// bearing of the segment it falls on. cum must come from CumDistances(path).
// Distances outside the path are clamped to its ends.
func Interpolate(path []Point, cum []float64, km float64) (Point, float64) {
	n := len(path)
	if n == 0 {
		return Point{}, 0
	}
	if n == 1 {
		return path[0], 0
	}
	total := cum[n-1]
	if total == 0 || km <= 0 {
		return path[0], BearingDeg(path[0], path[1])
	}
	if km >= total {
		return path[n-1], BearingDeg(path[n-2], path[n-1])
	}
	i := 1
	for i < n && cum[i] < km {
		i++
	}
	p0, p1 := path[i-1], path[i]
	d0, d1 := cum[i-1], cum[i]
	if d1 == d0 {
		return p0, BearingDeg(p0, p1)
	}
	frac := (km - d0) / (d1 - d0)
	return Point{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*frac,
		Lng: p0.Lng + (p1.Lng-p0.Lng)*frac,
	}, BearingDeg(p0, p1)
}
