// Package geo provides WGS84 distance and bounding-box helpers shared by
// ingest, the spatial index, and the solver.
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/leynos/wildside-engine/pkg/model"
)

// earthRadiusMeters is the mean Earth radius used for the Haversine and
// destination-point formulas below.
const earthRadiusMeters = 6371000.0

// Point converts a model coordinate to an orb.Point (lon, lat order).
func Point(c model.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Distance returns the great-circle distance in meters between two WGS84
// points, via the Haversine formula.
func Distance(p1, p2 orb.Point) float64 {
	lat1 := p1[1] * math.Pi / 180.0
	lat2 := p2[1] * math.Pi / 180.0
	dLat := (p2[1] - p1[1]) * math.Pi / 180.0
	dLon := (p2[0] - p1[0]) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// DestinationPoint returns the point reached from start after travelling
// distMeters along the given bearing in degrees.
func DestinationPoint(start orb.Point, distMeters, bearingDeg float64) orb.Point {
	lat1 := start[1] * math.Pi / 180.0
	lon1 := start[0] * math.Pi / 180.0
	brng := bearingDeg * math.Pi / 180.0

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/earthRadiusMeters) +
		math.Cos(lat1)*math.Sin(distMeters/earthRadiusMeters)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(distMeters/earthRadiusMeters)*math.Cos(lat1),
		math.Cos(distMeters/earthRadiusMeters)-math.Sin(lat1)*math.Sin(lat2),
	)

	return orb.Point{lon2 * 180.0 / math.Pi, lat2 * 180.0 / math.Pi}
}

// SearchBound returns an axis-aligned bounding box around center that is
// large enough to contain anything reachable within maxDuration at
// speedMetersPerSec, padded on all four cardinal bearings. maxRadiusMeters
// caps the computed radius when positive; zero or negative means unset
// (no cap).
func SearchBound(center orb.Point, maxDuration, speedMetersPerSec, maxRadiusMeters float64) orb.Bound {
	radius := maxDuration * speedMetersPerSec
	if maxRadiusMeters > 0 && radius > maxRadiusMeters {
		radius = maxRadiusMeters
	}
	north := DestinationPoint(center, radius, 0)
	east := DestinationPoint(center, radius, 90)
	south := DestinationPoint(center, radius, 180)
	west := DestinationPoint(center, radius, 270)

	b := orb.Bound{Min: center, Max: center}
	for _, p := range []orb.Point{north, east, south, west} {
		b = b.Extend(p)
	}
	return b
}

// Valid reports whether a point lies within WGS84 bounds and is finite.
func Valid(p orb.Point) bool {
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
		return false
	}
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}
