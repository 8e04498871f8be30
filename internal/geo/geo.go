// Package geo provides the coordinate types and great-circle distance
// math shared by the matching and scanning paths.
package geo

import (
	"math"
	"time"
)

// earthRadiusMeters is the mean earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

// Position is a single observer fix from the host's location stream.
// Positions are consumed immediately and never persisted.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// Coordinate is a (longitude, latitude) pair, GeoJSON axis order.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(a, b Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	deltaPhi := radians(b.Lat - a.Lat)
	deltaLambda := radians(b.Lon - a.Lon)

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
