// Package location holds the geospatial half of the client: position events,
// distance math and the broadcast throttle that keeps a journey inside the
// push notification budget.
package location

import (
	"context"
	"math"
)

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Update is one position fix from a Source.
type Update struct {
	Point    Point
	Accuracy float64 // meters, 0 when the source does not report one
}

// Source emits position fixes. Implementations live under external/location.
type Source interface {
	// Start begins emitting fixes on the returned channel. The channel is
	// closed when ctx is cancelled or the source stops.
	Start(ctx context.Context) (<-chan Update, error)
	Stop() error
}

const earthRadiusM = 6371000.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// CloseEnough reports whether p is within tolerance meters of target.
// Arrival is this geometric fact and nothing else; it does not depend on
// whether any broadcast about it succeeds.
func CloseEnough(p, target Point, tolerance float64) bool {
	return Distance(p, target) <= tolerance
}
