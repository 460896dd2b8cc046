// Package geo holds the distance and smoothing helpers used to turn two
// successive GPS fixes into travelled distance, speed and elevation gain.
package geo

import "math"

const earthRadius = 6371000 // meters

// Point is a WGS84 coordinate with its altitude above sea level.
type Point struct {
	Lat float64 // degrees, [-90..90]
	Lng float64 // degrees, [-180..180]
	Alt float64 // meters
}

// haversineDistance calculates the great-circle distance between two lat/lon points
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLon := (lon2 - lon1) * (math.Pi / 180.0)

	lat1Rad := lat1 * (math.Pi / 180.0)
	lat2Rad := lat2 * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	// Rounding can push a a hair outside [0, 1] for antipodal or identical points.
	a = math.Min(math.Max(a, 0), 1)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

// Distance returns the distance in meters between a and b. Unless
// ignoreAltitude is set, the vertical delta is combined with the horizontal
// great-circle distance.
func Distance(a, b Point, ignoreAltitude bool) float64 {
	horizontal := haversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
	if ignoreAltitude {
		return horizontal
	}
	return math.Hypot(horizontal, b.Alt-a.Alt)
}

// Smooth applies one step of an exponential filter: the result moves from
// prev towards raw by factor (0 keeps prev, 1 takes raw).
func Smooth(prev, raw, factor float64) float64 {
	return prev*(1-factor) + raw*factor
}

// Gain returns the positive part of next-prev.
func Gain(prev, next float64) float64 {
	return math.Max(0, next-prev)
}
