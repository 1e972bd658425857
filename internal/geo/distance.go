package geo

import (
	"fmt"
	"math"
	"time"
)

const (
	// FeetPerMile is the conversion factor from feet to miles.
	FeetPerMile = 5280.0
	// EarthRadiusMiles is Earth's radius in miles for Haversine calculation.
	EarthRadiusMiles = 3958.7613
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Validate checks that p lies within the valid coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lng)
	}
	return nil
}

// FeetToMiles converts feet to miles.
func FeetToMiles(f float64) float64 {
	return f / FeetPerMile
}

// HaversineMiles calculates the great-circle distance between two points
// on Earth in miles using the Haversine formula.
func HaversineMiles(a, b Point) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMiles * c
}

// PathMiles sums the leg distances along the given points.
func PathMiles(points ...Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineMiles(points[i-1], points[i])
	}
	return total
}

// FlightDuration estimates how long a drone cruising at speedMPH needs to
// fly the path through points. A non-positive speed yields zero.
func FlightDuration(speedMPH float64, points ...Point) time.Duration {
	if speedMPH <= 0 {
		return 0
	}
	hours := PathMiles(points...) / speedMPH
	return time.Duration(hours * float64(time.Hour))
}
