package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeetToMiles(t *testing.T) {
	assert.Equal(t, 1.0, FeetToMiles(5280))
}

func TestHaversineMiles_ZeroDistance(t *testing.T) {
	d := HaversineMiles(Point{10, 20}, Point{10, 20})
	assert.InDelta(t, 0, d, 1e-9)
}

func TestHaversineMiles_OneDegreeLatitude(t *testing.T) {
	// One degree of latitude is roughly 69 miles.
	d := HaversineMiles(Point{0, 0}, Point{1, 0})
	assert.InDelta(t, 69.09, d, 0.1)
}

func TestPoint_Validate(t *testing.T) {
	assert.NoError(t, Point{45, 90}.Validate())
	assert.Error(t, Point{91, 0}.Validate())
	assert.Error(t, Point{0, -181}.Validate())
}

func TestFlightDuration(t *testing.T) {
	assert.Zero(t, FlightDuration(0, Point{0, 0}, Point{1, 0}))
	d := FlightDuration(69.09, Point{0, 0}, Point{1, 0})
	assert.InDelta(t, float64(time.Hour), float64(d), float64(10*time.Second))
	// Two legs add up.
	two := FlightDuration(30, Point{0, 0}, Point{0.5, 0}, Point{1, 0})
	one := FlightDuration(30, Point{0, 0}, Point{1, 0})
	assert.InDelta(t, float64(one), float64(two), float64(time.Second))
}
