package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	london := Point{Lat: 51.5074, Lng: -0.1278}

	tests := []struct {
		name           string
		a, b           Point
		ignoreAltitude bool
		want           float64
		delta          float64
	}{
		{
			name:  "same point",
			a:     paris,
			b:     paris,
			want:  0,
			delta: 1e-9,
		},
		{
			name:  "paris to london",
			a:     paris,
			b:     london,
			want:  343_500,
			delta: 1_000,
		},
		{
			name:  "one degree of latitude",
			a:     Point{Lat: 0, Lng: 0},
			b:     Point{Lat: 1, Lng: 0},
			want:  111_195,
			delta: 5,
		},
		{
			name:  "vertical only",
			a:     Point{Lat: 50, Lng: 4, Alt: 100},
			b:     Point{Lat: 50, Lng: 4, Alt: 250},
			want:  150,
			delta: 1e-6,
		},
		{
			name:           "vertical only ignoring altitude",
			a:              Point{Lat: 50, Lng: 4, Alt: 100},
			b:              Point{Lat: 50, Lng: 4, Alt: 250},
			ignoreAltitude: true,
			want:           0,
			delta:          1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b, tt.ignoreAltitude)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func TestDistanceCombinesHorizontalAndVertical(t *testing.T) {
	a := Point{Lat: 50.0, Lng: 4.0, Alt: 0}
	b := Point{Lat: 50.001, Lng: 4.0, Alt: 30}

	horizontal := Distance(a, b, true)
	full := Distance(a, b, false)

	assert.InDelta(t, math.Sqrt(horizontal*horizontal+30*30), full, 1e-6)
	assert.Greater(t, full, horizontal)
}

func TestDistanceIsSymmetricAndNeverNaN(t *testing.T) {
	a := Point{Lat: 10, Lng: 20, Alt: 5}
	antipode := Point{Lat: -10, Lng: -160, Alt: 5}

	d := Distance(a, antipode, false)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*earthRadius, d, 1)
	assert.InDelta(t, Distance(antipode, a, false), d, 1e-6)
}

func TestSmooth(t *testing.T) {
	assert.InDelta(t, 120.0, Smooth(100, 200, 0.2), 1e-9)
	assert.InDelta(t, 100.0, Smooth(100, 200, 0), 1e-9)
	assert.InDelta(t, 200.0, Smooth(100, 200, 1), 1e-9)
}

func TestGain(t *testing.T) {
	assert.Equal(t, 5.0, Gain(10, 15))
	assert.Equal(t, 0.0, Gain(15, 10))
	assert.Equal(t, 0.0, Gain(10, 10))
}
