package sky

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverageRange(t *testing.T) {
	t.Parallel()

	t.Run("valid input", func(t *testing.T) {
		t.Parallel()
		r, err := CoverageRange(120.5, 30.2, 10.0)
		require.NoError(t, err)
		assert.InDelta(t, 115.5, r.RAMin, 1e-9)
		assert.InDelta(t, 125.5, r.RAMax, 1e-9)
		assert.InDelta(t, 25.2, r.DecMin, 1e-9)
		assert.InDelta(t, 35.2, r.DecMax, 1e-9)
		assert.False(t, r.Wraps())
	})

	t.Run("wraps through zero", func(t *testing.T) {
		t.Parallel()
		r, err := CoverageRange(1, 0, 4)
		require.NoError(t, err)
		assert.InDelta(t, 359, r.RAMin, 1e-9)
		assert.InDelta(t, 3, r.RAMax, 1e-9)
		assert.True(t, r.Wraps())
	})

	t.Run("dec is not wrapped near the pole", func(t *testing.T) {
		t.Parallel()
		r, err := CoverageRange(10, 89, 4)
		require.NoError(t, err)
		assert.InDelta(t, 87, r.DecMin, 1e-9)
		assert.InDelta(t, 91, r.DecMax, 1e-9)
	})
}

func TestCoverageRangeInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ra, dec float64
		fov     float64
		msg     string
	}{
		{"zero fov", 120.5, 30.2, 0, "field of view"},
		{"negative fov", 120.5, 30.2, -10, "field of view"},
		{"nan fov", 120.5, 30.2, math.NaN(), "field of view"},
		{"ra below zero", -10, 30.2, 10, "right ascension"},
		{"ra equal 360", 360, 30.2, 10, "right ascension"},
		{"ra above 360", 370, 30.2, 10, "right ascension"},
		{"dec below -90", 120.5, -100, 10, "declination"},
		{"dec 91", 120.5, 91, 10, "declination"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := CoverageRange(tt.ra, tt.dec, tt.fov)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRegion))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCoverageRangeProperties(t *testing.T) {
	t.Parallel()
	for ra := 0.0; ra < 360; ra += 17.3 {
		for _, dec := range []float64{-90, -45.5, 0, 12.25, 89.9, 90} {
			for _, fov := range []float64{0.01, 1, 4, 33.3, 180, 359} {
				r, err := CoverageRange(ra, dec, fov)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, r.RAMin, 0.0)
				assert.Less(t, r.RAMin, 360.0)
				assert.GreaterOrEqual(t, r.RAMax, 0.0)
				assert.Less(t, r.RAMax, 360.0)
				span := NormalizeRA(r.RAMax - r.RAMin)
				assert.InDelta(t, fov, span, 1e-9, "ra=%v dec=%v fov=%v", ra, dec, fov)
				assert.InDelta(t, fov, r.DecMax-r.DecMin, 1e-12)
			}
		}
	}
}

func TestNormalizeRA(t *testing.T) {
	t.Parallel()
	cases := map[float64]float64{
		0:    0,
		359:  359,
		360:  0,
		-1:   359,
		725:  5,
		-360: 0,
	}
	for in, want := range cases {
		assert.InDelta(t, want, NormalizeRA(in), 1e-12, "in=%v", in)
	}
}

func TestArcminConversions(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, ArcminToDegrees(60), 1e-12)
	assert.InDelta(t, math.Pi, ArcminToRadians(180*60), 1e-12)
}

func TestNewPosition(t *testing.T) {
	t.Parallel()
	p, err := NewPosition(0, -90)
	require.NoError(t, err)
	assert.Equal(t, Position{RA: 0, Dec: -90}, p)

	_, err = NewPosition(360, 0)
	assert.ErrorIs(t, err, ErrInvalidRegion)
	_, err = NewPosition(10, 90.5)
	assert.ErrorIs(t, err, ErrInvalidRegion)
}
