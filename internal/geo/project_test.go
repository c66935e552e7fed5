package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromLonLat_CentralMeridian(t *testing.T) {
	p := FromLonLat(-3, 0)
	assert.InDelta(t, 500000.0, p.X, 1e-6)
	assert.InDelta(t, 0.0, p.Y, 1e-6)

	p = FromLonLat(-3, 37)
	assert.InDelta(t, 500000.0, p.X, 1e-6)
	assert.Greater(t, p.Y, 4090000.0)
	assert.Less(t, p.Y, 4100000.0)
}

func TestFromLonLat_WestOfMeridian(t *testing.T) {
	// Sevilla sits well west of the zone 30 meridian.
	p := FromLonLat(-5.99, 37.39)
	assert.Less(t, p.X, 300000.0)
	assert.Greater(t, p.X, 200000.0)
	assert.Greater(t, p.Y, 4100000.0)
	assert.Less(t, p.Y, 4160000.0)
}

func TestFromLonLat_Symmetric(t *testing.T) {
	east := FromLonLat(-2, 37)
	west := FromLonLat(-4, 37)
	assert.InDelta(t, east.X-500000, 500000-west.X, 1e-6)
	assert.InDelta(t, east.Y, west.Y, 1e-6)
}
