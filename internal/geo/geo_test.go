package geo

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePose(t *testing.T) {
	pos, hdg, err := ParsePose("120.5, -40,270")
	require.NoError(t, err)
	assert.Equal(t, r2.Point{X: 120.5, Y: -40}, pos)
	assert.Equal(t, 270.0, hdg)

	pos, hdg, err = ParsePose("1,2")
	require.NoError(t, err)
	assert.Equal(t, r2.Point{X: 1, Y: 2}, pos)
	assert.Equal(t, 0.0, hdg)

	for _, bad := range []string{"", "1", "1,2,3,4", "a,2", "1,NaN", "1,2,Inf"} {
		_, _, err := ParsePose(bad)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, bad)
	}
}

func TestOrigin_ToWGS84(t *testing.T) {
	o := Origin{}

	lon, lat := o.ToWGS84(r2.Point{})
	assert.InDelta(t, 0, lon, 1e-9)
	assert.InDelta(t, 0, lat, 1e-9)

	// one degree of longitude at the equator on the WGS84 ellipsoid
	lon, lat = o.ToWGS84(r2.Point{X: 111319.49079327357})
	assert.InDelta(t, 1, lon, 1e-6)
	assert.InDelta(t, 0, lat, 1e-9)
}

func TestOrigin_ToWGS84_MidLatitude(t *testing.T) {
	o := Origin{Lat: 50.033, Lon: 8.570}

	lon, lat := o.ToWGS84(r2.Point{})
	assert.InDelta(t, 8.570, lon, 1e-9)
	assert.InDelta(t, 50.033, lat, 1e-9)

	// 100 m north is roughly 0.0009 degrees of latitude
	_, lat = o.ToWGS84(r2.Point{Y: 100})
	assert.InDelta(t, 50.033+100/111200.0, lat, 2e-5)

	// east moves longitude only
	lon, lat = o.ToWGS84(r2.Point{X: 100})
	assert.Greater(t, lon, 8.570)
	assert.InDelta(t, 50.033, lat, 1e-9)
}

func TestTrackLineString(t *testing.T) {
	ls, err := TrackLineString([]r2.Point{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 10}})
	require.NoError(t, err)
	assert.InDelta(t, 11, ls.Length(), 1e-12)
	assert.Equal(t, "LINESTRING(0 0,3 4,3 10)", ls.AsText())

	_, err = TrackLineString([]r2.Point{{X: 1, Y: 1}})
	assert.Error(t, err)

	_, err = TrackLineString([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}})
	assert.Error(t, err, "a track that never moves is not a line")
}

func TestTrackWKT(t *testing.T) {
	assert.Equal(t, "LINESTRING(0 0,1 0)", TrackWKT([]r2.Point{{}, {X: 1}}))
	assert.Equal(t, "LINESTRING EMPTY", TrackWKT(nil))
	assert.Equal(t, "LINESTRING EMPTY", TrackWKT([]r2.Point{{X: 2, Y: 3}, {X: 2, Y: 3}}))
}
