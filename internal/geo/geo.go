// Package geo converts the simulator's local east/north metres to geographic
// coordinates and builds trace geometries for export.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePose parses "x,y" or "x,y,hdg" into a position and heading in degrees.
func ParsePose(s string) (r2.Point, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return r2.Point{}, 0, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return r2.Point{}, 0, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
		}
		vals[i] = v
	}
	var hdg float64
	if len(vals) == 3 {
		hdg = vals[2]
	}
	return r2.Point{X: vals[0], Y: vals[1]}, hdg, nil
}

// Origin anchors the local frame (x east, y north, metres) at a WGS84 point.
// The conversion goes through Web Mercator (EPSG:3857) with the scale factor
// of the origin latitude, which is accurate over apron-sized areas.
type Origin struct {
	Lat float64
	Lon float64
}

var (
	toMercator = wgs84.EPSG().Transform(4326, 3857)
	toLonLat   = wgs84.EPSG().Transform(3857, 4326)
)

// ToWGS84 returns the longitude and latitude of a local point.
func (o Origin) ToWGS84(p r2.Point) (lon, lat float64) {
	ox, oy, _ := toMercator(o.Lon, o.Lat, 0)
	scale := 1 / math.Cos(o.Lat*math.Pi/180)
	lon, lat, _ = toLonLat(ox+p.X*scale, oy+p.Y*scale, 0)
	return lon, lat
}

// TrackLineString builds an XY line string from a sequence of local points.
func TrackLineString(points []r2.Point) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(points))
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq)
}

// TrackWKT renders a track as WKT. Tracks with fewer than two distinct
// points give an empty LINESTRING.
func TrackWKT(points []r2.Point) string {
	ls, err := TrackLineString(points)
	if err != nil {
		return geom.LineString{}.AsText()
	}
	return ls.AsText()
}
