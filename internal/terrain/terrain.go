// Package terrain provides ground height and surface normal queries.
//
// All probes work in an east/north/up frame: X east, Y north, Z up.
package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/towsim/pushback/internal/config"
)

// ErrNoHit is returned when a vertical probe does not hit terrain.
var ErrNoHit = errors.New("terrain probe missed")

// Up is the flat-ground surface normal.
var Up = r3.Vector{X: 0, Y: 0, Z: 1}

// Hit is the result of a vertical probe.
type Hit struct {
	Height float64
	Normal r3.Vector // unit length, Z > 0
}

// Prober answers vertical terrain probes at a horizontal position.
type Prober interface {
	Probe(x, y float64) (Hit, error)
}

// Flat is level ground at a fixed elevation.
type Flat struct {
	Elevation float64
}

// Probe implements Prober.
func (f Flat) Probe(x, y float64) (Hit, error) {
	if !finite(x, y) {
		return Hit{}, fmt.Errorf("%w: non-finite position (%v, %v)", ErrNoHit, x, y)
	}
	return Hit{Height: f.Elevation, Normal: Up}, nil
}

// Plane is a uniformly sloped surface z = Elevation + GradX*x + GradY*y.
type Plane struct {
	Elevation float64
	GradX     float64
	GradY     float64
}

// Probe implements Prober.
func (p Plane) Probe(x, y float64) (Hit, error) {
	if !finite(x, y) {
		return Hit{}, fmt.Errorf("%w: non-finite position (%v, %v)", ErrNoHit, x, y)
	}
	n := r3.Vector{X: -p.GradX, Y: -p.GradY, Z: 1}.Normalize()
	return Hit{
		Height: p.Elevation + p.GradX*x + p.GradY*y,
		Normal: n,
	}, nil
}

// Bounded restricts another prober to a rectangular area; probes outside miss.
type Bounded struct {
	Prober
	Area r2.Rect
}

// Probe implements Prober.
func (b Bounded) Probe(x, y float64) (Hit, error) {
	if !b.Area.ContainsPoint(r2.Point{X: x, Y: y}) {
		return Hit{}, fmt.Errorf("%w: (%.2f, %.2f) outside sampled area", ErrNoHit, x, y)
	}
	return b.Prober.Probe(x, y)
}

// FromConfig builds a prober from configuration.
func FromConfig(cfg config.TerrainConfig) (Prober, error) {
	var p Prober
	switch cfg.Type {
	case "", "flat":
		p = Flat{Elevation: cfg.Elevation}
	case "plane":
		p = Plane{Elevation: cfg.Elevation, GradX: cfg.GradX, GradY: cfg.GradY}
	default:
		return nil, fmt.Errorf("unknown terrain type: %s", cfg.Type)
	}
	if cfg.Extent > 0 {
		e := cfg.Extent
		p = Bounded{Prober: p, Area: r2.RectFromPoints(r2.Point{X: -e, Y: -e}, r2.Point{X: e, Y: e})}
	}
	return p, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
