package core

import (
	"math"

	"github.com/golang/geo/r2"
)

// DegToRad converts degrees to radians.
func DegToRad(d float64) float64 { return d * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(r float64) float64 { return r * 180 / math.Pi }

// NormalizeHdg wraps a heading into [0,360).
func NormalizeHdg(hdg float64) float64 {
	hdg = math.Mod(hdg, 360)
	if hdg < 0 {
		hdg += 360
	}
	// math.Mod of a tiny negative value can round back up to 360
	if hdg >= 360 {
		hdg = 0
	}
	return hdg
}

// RelHdg returns the signed shortest turn from one heading to another, in
// (-180,180]. Positive means clockwise.
func RelHdg(from, to float64) float64 {
	d := NormalizeHdg(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

// Rotate turns v clockwise by deg degrees.
func Rotate(v r2.Point, deg float64) r2.Point {
	s, c := math.Sincos(DegToRad(deg))
	return r2.Point{X: v.X*c + v.Y*s, Y: -v.X*s + v.Y*c}
}

// HdgVector is the unit vector pointing along a compass heading.
func HdgVector(hdg float64) r2.Point {
	s, c := math.Sincos(DegToRad(hdg))
	return r2.Point{X: s, Y: c}
}

// VectorHdg is the compass heading of v. The zero vector maps to 0.
func VectorHdg(v r2.Point) float64 {
	if v.X == 0 && v.Y == 0 {
		return 0
	}
	return NormalizeHdg(RadToDeg(math.Atan2(v.X, v.Y)))
}

// TurnRadius is the bicycle-model radius for a steering angle measured from
// straight ahead. The sign follows the steering angle; straight ahead gives a
// very large (not infinite) radius.
func TurnRadius(steer, wheelbase float64) float64 {
	return math.Tan(DegToRad(90-steer)) * wheelbase
}

// SteerForRadius inverts TurnRadius for a positive radius.
func SteerForRadius(radius, wheelbase float64) float64 {
	return 90 - RadToDeg(math.Atan(radius/wheelbase))
}
