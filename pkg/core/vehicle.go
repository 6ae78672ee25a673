package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ErrInvalidGeometry is returned when vehicle shape parameters are out of range.
var ErrInvalidGeometry = errors.New("invalid vehicle geometry")

// Geometry holds the static shape of a vehicle as used by the planner and the
// motion integrator.
type Geometry struct {
	Wheelbase float64 // front-to-rear axle distance, metres
	MaxSteer  float64 // maximum steering angle, degrees
}

// Validate checks wheelbase > 0 and 0 < MaxSteer < 90.
func (g Geometry) Validate() error {
	if !(g.Wheelbase > 0) {
		return fmt.Errorf("%w: wheelbase %v must be positive", ErrInvalidGeometry, g.Wheelbase)
	}
	if !(g.MaxSteer > 0 && g.MaxSteer < 90) {
		return fmt.Errorf("%w: max steer %v must be within (0, 90)", ErrInvalidGeometry, g.MaxSteer)
	}
	return nil
}

// MinTurnRadius is the turn radius at full steering lock.
func (g Geometry) MinTurnRadius() float64 {
	return TurnRadius(g.MaxSteer, g.Wheelbase)
}

// Pose is the mutable ground-plane state of a vehicle.
// Hdg is in degrees, compass convention, normalized to [0,360).
type Pose struct {
	Pos r2.Point
	Hdg float64
	Spd float64 // signed, forward positive, m/s
}

// RenderPose is the terrain-aligned transform handed to the renderer.
// Pos is east/north/up.
type RenderPose struct {
	Pos   r3.Vector
	Hdg   float64
	Pitch float64
	Roll  float64
}

// TruckState represents truck state at a point in time.
type TruckState struct {
	SessionID    string
	Time         time.Time
	CaptureFrame uint
	Position     r2.Point
	Heading      float64
	Speed        float64
	Steer        float64
	Segments     int
}
