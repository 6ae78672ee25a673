package core

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeHdg(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{725, 5},
		{-90, 270},
		{-720, 0},
		{-1e-15, 0},
	}
	for _, tt := range tests {
		got := NormalizeHdg(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "NormalizeHdg(%v)", tt.in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 360.0)
	}
}

func TestRelHdg(t *testing.T) {
	assert.Equal(t, 10.0, RelHdg(350, 0))
	assert.Equal(t, -10.0, RelHdg(0, 350))
	assert.Equal(t, 180.0, RelHdg(0, 180))
	assert.Equal(t, 180.0, RelHdg(180, 0))
	assert.Equal(t, 0.0, RelHdg(45, 405))
}

func TestRotate(t *testing.T) {
	// clockwise: east rotated by 90 points south
	v := Rotate(r2.Point{X: 1}, 90)
	assert.InDelta(t, 0, v.X, 1e-12)
	assert.InDelta(t, -1, v.Y, 1e-12)

	// north rotated by a heading is that heading's direction
	for _, hdg := range []float64{0, 30, 135, 270} {
		got := Rotate(r2.Point{Y: 1}, hdg)
		want := HdgVector(hdg)
		assert.InDelta(t, want.X, got.X, 1e-12)
		assert.InDelta(t, want.Y, got.Y, 1e-12)
	}
}

func TestVectorHdg(t *testing.T) {
	assert.InDelta(t, 0, VectorHdg(r2.Point{Y: 2}), 1e-12)
	assert.InDelta(t, 90, VectorHdg(r2.Point{X: 3}), 1e-12)
	assert.InDelta(t, 180, VectorHdg(r2.Point{Y: -1}), 1e-12)
	assert.InDelta(t, 270, VectorHdg(r2.Point{X: -1}), 1e-12)
	assert.Equal(t, 0.0, VectorHdg(r2.Point{}))
	assert.InDelta(t, 210, VectorHdg(HdgVector(210)), 1e-9)
}

func TestTurnRadius(t *testing.T) {
	assert.InDelta(t, 5, TurnRadius(45, 5), 1e-12)
	assert.InDelta(t, -5, TurnRadius(-45, 5), 1e-12)
	assert.Greater(t, math.Abs(TurnRadius(0, 5)), 1e6, "straight ahead is beyond any usable radius")
	assert.InDelta(t, 5*math.Tan(DegToRad(30)), TurnRadius(60, 5), 1e-12)

	for _, steer := range []float64{5, 20, 45, 60} {
		assert.InDelta(t, steer, SteerForRadius(TurnRadius(steer, 5), 5), 1e-9)
	}
}

func TestGeometry(t *testing.T) {
	g := Geometry{Wheelbase: 5, MaxSteer: 60}
	assert.NoError(t, g.Validate())
	assert.InDelta(t, 2.886751, g.MinTurnRadius(), 1e-6)

	for _, bad := range []Geometry{
		{Wheelbase: 0, MaxSteer: 60},
		{Wheelbase: -1, MaxSteer: 60},
		{Wheelbase: math.NaN(), MaxSteer: 60},
		{Wheelbase: 5, MaxSteer: 0},
		{Wheelbase: 5, MaxSteer: 90},
		{Wheelbase: 5, MaxSteer: math.NaN()},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidGeometry, "%+v", bad)
	}
}

func TestSegmentKindString(t *testing.T) {
	assert.Equal(t, "straight", SegmentStraight.String())
	assert.Equal(t, "turn", SegmentTurn.String())
}
