// Package driving plans segment paths for a ground vehicle and follows them.
//
// Headings are compass degrees (0 = +Y, clockwise positive). A right turn
// has its centre at pos + R*right(hdg), where right(hdg) = (cos hdg, -sin hdg).
package driving

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/pkg/core"
)

// ErrNoPath is returned when no feasible path to the destination exists.
var ErrNoPath = errors.New("no feasible path")

// Planner produces the segments that take a vehicle from one pose to another.
type Planner interface {
	Plan(g core.Geometry, from r2.Point, fromHdg float64, to r2.Point, toHdg float64) ([]core.Segment, error)
}

const (
	// pieces shorter than this are dropped
	minPieceLength = 1e-6
	// start and end poses closer than this need no path
	samePoseDist = 1e-3
	samePoseHdg  = 1e-3
)

// CSCPlanner finds the shortest forward turn-straight-turn path.
type CSCPlanner struct {
	// TurnRadiusFactor scales the geometric minimum turn radius so the
	// follower keeps steering authority for corrections. Values < 1 are raised to 1.
	TurnRadiusFactor float64
	// MaxPathLength rejects destinations whose shortest path is longer. 0 disables the check.
	MaxPathLength float64
}

// NewCSCPlanner creates a planner from driving configuration.
func NewCSCPlanner(cfg config.DrivingConfig) *CSCPlanner {
	return &CSCPlanner{
		TurnRadiusFactor: cfg.TurnRadiusFactor,
		MaxPathLength:    cfg.MaxPathLength,
	}
}

// TurnRadius is the radius the planner uses for arcs.
func (p *CSCPlanner) TurnRadius(g core.Geometry) float64 {
	return g.MinTurnRadius() * math.Max(1, p.TurnRadiusFactor)
}

type word struct {
	right1, right2 bool
}

var words = []word{
	{right1: true, right2: true},   // RSR
	{right1: false, right2: false}, // LSL
	{right1: true, right2: false},  // RSL
	{right1: false, right2: true},  // LSR
}

type candidate struct {
	segs   []core.Segment
	length float64
}

// Plan implements Planner.
func (p *CSCPlanner) Plan(g core.Geometry, from r2.Point, fromHdg float64, to r2.Point, toHdg float64) ([]core.Segment, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPath, err)
	}
	for _, v := range []float64{from.X, from.Y, fromHdg, to.X, to.Y, toHdg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite pose", ErrNoPath)
		}
	}
	fromHdg = core.NormalizeHdg(fromHdg)
	toHdg = core.NormalizeHdg(toHdg)

	if to.Sub(from).Norm() < samePoseDist && math.Abs(core.RelHdg(fromHdg, toHdg)) < samePoseHdg {
		return nil, nil
	}

	radius := p.TurnRadius(g)
	var best *candidate
	for _, w := range words {
		c, ok := csc(w, radius, from, fromHdg, to, toHdg)
		if !ok {
			continue
		}
		if best == nil || c.length < best.length {
			best = &c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no tangent between turn circles", ErrNoPath)
	}
	if p.MaxPathLength > 0 && best.length > p.MaxPathLength {
		return nil, fmt.Errorf("%w: shortest path %.1f m exceeds limit %.1f m", ErrNoPath, best.length, p.MaxPathLength)
	}
	return best.segs, nil
}

// rightOf is the unit vector pointing to the right of a heading.
func rightOf(hdg float64) r2.Point {
	return core.Rotate(r2.Point{X: 1, Y: 0}, hdg)
}

// side is +1 for a left turn, -1 for a right turn: the tangent point of a
// turn circle is centre + side*R*right(hdg).
func side(right bool) float64 {
	if right {
		return -1
	}
	return 1
}

// TurnCenter returns the centre of the turn circle through pos.
func TurnCenter(pos r2.Point, hdg, radius float64, right bool) r2.Point {
	return pos.Sub(rightOf(hdg).Mul(side(right) * radius))
}

// sweep is the heading change in degrees, in [0,360), turning from h0 to h1.
func sweep(h0, h1 float64, right bool) float64 {
	if right {
		return core.NormalizeHdg(h1 - h0)
	}
	return core.NormalizeHdg(h0 - h1)
}

func csc(w word, radius float64, from r2.Point, fromHdg float64, to r2.Point, toHdg float64) (candidate, bool) {
	c1 := TurnCenter(from, fromHdg, radius, w.right1)
	c2 := TurnCenter(to, toHdg, radius, w.right2)
	s1, s2 := side(w.right1), side(w.right2)

	d := c2.Sub(c1)
	dist := d.Norm()
	k := (s1 - s2) * radius

	var straight, hs float64
	if k == 0 {
		straight = dist
		hs = core.VectorHdg(d)
	} else {
		if dist < math.Abs(k) {
			return candidate{}, false
		}
		straight = math.Sqrt(dist*dist - k*k)
		hs = core.NormalizeHdg(core.VectorHdg(d) - core.RadToDeg(math.Atan2(k, straight)))
	}

	t1 := c1.Add(rightOf(hs).Mul(s1 * radius))
	t2 := c2.Add(rightOf(hs).Mul(s2 * radius))

	sw1 := sweep(fromHdg, hs, w.right1)
	sw2 := sweep(hs, toHdg, w.right2)
	arc1 := radius * core.DegToRad(sw1)
	arc2 := radius * core.DegToRad(sw2)

	var segs []core.Segment
	if arc1 > minPieceLength {
		segs = append(segs, core.Segment{
			Kind:     core.SegmentTurn,
			StartPos: from, StartHdg: fromHdg,
			EndPos: t1, EndHdg: hs,
			Length: arc1,
			Center: c1, Radius: radius, Right: w.right1,
		})
	}
	if straight > minPieceLength {
		segs = append(segs, core.Segment{
			Kind:     core.SegmentStraight,
			StartPos: t1, StartHdg: hs,
			EndPos: t2, EndHdg: hs,
			Length: straight,
		})
	}
	if arc2 > minPieceLength {
		segs = append(segs, core.Segment{
			Kind:     core.SegmentTurn,
			StartPos: t2, StartHdg: hs,
			EndPos: to, EndHdg: toHdg,
			Length: arc2,
			Center: c2, Radius: radius, Right: w.right2,
		})
	}
	if len(segs) == 0 {
		return candidate{}, false
	}
	// snap the final piece onto the requested pose exactly
	last := &segs[len(segs)-1]
	last.EndPos = to
	last.EndHdg = toHdg

	return candidate{segs: segs, length: arc1 + straight + arc2}, true
}
