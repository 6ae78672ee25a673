package driving

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/queue"
	"github.com/towsim/pushback/pkg/core"
)

// Follower computes per-tick steering and speed targets along a segment queue.
// It pops segments it has completed and updates lastMisHdg, the heading error
// carried between calls.
type Follower interface {
	Follow(p core.Pose, g core.Geometry, segs *queue.Queue[core.Segment], maxAngVel float64, lastMisHdg *float64, dt float64) (steer, speed float64)
}

// Tracker is a feed-forward plus PD path follower.
type Tracker struct {
	MaxSpeed       float64 // m/s
	MinSpeed       float64 // creep speed floor while a segment is active, m/s
	Decel          float64 // planned braking rate, m/s²
	Tolerance      float64 // remaining distance at which a segment counts as done, m
	HeadingGain    float64 // deg steer per deg heading error
	DampingGain    float64 // deg steer per deg/s heading error rate
	CrossTrackGain float64 // deg steer per metre off path
}

// NewTracker creates a tracker from driving configuration.
func NewTracker(cfg config.DrivingConfig) *Tracker {
	return &Tracker{
		MaxSpeed:       cfg.MaxSpeed,
		MinSpeed:       cfg.MinSpeed,
		Decel:          cfg.Decel,
		Tolerance:      cfg.Tolerance,
		HeadingGain:    cfg.HeadingGain,
		DampingGain:    cfg.DampingGain,
		CrossTrackGain: cfg.CrossTrackGain,
	}
}

// progress describes the vehicle relative to one segment.
type progress struct {
	hdg       float64 // path heading at the closest point
	xtrack    float64 // metres, positive when the vehicle is right of the path
	remaining float64 // metres left on this segment
	steerFF   float64 // steering that holds the segment's curvature
}

// measure locates pos relative to seg.
func measure(seg core.Segment, pos r2.Point, wheelbase float64) progress {
	if seg.Kind == core.SegmentTurn {
		return measureTurn(seg, pos, wheelbase)
	}
	return measureStraight(seg, pos)
}

func measureStraight(seg core.Segment, pos r2.Point) progress {
	dir := core.HdgVector(seg.StartHdg)
	rel := pos.Sub(seg.StartPos)
	along := rel.Dot(dir)
	return progress{
		hdg:       seg.StartHdg,
		xtrack:    rel.Dot(rightOf(seg.StartHdg)),
		remaining: seg.Length - along,
	}
}

func measureTurn(seg core.Segment, pos r2.Point, wheelbase float64) progress {
	rel := pos.Sub(seg.Center)
	radial := rel.Norm()
	bearing := core.VectorHdg(rel)

	var hdg, xtrack, steer float64
	if seg.Right {
		// clockwise around the centre: the centre is on the right
		hdg = core.NormalizeHdg(bearing + 90)
		xtrack = seg.Radius - radial
		steer = core.SteerForRadius(seg.Radius, wheelbase)
	} else {
		hdg = core.NormalizeHdg(bearing - 90)
		xtrack = radial - seg.Radius
		steer = -core.SteerForRadius(seg.Radius, wheelbase)
	}

	total := sweep(seg.StartHdg, seg.EndHdg, seg.Right)
	left := sweep(hdg, seg.EndHdg, seg.Right)
	// past the end the remaining sweep wraps to nearly 360
	if left > total+(360-total)/2 {
		left = 0
	}
	left = math.Min(left, total)

	return progress{
		hdg:       hdg,
		xtrack:    xtrack,
		remaining: seg.Radius * core.DegToRad(left),
		steerFF:   steer,
	}
}

// Follow implements Follower.
func (t *Tracker) Follow(p core.Pose, g core.Geometry, segs *queue.Queue[core.Segment], maxAngVel float64, lastMisHdg *float64, dt float64) (steer, speed float64) {
	var cur progress
	for {
		seg := segs.Front()
		if seg == nil {
			*lastMisHdg = 0
			return 0, 0
		}
		cur = measure(*seg, p.Pos, g.Wheelbase)
		if cur.remaining > t.Tolerance {
			break
		}
		segs.PopFront()
		*lastMisHdg = 0
	}

	misHdg := core.RelHdg(p.Hdg, cur.hdg)
	var rate float64
	if dt > 0 {
		rate = (misHdg - *lastMisHdg) / dt
	}
	*lastMisHdg = misHdg

	steer = cur.steerFF + t.HeadingGain*misHdg + t.DampingGain*rate - t.CrossTrackGain*cur.xtrack

	// remaining path including everything queued behind the active segment
	remaining := cur.remaining
	first := true
	segs.Each(func(s core.Segment) bool {
		if first {
			first = false
			return true
		}
		remaining += s.Length
		return true
	})

	speed = t.MaxSpeed
	omega := core.DegToRad(maxAngVel)
	if seg := segs.Front(); seg.Kind == core.SegmentTurn && omega > 0 {
		speed = math.Min(speed, omega*seg.Radius)
	}
	if t.Decel > 0 {
		speed = math.Min(speed, math.Sqrt(2*t.Decel*math.Max(remaining, 0)))
	}
	speed = math.Max(speed, t.MinSpeed)

	limit := g.MaxSteer
	if omega > 0 && p.Spd != 0 {
		// keep |spd / radius| <= maxAngVel
		limit = math.Min(limit, core.SteerForRadius(math.Abs(p.Spd)/omega, g.Wheelbase))
	}
	limit = math.Max(limit, math.Abs(cur.steerFF))
	steer = math.Max(-limit, math.Min(limit, steer))

	return steer, speed
}
