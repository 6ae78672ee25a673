// Package truck implements the pushback tow truck: a segment queue fed by a
// path planner, a rate-limited bicycle-model integrator driven by a path
// follower, and terrain-aligned presentation.
//
// A Truck is not safe for concurrent use. It is owned by a single tick loop.
package truck

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/towsim/pushback/internal/asset"
	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/driving"
	"github.com/towsim/pushback/internal/queue"
	"github.com/towsim/pushback/internal/terrain"
	"github.com/towsim/pushback/pkg/core"
)

var (
	// ErrAssetLoad is returned by New when the visual asset cannot be loaded.
	ErrAssetLoad = errors.New("truck asset load failed")
	// ErrDestroyed is returned by operations on a destroyed truck.
	ErrDestroyed = errors.New("truck destroyed")
	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("missing truck dependency")
)

// Turning radii beyond this are treated as straight-line motion.
const maxRadius = 1e6

// Params are the static truck constants.
type Params struct {
	Geometry  core.Geometry
	Accel     float64 // max speed change, m/s²
	SteerRate float64 // max steering change, deg/s
	MaxAngVel float64 // heading rate bound handed to the follower, deg/s
	Height    float64 // render offset along the terrain normal, m
	AssetPath string
}

// DefaultParams returns the stock pushback truck.
func DefaultParams() Params {
	return Params{
		Geometry:  core.Geometry{Wheelbase: 5, MaxSteer: 60},
		Accel:     0.5,
		SteerRate: 40,
		MaxAngVel: 20,
		Height:    0,
		AssetPath: "objects/White.obj",
	}
}

// ParamsFromConfig maps the truck section of the configuration.
func ParamsFromConfig(cfg config.TruckConfig) Params {
	return Params{
		Geometry:  core.Geometry{Wheelbase: cfg.Wheelbase, MaxSteer: cfg.MaxSteer},
		Accel:     cfg.Accel,
		SteerRate: cfg.SteerRate,
		MaxAngVel: cfg.MaxAngVel,
		Height:    cfg.Height,
		AssetPath: cfg.Asset,
	}
}

func (p Params) validate() error {
	if err := p.Geometry.Validate(); err != nil {
		return err
	}
	if !(p.Accel > 0) || math.IsInf(p.Accel, 0) {
		return fmt.Errorf("acceleration %v must be positive", p.Accel)
	}
	if !(p.SteerRate > 0) || math.IsInf(p.SteerRate, 0) {
		return fmt.Errorf("steering rate %v must be positive", p.SteerRate)
	}
	return nil
}

// Dependencies are the collaborators a truck calls into.
type Dependencies struct {
	Planner  driving.Planner
	Follower driving.Follower
	Terrain  terrain.Prober
	Assets   asset.Service
	Logger   *slog.Logger
}

// Truck is a single pushback vehicle.
type Truck struct {
	id     uuid.UUID
	params Params
	deps   Dependencies
	log    *slog.Logger

	pose       core.Pose
	curSteer   float64
	lastMisHdg float64
	segs       *queue.Queue[core.Segment]
	handle     asset.Handle

	destroyed bool
}

// New creates a truck at pos facing hdg and loads its visual asset.
func New(pos r2.Point, hdg float64, params Params, deps Dependencies) (*Truck, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("truck params: %w", err)
	}
	switch {
	case deps.Planner == nil:
		return nil, fmt.Errorf("%w: planner", ErrMissingDependency)
	case deps.Follower == nil:
		return nil, fmt.Errorf("%w: follower", ErrMissingDependency)
	case deps.Terrain == nil:
		return nil, fmt.Errorf("%w: terrain", ErrMissingDependency)
	case deps.Assets == nil:
		return nil, fmt.Errorf("%w: assets", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	handle, err := deps.Assets.Load(params.AssetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetLoad, params.AssetPath, err)
	}

	id := uuid.New()
	t := &Truck{
		id:     id,
		params: params,
		deps:   deps,
		log:    deps.Logger.With("truck", id.String()),
		pose:   core.Pose{Pos: pos, Hdg: core.NormalizeHdg(hdg)},
		segs:   queue.New[core.Segment](),
		handle: handle,
	}
	t.log.Debug("truck created", "x", pos.X, "y", pos.Y, "hdg", t.pose.Hdg, "asset", params.AssetPath)
	return t, nil
}

// Destroy releases the asset and every queued segment. A second call returns
// ErrDestroyed.
func (t *Truck) Destroy() error {
	if t.destroyed {
		return ErrDestroyed
	}

	var err error
	if uerr := t.deps.Assets.Unload(t.handle); uerr != nil {
		err = fmt.Errorf("unload asset: %w", uerr)
	}
	freed := t.segs.Drain()

	t.pose = core.Pose{}
	t.curSteer = 0
	t.lastMisHdg = 0
	t.handle = 0
	t.destroyed = true

	t.log.Debug("truck destroyed", "freedSegments", freed)
	return err
}

// ID returns the truck's identifier.
func (t *Truck) ID() uuid.UUID { return t.id }

// Params returns the truck's constants.
func (t *Truck) Params() Params { return t.params }

// Pose returns the live pose.
func (t *Truck) Pose() core.Pose { return t.pose }

// Steer returns the current (rate-limited) steering angle in degrees.
func (t *Truck) Steer() float64 { return t.curSteer }

// Queued is the number of segments left to drive.
func (t *Truck) Queued() int { return t.segs.Len() }

// Segments returns a copy of the queued segments, front first.
func (t *Truck) Segments() []core.Segment { return t.segs.Snapshot() }

// Idle reports whether the truck has nothing queued and is stopped.
func (t *Truck) Idle() bool { return t.segs.Empty() && t.pose.Spd == 0 }

// Destroyed reports whether Destroy has been called.
func (t *Truck) Destroyed() bool { return t.destroyed }

// EffectivePose is where new path requests continue from: the end of the
// last queued segment, or the live pose when nothing is queued.
func (t *Truck) EffectivePose() (r2.Point, float64) {
	if last := t.segs.Back(); last != nil {
		return last.EndPos, last.EndHdg
	}
	return t.pose.Pos, t.pose.Hdg
}

// DriveToPoint plans from the effective pose to dst and appends the result.
// On failure the queue is left untouched and the error wraps driving.ErrNoPath.
func (t *Truck) DriveToPoint(dst r2.Point, hdg float64) error {
	if t.destroyed {
		return ErrDestroyed
	}

	if !finite(dst.X, dst.Y, hdg) {
		t.log.Debug("drive request rejected", "x", dst.X, "y", dst.Y, "hdg", hdg, "error", "non-finite target")
		return fmt.Errorf("drive to (%.2f, %.2f) hdg %.1f: %w: non-finite target",
			dst.X, dst.Y, hdg, driving.ErrNoPath)
	}

	from, fromHdg := t.EffectivePose()
	segs, err := t.deps.Planner.Plan(t.params.Geometry, from, fromHdg, dst, hdg)
	if err != nil {
		if !errors.Is(err, driving.ErrNoPath) {
			err = fmt.Errorf("%w: %w", driving.ErrNoPath, err)
		}
		t.log.Debug("drive request rejected", "x", dst.X, "y", dst.Y, "hdg", hdg, "error", err)
		return fmt.Errorf("drive to (%.2f, %.2f) hdg %.1f: %w", dst.X, dst.Y, hdg, err)
	}

	t.segs.Push(segs...)
	t.log.Debug("drive request queued", "x", dst.X, "y", dst.Y, "hdg", hdg,
		"added", len(segs), "queued", t.segs.Len())
	return nil
}

// Run advances the truck by dt seconds. Non-positive or non-finite dt, a
// destroyed truck, and an idle truck are no-ops.
func (t *Truck) Run(dt float64) {
	if t.destroyed || !(dt > 0) || math.IsInf(dt, 1) {
		return
	}

	var steer, speed float64
	if !t.segs.Empty() {
		steer, speed = t.deps.Follower.Follow(t.pose, t.params.Geometry, t.segs,
			t.params.MaxAngVel, &t.lastMisHdg, dt)
	} else if t.pose.Spd == 0 {
		return
	}
	steer = finiteOrZero(steer)
	speed = finiteOrZero(speed)
	steer = clamp(steer, -t.params.Geometry.MaxSteer, t.params.Geometry.MaxSteer)

	t.pose.Spd += clamp(speed-t.pose.Spd, -t.params.Accel*dt, t.params.Accel*dt)
	t.curSteer += clamp(steer-t.curSteer, -t.params.SteerRate*dt, t.params.SteerRate*dt)

	spd := t.pose.Spd
	var dHdg float64
	if radius := core.TurnRadius(t.curSteer, t.params.Geometry.Wheelbase); math.Abs(radius) <= maxRadius {
		dHdg = spd / radius * dt
	}

	step := r2.Point{X: math.Sin(dHdg) * spd * dt, Y: math.Cos(dHdg) * spd * dt}
	t.pose.Pos = t.pose.Pos.Add(core.Rotate(step, t.pose.Hdg))
	t.pose.Hdg = core.NormalizeHdg(t.pose.Hdg + core.RadToDeg(dHdg))
}

// Align projects the live pose onto terrain. A probe miss returns an error
// wrapping terrain.ErrNoHit.
func (t *Truck) Align() (core.RenderPose, error) {
	if t.destroyed {
		return core.RenderPose{}, ErrDestroyed
	}

	x, y := t.pose.Pos.X, t.pose.Pos.Y
	hit, err := t.deps.Terrain.Probe(x, y)
	if err != nil {
		return core.RenderPose{}, fmt.Errorf("terrain probe at (%.2f, %.2f): %w", x, y, err)
	}
	if !(hit.Normal.Z > 0) || math.IsInf(hit.Normal.Norm(), 0) {
		return core.RenderPose{}, fmt.Errorf("%w: unusable normal %v at (%.2f, %.2f)", terrain.ErrNoHit, hit.Normal, x, y)
	}

	n := hit.Normal.Normalize()
	pos := r3.Vector{X: x, Y: y, Z: hit.Height}.Add(n.Mul(t.params.Height))

	// horizontal part of the normal in truck axes: X to the right, Y forward
	v := core.Rotate(r2.Point{X: n.X, Y: n.Y}, -t.pose.Hdg)

	return core.RenderPose{
		Pos:   pos,
		Hdg:   t.pose.Hdg,
		Roll:  -core.RadToDeg(math.Asin(clamp(v.X/n.Z, -1, 1))),
		Pitch: -core.RadToDeg(math.Asin(clamp(v.Y/n.Z, -1, 1))),
	}, nil
}

// Draw aligns the truck and hands the result to the asset service.
func (t *Truck) Draw() error {
	rp, err := t.Align()
	if err != nil {
		return err
	}
	if err := t.deps.Assets.Draw(t.handle, rp); err != nil {
		return fmt.Errorf("draw truck: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finiteOrZero(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
