// Package sim hosts a truck in a tick loop and records what it does.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/towsim/pushback/internal/asset"
	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/driving"
	"github.com/towsim/pushback/internal/geo"
	"github.com/towsim/pushback/internal/storage"
	"github.com/towsim/pushback/internal/terrain"
	"github.com/towsim/pushback/internal/truck"
	"github.com/towsim/pushback/pkg/core"
)

const instrumentationName = "github.com/towsim/pushback/internal/sim"

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrStepBudget is returned by RunUntilIdle when the truck is still
	// moving after the allowed number of steps.
	ErrStepBudget = errors.New("step budget exhausted")
)

// Dependencies configure a Session.
type Dependencies struct {
	TruckID  string
	Params   truck.Params
	Start    r2.Point
	StartHdg float64
	Sim      config.SimConfig
	Origin   geo.Origin

	Planner  driving.Planner
	Follower driving.Follower
	Terrain  terrain.Prober
	Assets   asset.Service
	Storage  storage.Backend

	Logger *slog.Logger
	// Meter defaults to the global meter provider.
	Meter metric.Meter
	// Now defaults to time.Now.
	Now func() time.Time
}

// Status is a snapshot of the session.
type Status struct {
	SessionID string  `json:"sessionId"`
	Frame     uint    `json:"frame"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
	Steer     float64 `json:"steer"`
	Queued    int     `json:"queued"`
	Idle      bool    `json:"idle"`
	Distance  float64 `json:"distance"`
}

type instruments struct {
	ticks    metric.Int64Counter
	distance metric.Float64Counter
	segments metric.Int64ObservableGauge
	requests metric.Int64Counter
	reg      metric.Registration
}

// Session owns one truck and its recording. All methods are safe for
// concurrent use; calls are serialized onto the truck.
type Session struct {
	mu      sync.Mutex
	truck   *truck.Truck
	store   storage.Backend
	session core.Session
	cfg     config.SimConfig
	log     *slog.Logger
	now     func() time.Time
	inst    instruments

	frame    uint
	distance float64
	closed   bool

	// mirrors frame for readers that must not take mu
	frameSeen atomic.Uint64
}

// NewSession creates the truck and starts a storage session.
func NewSession(deps Dependencies) (*Session, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("%w: storage", truck.ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TruckID == "" {
		deps.TruckID = "truck-1"
	}

	t, err := truck.New(deps.Start, deps.StartHdg, deps.Params, truck.Dependencies{
		Planner:  deps.Planner,
		Follower: deps.Follower,
		Terrain:  deps.Terrain,
		Assets:   deps.Assets,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		truck: t,
		store: deps.Storage,
		cfg:   deps.Sim,
		now:   deps.Now,
		session: core.Session{
			ID:        uuid.NewString(),
			TruckID:   deps.TruckID,
			StartTime: deps.Now().UTC(),
			Geometry:  deps.Params.Geometry,
			OriginLat: deps.Origin.Lat,
			OriginLon: deps.Origin.Lon,
		},
	}
	s.log = deps.Logger.With("session", s.session.ID)

	if err := s.registerInstruments(deps.Meter); err != nil {
		_ = t.Destroy()
		return nil, err
	}
	if err := s.store.StartSession(&s.session); err != nil {
		_ = s.inst.reg.Unregister()
		_ = t.Destroy()
		return nil, fmt.Errorf("start storage session: %w", err)
	}

	s.log.Info("session started", "truck", deps.TruckID, "x", deps.Start.X, "y", deps.Start.Y, "hdg", t.Pose().Hdg)
	s.record()
	return s, nil
}

func (s *Session) registerInstruments(m metric.Meter) error {
	var err error
	s.inst.ticks, err = m.Int64Counter(
		"pushback.truck.ticks",
		metric.WithDescription("Integration steps run"),
	)
	if err != nil {
		return fmt.Errorf("creating ticks counter: %w", err)
	}

	s.inst.distance, err = m.Float64Counter(
		"pushback.truck.distance",
		metric.WithDescription("Distance driven"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return fmt.Errorf("creating distance counter: %w", err)
	}

	s.inst.requests, err = m.Int64Counter(
		"pushback.truck.drive_requests",
		metric.WithDescription("Drive requests by outcome"),
	)
	if err != nil {
		return fmt.Errorf("creating drive request counter: %w", err)
	}

	s.inst.segments, err = m.Int64ObservableGauge(
		"pushback.truck.segments",
		metric.WithDescription("Segments queued on the truck"),
	)
	if err != nil {
		return fmt.Errorf("creating segments gauge: %w", err)
	}

	s.inst.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.closed {
				o.ObserveInt64(s.inst.segments, int64(s.truck.Queued()),
					metric.WithAttributes(attribute.String("session", s.session.ID)))
			}
			return nil
		},
		s.inst.segments,
	)
	if err != nil {
		return fmt.Errorf("registering segments callback: %w", err)
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.session.ID
}

// Frame returns the number of completed steps without taking the session lock,
// so it is safe to call from log handlers.
func (s *Session) Frame() uint {
	return uint(s.frameSeen.Load())
}

// Truck exposes the hosted truck. Callers must not use it concurrently with
// the session.
func (s *Session) Truck() *truck.Truck {
	return s.truck
}

// Drive queues a path to dst and records the request whether or not a path
// was found.
func (s *Session) Drive(dst r2.Point, hdg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	from, fromHdg := s.truck.EffectivePose()
	before := s.truck.Queued()
	err := s.truck.DriveToPoint(dst, hdg)

	req := core.DriveRequest{
		SessionID:    s.session.ID,
		Time:         s.now().UTC(),
		CaptureFrame: s.frame,
		FromPos:      from,
		FromHdg:      fromHdg,
		Accepted:     err == nil,
	}
	// non-finite targets are rejected by the truck and cannot be exported
	if isFinite(dst.X) && isFinite(dst.Y) {
		req.ToPos = dst
	}
	if isFinite(hdg) {
		req.ToHdg = core.NormalizeHdg(hdg)
	}
	if err == nil {
		req.Segments = s.truck.Segments()[before:]
	}

	s.inst.requests.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("accepted", req.Accepted)))
	if rerr := s.store.RecordDriveRequest(&req); rerr != nil {
		s.log.Warn("failed to record drive request", "error", rerr)
	}

	if err != nil {
		s.log.Info("drive request rejected", "x", dst.X, "y", dst.Y, "hdg", hdg, "error", err)
		return err
	}
	s.log.Debug("drive request accepted", "x", dst.X, "y", dst.Y, "hdg", hdg, "segments", len(req.Segments))
	return nil
}

// Step advances the truck by dt seconds.
func (s *Session) Step(dt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(dt)
}

func (s *Session) step(dt float64) error {
	if s.closed {
		return ErrClosed
	}

	wasIdle := s.truck.Idle()
	prev := s.truck.Pose().Pos
	s.truck.Run(dt)
	s.frame++
	s.frameSeen.Store(uint64(s.frame))

	moved := s.truck.Pose().Pos.Sub(prev).Norm()
	s.distance += moved

	ctx := context.Background()
	s.inst.ticks.Add(ctx, 1)
	if moved > 0 {
		s.inst.distance.Add(ctx, moved)
	}

	becameIdle := !wasIdle && s.truck.Idle()
	if becameIdle || (s.cfg.RecordEvery > 0 && s.frame%uint(s.cfg.RecordEvery) == 0) {
		s.record()
	}
	if becameIdle {
		p := s.truck.Pose()
		s.log.Info("truck idle", "frame", s.frame, "x", p.Pos.X, "y", p.Pos.Y, "hdg", p.Hdg)
	}

	if s.cfg.Draw {
		if err := s.truck.Draw(); err != nil {
			return fmt.Errorf("frame %d: %w", s.frame, err)
		}
	}
	return nil
}

func (s *Session) record() {
	p := s.truck.Pose()
	st := core.TruckState{
		SessionID:    s.session.ID,
		Time:         s.now().UTC(),
		CaptureFrame: s.frame,
		Position:     p.Pos,
		Heading:      p.Hdg,
		Speed:        p.Spd,
		Steer:        s.truck.Steer(),
		Segments:     s.truck.Queued(),
	}
	if err := s.store.RecordTruckState(&st); err != nil {
		s.log.Warn("failed to record truck state", "frame", s.frame, "error", err)
	}
}

// RunUntilIdle steps until the queue is empty and the truck has stopped.
// maxSteps <= 0 uses the configured budget. It returns the number of steps
// taken.
func (s *Session) RunUntilIdle(ctx context.Context, dt float64, maxSteps int) (int, error) {
	if maxSteps <= 0 {
		maxSteps = s.cfg.MaxSteps
	}
	if !(dt > 0) || math.IsInf(dt, 1) {
		return 0, fmt.Errorf("invalid time step %v", dt)
	}

	// locked per step; Status and the gauges read between steps
	steps := 0
	for {
		idle, queued := s.progress()
		if idle {
			return steps, nil
		}
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		if steps >= maxSteps {
			return steps, fmt.Errorf("%w: %d steps, %d segments left", ErrStepBudget, steps, queued)
		}
		if err := s.Step(dt); err != nil {
			return steps, err
		}
		steps++
	}
}

func (s *Session) progress() (idle bool, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truck.Idle(), s.truck.Queued()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Run steps the truck in real time, once per dt seconds, until ctx is done.
func (s *Session) Run(ctx context.Context, dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return fmt.Errorf("invalid time step %v", dt)
	}
	ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Step(dt); err != nil {
				return err
			}
		}
	}
}

// Draw renders the truck once.
func (s *Session) Draw() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.truck.Draw()
}

// Status returns a snapshot of the truck and counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.truck.Pose()
	return Status{
		SessionID: s.session.ID,
		Frame:     s.frame,
		X:         p.Pos.X,
		Y:         p.Pos.Y,
		Heading:   p.Hdg,
		Speed:     p.Spd,
		Steer:     s.truck.Steer(),
		Queued:    s.truck.Queued(),
		Idle:      s.truck.Idle(),
		Distance:  s.distance,
	}
}

// Close records a final state, ends the storage session and destroys the
// truck.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.record()
	var errs []error
	if err := s.store.EndSession(); err != nil {
		errs = append(errs, fmt.Errorf("end storage session: %w", err))
	}
	if err := s.truck.Destroy(); err != nil {
		errs = append(errs, err)
	}
	s.closed = true
	s.log.Info("session closed", "frames", s.frame, "distance", s.distance)
	s.mu.Unlock()

	// the gauge callback takes s.mu
	if err := s.inst.reg.Unregister(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
