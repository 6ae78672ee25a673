package influx

import (
	"context"
	"sync"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/pkg/core"
)

// Measurement names.
const (
	MeasurementTruckState   = "truck_state"
	MeasurementDriveRequest = "drive_request"
)

// Backend records session telemetry as InfluxDB points.
type Backend struct {
	manager *Manager

	mu      sync.Mutex
	session *core.Session
}

// New creates a telemetry backend. Nothing is connected until Init.
func New(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Backend {
	return &Backend{manager: NewManager(cfg, log, backupPath)}
}

// Manager exposes the underlying connection manager.
func (b *Backend) Manager() *Manager {
	return b.manager
}

func (b *Backend) Init() error {
	return b.manager.Connect(context.Background())
}

func (b *Backend) Close() error {
	return b.manager.Close()
}

func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *s
	b.session = &cp
	return nil
}

func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return core.ErrNoSession
	}
	b.session = nil
	return nil
}

func (b *Backend) active() (*core.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, core.ErrNoSession
	}
	return b.session, nil
}

func (b *Backend) RecordTruckState(s *core.TruckState) error {
	sess, err := b.active()
	if err != nil {
		return err
	}
	return b.manager.WritePoint(b.manager.Bucket(), TruckStatePoint(sess, s))
}

func (b *Backend) RecordDriveRequest(r *core.DriveRequest) error {
	sess, err := b.active()
	if err != nil {
		return err
	}
	return b.manager.WritePoint(b.manager.Bucket(), DriveRequestPoint(sess, r))
}

// TruckStatePoint converts a sampled pose into a point tagged with the session.
func TruckStatePoint(sess *core.Session, s *core.TruckState) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementTruckState).
		AddTag("session", sess.ID).
		AddTag("truck", sess.TruckID).
		AddField("frame", int64(s.CaptureFrame)).
		AddField("x", s.Position.X).
		AddField("y", s.Position.Y).
		AddField("heading", s.Heading).
		AddField("speed", s.Speed).
		AddField("steer", s.Steer).
		AddField("segments", int64(s.Segments)).
		SetTime(s.Time)
}

// DriveRequestPoint converts a drive request into a point tagged with the
// session and whether a path was found.
func DriveRequestPoint(sess *core.Session, r *core.DriveRequest) *influxdb2_write.Point {
	length := 0.0
	for _, seg := range r.Segments {
		length += seg.Length
	}
	accepted := "false"
	if r.Accepted {
		accepted = "true"
	}
	return influxdb2_write.NewPointWithMeasurement(MeasurementDriveRequest).
		AddTag("session", sess.ID).
		AddTag("truck", sess.TruckID).
		AddTag("accepted", accepted).
		AddField("frame", int64(r.CaptureFrame)).
		AddField("to_x", r.ToPos.X).
		AddField("to_y", r.ToPos.Y).
		AddField("to_hdg", r.ToHdg).
		AddField("segments", int64(len(r.Segments))).
		AddField("length", length).
		SetTime(r.Time)
}
