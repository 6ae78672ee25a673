package sim

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/towsim/pushback/internal/asset"
	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/driving"
	"github.com/towsim/pushback/internal/storage/memory"
	"github.com/towsim/pushback/internal/terrain"
	"github.com/towsim/pushback/internal/truck"
	"github.com/towsim/pushback/pkg/core"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Backend
	assets *asset.FileService
	deps   Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/assets/objects/White.obj", []byte("o truck\n"), 0644))

	f := &fixture{
		store:  memory.New(config.MemoryConfig{OutputDir: t.TempDir()}),
		assets: asset.NewFileService(fs, "/assets", nil),
	}
	f.deps = Dependencies{
		TruckID:  "truck-7",
		Params:   truck.DefaultParams(),
		Sim:      config.SimConfig{RecordEvery: 10, MaxSteps: 20000},
		Planner:  &driving.CSCPlanner{TurnRadiusFactor: 1.5, MaxPathLength: 5000},
		Follower: driving.NewTracker(config.DrivingConfig{
			MaxSpeed: 2, MinSpeed: 0.3, Decel: 0.4, Tolerance: 0.25,
			HeadingGain: 1, DampingGain: 0.1, CrossTrackGain: 8,
		}),
		Terrain: terrain.Flat{},
		Assets:  f.assets,
		Storage: f.store,
		Meter:   noop.NewMeterProvider().Meter("test"),
		Now:     func() time.Time { return t0 },
	}
	return f
}

func (f *fixture) newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(f.deps)
	require.NoError(t, err)
	return s
}

func TestNewSession_StartsRecording(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, f.assets.Loaded())

	states := f.store.States()
	require.Len(t, states, 1, "initial pose is recorded")
	assert.Equal(t, s.ID(), states[0].SessionID)
	assert.Equal(t, uint(0), states[0].CaptureFrame)
	assert.Equal(t, t0, states[0].Time)
}

func TestNewSession_MissingStorage(t *testing.T) {
	f := newFixture(t)
	f.deps.Storage = nil
	_, err := NewSession(f.deps)
	assert.ErrorIs(t, err, truck.ErrMissingDependency)
}

func TestNewSession_AssetMissing(t *testing.T) {
	f := newFixture(t)
	f.deps.Params.AssetPath = "objects/Missing.obj"
	_, err := NewSession(f.deps)
	assert.ErrorIs(t, err, truck.ErrAssetLoad)
	assert.ErrorIs(t, f.store.EndSession(), core.ErrNoSession, "no storage session on failure")
}

func TestDrive_RecordsAcceptedRequest(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))

	reqs := f.store.DriveRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Accepted)
	assert.Equal(t, r2.Point{Y: 20}, reqs[0].ToPos)
	require.Len(t, reqs[0].Segments, 1)
	assert.Equal(t, core.SegmentStraight, reqs[0].Segments[0].Kind)
	assert.Equal(t, 1, s.Status().Queued)
}

func TestDrive_SecondRequestStartsAtQueuedEnd(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))
	require.NoError(t, s.Drive(r2.Point{Y: 40}, 0))

	reqs := f.store.DriveRequests()
	require.Len(t, reqs, 2)
	assert.InDelta(t, 20, reqs[1].FromPos.Y, 1e-9)
	assert.Len(t, reqs[1].Segments, 1, "only the newly planned segments are recorded")
}

func TestDrive_RejectedLeavesQueue(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	err := s.Drive(r2.Point{X: math.NaN()}, 0)
	assert.ErrorIs(t, err, driving.ErrNoPath)
	assert.Zero(t, s.Status().Queued)

	reqs := f.store.DriveRequests()
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].Accepted)
	assert.Empty(t, reqs[0].Segments)
}

func TestRunUntilIdle_ReachesTarget(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))

	steps, err := s.RunUntilIdle(context.Background(), 0.05, 0)
	require.NoError(t, err)
	assert.Positive(t, steps)

	st := s.Status()
	assert.True(t, st.Idle)
	assert.Equal(t, uint(steps), st.Frame)
	assert.InDelta(t, 20, st.Y, 0.5)
	assert.InDelta(t, st.Y, st.Distance, 1e-6)

	states := f.store.States()
	last := states[len(states)-1]
	assert.Equal(t, st.Frame, last.CaptureFrame, "the idle frame is always recorded")
	assert.Zero(t, last.Speed)
	assert.Zero(t, last.Segments)
	for _, s := range states[1 : len(states)-1] {
		assert.Zero(t, s.CaptureFrame%10)
	}
}

func TestRunUntilIdle_AlreadyIdle(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	steps, err := s.RunUntilIdle(context.Background(), 0.05, 10)
	require.NoError(t, err)
	assert.Zero(t, steps)
}

func TestRunUntilIdle_Budget(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	require.NoError(t, s.Drive(r2.Point{Y: 200}, 0))

	steps, err := s.RunUntilIdle(context.Background(), 0.05, 5)
	assert.ErrorIs(t, err, ErrStepBudget)
	assert.Equal(t, 5, steps)
}

func TestRunUntilIdle_Cancelled(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	require.NoError(t, s.Drive(r2.Point{Y: 200}, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RunUntilIdle(ctx, 0.05, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunUntilIdle_StatusDuringRun(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	require.NoError(t, s.Drive(r2.Point{Y: 4000}, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := s.RunUntilIdle(ctx, 0.05, 1_000_000)
		done <- err
	}()

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Frame > 0 && !st.Idle
	}, 5*time.Second, time.Millisecond, "status is readable while the run is in progress")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunUntilIdle_InvalidDt(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	_, err := s.RunUntilIdle(context.Background(), 0, 0)
	assert.Error(t, err)
}

func TestStep_Draws(t *testing.T) {
	f := newFixture(t)
	f.deps.Sim.Draw = true
	s := f.newSession(t)

	require.NoError(t, s.Step(0.05))
	require.NoError(t, s.Step(0.05))

	n, pose, ok := f.assets.Draws(1)
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0.0, pose.Hdg)
	assert.Equal(t, uint(2), s.Frame())
	assert.Equal(t, s.Frame(), s.Status().Frame)
}

func TestStep_TerrainMissIsFatal(t *testing.T) {
	f := newFixture(t)
	f.deps.Sim.Draw = true
	f.deps.Terrain = terrain.Bounded{Prober: terrain.Flat{}, Area: r2.RectFromPoints(r2.Point{X: 5, Y: 5}, r2.Point{X: 6, Y: 6})}
	s := f.newSession(t)

	err := s.Step(0.05)
	assert.ErrorIs(t, err, terrain.ErrNoHit)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx, 0.005))
	assert.Positive(t, s.Status().Frame)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))

	require.NoError(t, s.Close())
	assert.Zero(t, f.assets.Loaded())
	assert.NotEmpty(t, f.store.GetExportedFilePath())
	assert.Equal(t, "truck-7", f.store.GetExportMetadata().TruckID)

	assert.ErrorIs(t, s.Close(), ErrClosed)
	assert.ErrorIs(t, s.Step(0.05), ErrClosed)
	assert.ErrorIs(t, s.Drive(r2.Point{}, 0), ErrClosed)
	assert.ErrorIs(t, s.Draw(), ErrClosed)
	assert.True(t, errors.Is(s.Truck().Destroy(), truck.ErrDestroyed))
}

func TestClose_ExportsAfterNonFiniteDrive(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	require.ErrorIs(t, s.Drive(r2.Point{X: math.NaN(), Y: math.Inf(1)}, math.NaN()), driving.ErrNoPath)
	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))

	reqs := f.store.DriveRequests()
	require.Len(t, reqs, 2)
	assert.False(t, reqs[0].Accepted)
	assert.Equal(t, r2.Point{}, reqs[0].ToPos, "non-finite target is not recorded")
	assert.Zero(t, reqs[0].ToHdg)

	require.NoError(t, s.Close())
	path := f.store.GetExportedFilePath()
	require.NotEmpty(t, path)
	_, err := os.Stat(path)
	assert.NoError(t, err, "export file written")
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	f := newFixture(t)
	f.deps.Meter = mp.Meter("test")
	s := f.newSession(t)

	require.NoError(t, s.Drive(r2.Point{Y: 20}, 0))
	require.Error(t, s.Drive(r2.Point{X: math.NaN()}, 0))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Step(0.05))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	got := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			got[m.Name] = m.Data
		}
	}

	ticks, ok := got["pushback.truck.ticks"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, ticks.DataPoints, 1)
	assert.Equal(t, int64(3), ticks.DataPoints[0].Value)

	dist, ok := got["pushback.truck.distance"].(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, dist.DataPoints, 1)
	assert.InDelta(t, s.Status().Distance, dist.DataPoints[0].Value, 1e-12)

	segs, ok := got["pushback.truck.segments"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, segs.DataPoints, 1)
	assert.Equal(t, int64(1), segs.DataPoints[0].Value)

	reqs, ok := got["pushback.truck.drive_requests"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, reqs.DataPoints, 2, "one series per outcome")

	require.NoError(t, s.Close())
}
