package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towsim/pushback/internal/config"
	v1 "github.com/towsim/pushback/internal/storage/memory/export/v1"
	"github.com/towsim/pushback/pkg/core"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSession() *core.Session {
	return &core.Session{
		ID:        "0f8e2c71-3f9b-4d55-a2c1-6a7b8c9d0e1f",
		TruckID:   "truck-1",
		StartTime: t0,
		Geometry:  core.Geometry{Wheelbase: 5, MaxSteer: 60},
	}
}

func record(t *testing.T, b *Backend) {
	t.Helper()
	require.NoError(t, b.RecordDriveRequest(&core.DriveRequest{
		Time: t0, ToPos: r2.Point{Y: 10}, Accepted: true,
		Segments: []core.Segment{{EndPos: r2.Point{Y: 10}, Length: 10}},
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordTruckState(&core.TruckState{
			CaptureFrame: uint(i),
			Time:         t0.Add(time.Duration(i) * time.Second),
			Position:     r2.Point{Y: float64(i)},
		}))
	}
}

func TestRecordWithoutSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.ErrorIs(t, b.RecordTruckState(&core.TruckState{}), core.ErrNoSession)
	assert.ErrorIs(t, b.RecordDriveRequest(&core.DriveRequest{}), core.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), core.ErrNoSession)
	assert.Empty(t, b.GetExportedFilePath())
}

func TestStartSessionResets(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(testSession()))
	record(t, b)
	assert.Len(t, b.States(), 3)
	assert.Len(t, b.DriveRequests(), 1)

	require.NoError(t, b.StartSession(testSession()))
	assert.Empty(t, b.States())
	assert.Empty(t, b.DriveRequests())
}

func TestRecordCopiesValues(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(testSession()))

	st := &core.TruckState{Heading: 10}
	require.NoError(t, b.RecordTruckState(st))
	st.Heading = 20

	assert.Equal(t, 10.0, b.States()[0].Heading)
}

func TestEndSession_JSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})
	require.NoError(t, b.StartSession(testSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "pushback_20260301_120000_0f8e2c71.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var export v1.Export
	require.NoError(t, json.Unmarshal(data, &export))

	assert.Equal(t, "truck-1", export.TruckID)
	assert.Len(t, export.States, 3)
	assert.Len(t, export.DriveRequests, 1)
	assert.Equal(t, "LINESTRING(0 0,0 1,0 2)", export.Track)

	meta := b.GetExportMetadata()
	assert.InDelta(t, 2, meta.Distance, 1e-9)
	assert.InDelta(t, 2, meta.Duration, 1e-9)
	assert.Equal(t, uint(2), meta.EndFrame)

	// the session is closed after export
	assert.ErrorIs(t, b.RecordTruckState(&core.TruckState{}), core.ErrNoSession)
}

func TestEndSession_Gzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.StartSession(testSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var export v1.Export
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, v1.FormatVersion, export.Version)
	assert.Len(t, export.States, 3)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "session", shortID(""))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("123456789"))
}
