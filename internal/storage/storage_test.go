package storage_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/influx"
	"github.com/towsim/pushback/internal/storage"
	"github.com/towsim/pushback/internal/storage/memory"
	"github.com/towsim/pushback/internal/storage/postgres"
	sqlitestorage "github.com/towsim/pushback/internal/storage/sqlite"
	"github.com/towsim/pushback/internal/storage/websocket"
	"github.com/towsim/pushback/pkg/core"
)

var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
	_ storage.Backend    = (*influx.Backend)(nil)
	_ storage.Backend    = storage.Multi(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
)

// recorder counts calls and can be told to fail.
type recorder struct {
	name  string
	calls []string
	fail  error
	log   *[]string
}

func (r *recorder) note(call string) error {
	r.calls = append(r.calls, call)
	if r.log != nil {
		*r.log = append(*r.log, r.name+":"+call)
	}
	return r.fail
}

func (r *recorder) Init() error                                 { return r.note("init") }
func (r *recorder) Close() error                                { return r.note("close") }
func (r *recorder) StartSession(*core.Session) error            { return r.note("start") }
func (r *recorder) EndSession() error                           { return r.note("end") }
func (r *recorder) RecordTruckState(*core.TruckState) error     { return r.note("state") }
func (r *recorder) RecordDriveRequest(*core.DriveRequest) error { return r.note("request") }

func TestMulti_FansOut(t *testing.T) {
	a, b := &recorder{name: "a"}, &recorder{name: "b"}
	m := storage.Multi{a, b}

	require.NoError(t, m.Init())
	require.NoError(t, m.StartSession(&core.Session{}))
	require.NoError(t, m.RecordTruckState(&core.TruckState{}))
	require.NoError(t, m.RecordDriveRequest(&core.DriveRequest{}))
	require.NoError(t, m.EndSession())

	want := []string{"init", "start", "state", "request", "end"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}

func TestMulti_JoinsErrorsAndContinues(t *testing.T) {
	errA := errors.New("a failed")
	a, b := &recorder{name: "a", fail: errA}, &recorder{name: "b"}
	m := storage.Multi{a, b}

	err := m.RecordTruckState(&core.TruckState{})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, []string{"state"}, b.calls)
}

func TestMulti_ClosesInReverse(t *testing.T) {
	var log []string
	m := storage.Multi{&recorder{name: "a", log: &log}, &recorder{name: "b", log: &log}}
	require.NoError(t, m.Close())
	assert.Equal(t, []string{"b:close", "a:close"}, log)
}

func TestAsUploadable(t *testing.T) {
	mem := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})

	u, ok := storage.AsUploadable(mem)
	assert.True(t, ok)
	assert.Same(t, mem, u)

	u, ok = storage.AsUploadable(storage.Multi{&recorder{}, mem})
	assert.True(t, ok)
	assert.Same(t, mem, u)

	_, ok = storage.AsUploadable(&recorder{})
	assert.False(t, ok)
}

func TestNewBackend(t *testing.T) {
	deps := storage.Dependencies{Logger: zerolog.Nop(), DataDir: t.TempDir()}
	tests := []struct {
		typ  string
		want any
	}{
		{storage.TypeMemory, &memory.Backend{}},
		{storage.TypeSQLite, &sqlitestorage.Backend{}},
		{storage.TypePostgres, &postgres.Backend{}},
		{storage.TypeWebsocket, &websocket.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "tape"}, storage.Dependencies{})
	assert.ErrorContains(t, err, "unknown storage type: tape")
}

func TestNewBackend_WithInflux(t *testing.T) {
	b, err := storage.NewBackend(config.StorageConfig{
		Type:   storage.TypeMemory,
		Memory: config.MemoryConfig{OutputDir: t.TempDir()},
		Influx: config.InfluxConfig{Enabled: true},
	}, storage.Dependencies{Logger: zerolog.Nop(), DataDir: t.TempDir()})
	require.NoError(t, err)

	m, ok := b.(storage.Multi)
	require.True(t, ok)
	require.Len(t, m, 2)
	assert.IsType(t, &memory.Backend{}, m[0])
	assert.IsType(t, &influx.Backend{}, m[1])

	_, ok = storage.AsUploadable(b)
	assert.True(t, ok)
}
