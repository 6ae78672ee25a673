package storage

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/influx"
	"github.com/towsim/pushback/internal/logging"
	"github.com/towsim/pushback/internal/storage/memory"
	"github.com/towsim/pushback/internal/storage/postgres"
	sqlitestorage "github.com/towsim/pushback/internal/storage/sqlite"
	"github.com/towsim/pushback/internal/storage/websocket"
)

// Backend type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebsocket = "websocket"
)

// Dependencies are the shared services handed to backends.
type Dependencies struct {
	LogManager *logging.SlogManager
	Logger     zerolog.Logger
	// DataDir receives fallback dumps and the influx backup file.
	DataDir string
}

// NewBackend creates a storage backend based on configuration. When influx
// is enabled the selected backend is paired with the telemetry backend.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.DataDir == "" {
		deps.DataDir = "."
	}

	var primary Backend
	switch cfg.Type {
	case TypeMemory:
		primary = memory.New(cfg.Memory)
	case TypeSQLite:
		b, err := sqlitestorage.New(cfg.SQLite, deps.LogManager)
		if err != nil {
			return nil, err
		}
		primary = b
	case TypePostgres:
		primary = postgres.New(postgres.Config{
			Postgres:     cfg.Postgres,
			FallbackPath: filepath.Join(deps.DataDir, "pushback_fallback.db"),
		}, deps.LogManager, deps.Logger)
	case TypeWebsocket:
		primary = websocket.New(cfg.Websocket, deps.LogManager.Logger())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}

	if !cfg.Influx.Enabled {
		return primary, nil
	}
	telemetry := influx.New(cfg.Influx, deps.Logger, filepath.Join(deps.DataDir, "influx_backup.log.gz"))
	return Multi{primary, telemetry}, nil
}

