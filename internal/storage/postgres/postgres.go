// Package postgres implements the storage backend on PostgreSQL. When the
// server is unreachable it records into an in-memory SQLite database instead
// and dumps it to disk on close.
package postgres

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/database"
	"github.com/towsim/pushback/internal/logging"
	gormstorage "github.com/towsim/pushback/internal/storage/gorm"
)

// Config holds configuration for the postgres storage backend.
type Config struct {
	Postgres config.PostgresConfig
	// FallbackPath receives the SQLite dump when Postgres was unreachable.
	FallbackPath string
}

// Backend embeds the GORM backend over a database.Manager connection.
type Backend struct {
	*gormstorage.Backend
	cfg     Config
	manager *database.Manager
	logs    *logging.SlogManager
}

// New creates a new postgres storage backend. Nothing is connected until Init.
func New(cfg Config, logManager *logging.SlogManager, log zerolog.Logger) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	m := database.NewManager(log)
	m.SqliteFilePath = cfg.FallbackPath
	return &Backend{
		cfg:     cfg,
		manager: m,
		logs:    logManager,
	}
}

// Init connects, migrates and starts the embedded GORM writer.
func (b *Backend) Init() error {
	if err := b.manager.Connect(b.cfg.Postgres); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := b.manager.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.manager.DB,
		LogManager: b.logs,
	})
	return b.Backend.Init()
}

// Local reports whether recording fell back to SQLite.
func (b *Backend) Local() bool {
	return b.manager.ShouldSaveLocal
}

// Close stops the writer, dumps a local fallback database when one is in
// use, and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if b.manager.ShouldSaveLocal && b.manager.SqliteFilePath != "" {
		if derr := b.manager.DumpMemoryToDisk(); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	return errors.Join(err, b.manager.Close())
}
