// Package memory implements a storage backend that keeps a session in memory
// and exports it as JSON when the session ends.
package memory

import (
	"sync"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/pkg/core"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	states   []core.TruckState
	requests []core.DriveRequest

	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and discards any previous data
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.states = nil
	b.requests = nil
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	err := b.exportJSON()
	b.session = nil
	return err
}

// RecordTruckState appends a sampled state
func (b *Backend) RecordTruckState(s *core.TruckState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	b.states = append(b.states, *s)
	return nil
}

// RecordDriveRequest appends a drive request
func (b *Backend) RecordDriveRequest(r *core.DriveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	b.requests = append(b.requests, *r)
	return nil
}

// States returns a copy of the recorded states
func (b *Backend) States() []core.TruckState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]core.TruckState(nil), b.states...)
}

// DriveRequests returns a copy of the recorded drive requests
func (b *Backend) DriveRequests() []core.DriveRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]core.DriveRequest(nil), b.requests...)
}

// GetExportedFilePath returns the path of the last export, empty before the first
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastExportPath
}

// GetExportMetadata summarizes the last export
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastExportMeta
}
