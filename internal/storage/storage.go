// Package storage defines the recording backend contract and picks a
// backend from configuration.
package storage

import "github.com/towsim/pushback/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordTruckState(s *core.TruckState) error
	RecordDriveRequest(r *core.DriveRequest) error
}

// Uploadable is an optional interface for storage backends that produce
// an exported file once a session ends.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
