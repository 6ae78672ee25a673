// pkg/core/session.go
package core

import (
	"errors"
	"time"
)

// ErrNoSession is returned by recorders when no session is active.
var ErrNoSession = errors.New("no active session")

// Session represents one recorded truck run
type Session struct {
	ID        string // UUID
	TruckID   string
	StartTime time.Time
	Geometry  Geometry
	OriginLat float64
	OriginLon float64
}

// UploadMetadata describes an exported session file
type UploadMetadata struct {
	SessionID string
	TruckID   string
	Duration  float64 // seconds between first and last sample
	Distance  float64 // metres travelled along the sampled trace
	EndFrame  uint
}
