// pkg/core/events.go
package core

import (
	"time"

	"github.com/golang/geo/r2"
)

// DriveRequest records one destination request and what the planner made of it.
type DriveRequest struct {
	SessionID    string
	Time         time.Time
	CaptureFrame uint
	FromPos      r2.Point
	FromHdg      float64
	ToPos        r2.Point
	ToHdg        float64
	Accepted     bool
	Segments     []Segment
}
