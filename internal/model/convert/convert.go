package convert

import (
	"encoding/json"

	"github.com/golang/geo/r2"

	"github.com/towsim/pushback/internal/model"
	"github.com/towsim/pushback/pkg/core"
)

// SessionToCore converts a GORM Session to a core.Session.
// GORM Session.UUID maps to core Session.ID.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.UUID,
		TruckID:   s.TruckID,
		StartTime: s.StartTime,
		Geometry:  core.Geometry{Wheelbase: s.Wheelbase, MaxSteer: s.MaxSteer},
		OriginLat: s.OriginLat,
		OriginLon: s.OriginLon,
	}
}

// TruckStateToCore converts a GORM TruckState to a core.TruckState.
func TruckStateToCore(s model.TruckState, sessionUUID string) core.TruckState {
	return core.TruckState{
		SessionID:    sessionUUID,
		Time:         s.Time,
		CaptureFrame: s.CaptureFrame,
		Position:     r2.Point{X: s.X, Y: s.Y},
		Heading:      s.Heading,
		Speed:        s.Speed,
		Steer:        s.Steer,
		Segments:     s.Segments,
	}
}

// DriveRequestToCore converts a GORM DriveRequest to a core.DriveRequest.
// Malformed segment JSON yields no segments.
func DriveRequestToCore(r model.DriveRequest, sessionUUID string) core.DriveRequest {
	var segs []core.Segment
	if len(r.Segments) > 0 {
		if err := json.Unmarshal(r.Segments, &segs); err != nil {
			segs = nil
		}
	}
	if len(segs) == 0 {
		segs = nil
	}

	return core.DriveRequest{
		SessionID:    sessionUUID,
		Time:         r.Time,
		CaptureFrame: r.CaptureFrame,
		FromPos:      r2.Point{X: r.FromX, Y: r.FromY},
		FromHdg:      r.FromHdg,
		ToPos:        r2.Point{X: r.ToX, Y: r.ToY},
		ToHdg:        r.ToHdg,
		Accepted:     r.Accepted,
		Segments:     segs,
	}
}
