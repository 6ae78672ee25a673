// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/golang/geo/r2"
	"gorm.io/datatypes"

	"github.com/towsim/pushback/internal/geo"
	"github.com/towsim/pushback/internal/model"
	"github.com/towsim/pushback/pkg/core"
)

// segmentsToJSON converts planned segments to datatypes.JSON for DB storage.
func segmentsToJSON(segs []core.Segment) datatypes.JSON {
	if len(segs) == 0 {
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(segs)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// SegmentPath returns the start of the first segment followed by the end of
// every segment. Arcs are represented by their chord.
func SegmentPath(segs []core.Segment) []r2.Point {
	if len(segs) == 0 {
		return nil
	}
	pts := make([]r2.Point, 0, len(segs)+1)
	pts = append(pts, segs[0].StartPos)
	for _, s := range segs {
		pts = append(pts, s.EndPos)
	}
	return pts
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to GORM Session.UUID.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		UUID:      s.ID,
		TruckID:   s.TruckID,
		StartTime: s.StartTime,
		EndTime:   sql.NullTime{},
		Wheelbase: s.Geometry.Wheelbase,
		MaxSteer:  s.Geometry.MaxSteer,
		OriginLat: s.OriginLat,
		OriginLon: s.OriginLon,
	}
}

// CoreToTruckState converts a core.TruckState to a GORM model.TruckState.
func CoreToTruckState(s core.TruckState, sessionID uint) model.TruckState {
	return model.TruckState{
		Time:         s.Time,
		SessionID:    sessionID,
		CaptureFrame: s.CaptureFrame,
		X:            s.Position.X,
		Y:            s.Position.Y,
		Heading:      s.Heading,
		Speed:        s.Speed,
		Steer:        s.Steer,
		Segments:     s.Segments,
	}
}

// CoreToDriveRequest converts a core.DriveRequest to a GORM model.DriveRequest.
func CoreToDriveRequest(r core.DriveRequest, sessionID uint) model.DriveRequest {
	return model.DriveRequest{
		Time:         r.Time,
		SessionID:    sessionID,
		CaptureFrame: r.CaptureFrame,
		FromX:        r.FromPos.X,
		FromY:        r.FromPos.Y,
		FromHdg:      r.FromHdg,
		ToX:          r.ToPos.X,
		ToY:          r.ToPos.Y,
		ToHdg:        r.ToHdg,
		Accepted:     r.Accepted,
		Path:         geo.TrackWKT(SegmentPath(r.Segments)),
		Segments:     segmentsToJSON(r.Segments),
	}
}
