package v1

import (
	"github.com/golang/geo/r2"

	"github.com/towsim/pushback/internal/geo"
	"github.com/towsim/pushback/internal/model/convert"
	"github.com/towsim/pushback/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session       *core.Session
	States        []core.TruckState
	DriveRequests []core.DriveRequest
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	s := data.Session
	origin := geo.Origin{Lat: s.OriginLat, Lon: s.OriginLon}

	export := Export{
		Version:       FormatVersion,
		SessionID:     s.ID,
		TruckID:       s.TruckID,
		StartTime:     s.StartTime,
		Wheelbase:     s.Geometry.Wheelbase,
		MaxSteer:      s.Geometry.MaxSteer,
		Origin:        Origin{Lat: s.OriginLat, Lon: s.OriginLon},
		States:        make([]State, 0, len(data.States)),
		DriveRequests: make([]Request, 0, len(data.DriveRequests)),
	}

	trace := make([]r2.Point, 0, len(data.States))
	for i, st := range data.States {
		lon, lat := origin.ToWGS84(st.Position)
		export.States = append(export.States, State{
			Frame:    st.CaptureFrame,
			Time:     st.Time,
			X:        st.Position.X,
			Y:        st.Position.Y,
			Lon:      lon,
			Lat:      lat,
			Heading:  st.Heading,
			Speed:    st.Speed,
			Steer:    st.Steer,
			Segments: st.Segments,
		})
		if st.CaptureFrame > export.EndFrame {
			export.EndFrame = st.CaptureFrame
		}
		if i > 0 {
			export.Distance += st.Position.Sub(trace[len(trace)-1]).Norm()
		}
		trace = append(trace, st.Position)
	}
	if n := len(data.States); n > 1 {
		export.Duration = data.States[n-1].Time.Sub(data.States[0].Time).Seconds()
	}
	export.Track = geo.TrackWKT(trace)

	for _, r := range data.DriveRequests {
		req := Request{
			Frame:    r.CaptureFrame,
			Time:     r.Time,
			From:     [3]float64{r.FromPos.X, r.FromPos.Y, r.FromHdg},
			To:       [3]float64{r.ToPos.X, r.ToPos.Y, r.ToHdg},
			Accepted: r.Accepted,
			Segments: len(r.Segments),
		}
		for _, seg := range r.Segments {
			req.Length += seg.Length
		}
		if len(r.Segments) > 0 {
			req.Path = geo.TrackWKT(convert.SegmentPath(r.Segments))
		}
		export.DriveRequests = append(export.DriveRequests, req)
	}

	return export
}

// Metadata summarizes an export for upload.
func (e Export) Metadata() core.UploadMetadata {
	return core.UploadMetadata{
		SessionID: e.SessionID,
		TruckID:   e.TruckID,
		Duration:  e.Duration,
		Distance:  e.Distance,
		EndFrame:  e.EndFrame,
	}
}
