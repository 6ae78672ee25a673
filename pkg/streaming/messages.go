// Package streaming defines the JSON messages of the live session stream.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/towsim/pushback/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTruckState   = "truck_state"
	TypeDriveRequest = "drive_request"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload describes the truck being streamed.
type StartSessionPayload struct {
	SessionID string    `json:"sessionId"`
	TruckID   string    `json:"truckId"`
	StartTime time.Time `json:"startTime"`
	Wheelbase float64   `json:"wheelbase"`
	MaxSteer  float64   `json:"maxSteer"`
	OriginLat float64   `json:"originLat"`
	OriginLon float64   `json:"originLon"`
}

// NewStartSessionPayload builds the payload for s.
func NewStartSessionPayload(s *core.Session) StartSessionPayload {
	return StartSessionPayload{
		SessionID: s.ID,
		TruckID:   s.TruckID,
		StartTime: s.StartTime,
		Wheelbase: s.Geometry.Wheelbase,
		MaxSteer:  s.Geometry.MaxSteer,
		OriginLat: s.OriginLat,
		OriginLon: s.OriginLon,
	}
}

// TruckStatePayload is one sampled pose.
type TruckStatePayload struct {
	Frame    uint      `json:"frame"`
	Time     time.Time `json:"time"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Heading  float64   `json:"heading"`
	Speed    float64   `json:"speed"`
	Steer    float64   `json:"steer"`
	Segments int       `json:"segments"`
}

// NewTruckStatePayload builds the payload for s.
func NewTruckStatePayload(s *core.TruckState) TruckStatePayload {
	return TruckStatePayload{
		Frame:    s.CaptureFrame,
		Time:     s.Time,
		X:        s.Position.X,
		Y:        s.Position.Y,
		Heading:  s.Heading,
		Speed:    s.Speed,
		Steer:    s.Steer,
		Segments: s.Segments,
	}
}

// DriveRequestPayload is one destination request with its planned segments.
type DriveRequestPayload struct {
	Frame    uint           `json:"frame"`
	Time     time.Time      `json:"time"`
	From     [3]float64     `json:"from"` // x, y, heading
	To       [3]float64     `json:"to"`
	Accepted bool           `json:"accepted"`
	Segments []core.Segment `json:"segments"`
}

// NewDriveRequestPayload builds the payload for r.
func NewDriveRequestPayload(r *core.DriveRequest) DriveRequestPayload {
	segs := r.Segments
	if segs == nil {
		segs = []core.Segment{}
	}
	return DriveRequestPayload{
		Frame:    r.CaptureFrame,
		Time:     r.Time,
		From:     [3]float64{r.FromPos.X, r.FromPos.Y, r.FromHdg},
		To:       [3]float64{r.ToPos.X, r.ToPos.Y, r.ToHdg},
		Accepted: r.Accepted,
		Segments: segs,
	}
}
