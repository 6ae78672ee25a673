// Package v1 contains the v1 export format for recorded truck sessions.
package v1

import "time"

// FormatVersion is written into every export.
const FormatVersion = "1"

// Export is the root JSON structure for v1 format
type Export struct {
	Version       string    `json:"version"`
	SessionID     string    `json:"sessionId"`
	TruckID       string    `json:"truckId"`
	StartTime     time.Time `json:"startTime"`
	EndFrame      uint      `json:"endFrame"`
	Duration      float64   `json:"duration"`
	Distance      float64   `json:"distance"`
	Wheelbase     float64   `json:"wheelbase"`
	MaxSteer      float64   `json:"maxSteer"`
	Origin        Origin    `json:"origin"`
	Track         string    `json:"track"` // WKT LineString in local metres
	States        []State   `json:"states"`
	DriveRequests []Request `json:"driveRequests"`
}

// Origin is the WGS84 anchor of the local frame
type Origin struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// State is one sampled truck pose
type State struct {
	Frame    uint      `json:"frame"`
	Time     time.Time `json:"time"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Lon      float64   `json:"lon"`
	Lat      float64   `json:"lat"`
	Heading  float64   `json:"heading"`
	Speed    float64   `json:"speed"`
	Steer    float64   `json:"steer"`
	Segments int       `json:"segments"`
}

// Request is one destination request. Path is empty for rejected requests.
type Request struct {
	Frame    uint       `json:"frame"`
	Time     time.Time  `json:"time"`
	From     [3]float64 `json:"from"` // x, y, heading
	To       [3]float64 `json:"to"`
	Accepted bool       `json:"accepted"`
	Segments int        `json:"segments"`
	Length   float64    `json:"length"`
	Path     string     `json:"path"` // WKT through segment endpoints
}
