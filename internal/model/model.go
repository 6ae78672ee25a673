package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&TruckState{},
	&DriveRequest{},
}

// Session is one recorded truck run
type Session struct {
	gorm.Model
	UUID      string       `json:"uuid" gorm:"size:36;uniqueIndex:idx_session_uuid"`
	TruckID   string       `json:"truckId" gorm:"size:36"`
	StartTime time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   sql.NullTime `json:"endTime"`
	Wheelbase float64      `json:"wheelbase"`
	MaxSteer  float64      `json:"maxSteer"`
	OriginLat float64      `json:"originLat"`
	OriginLon float64      `json:"originLon"`

	TruckStates   []TruckState
	DriveRequests []DriveRequest
}

func (*Session) TableName() string {
	return "sessions"
}

// TruckState is one sampled tick of the integrator
type TruckState struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_truckstate_session_id"`
	Session      Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_truckstate_capture_frame"`

	X        float64 `json:"x"`        // metres east
	Y        float64 `json:"y"`        // metres north
	Heading  float64 `json:"heading"`  // compass degrees
	Speed    float64 `json:"speed"`    // m/s, negative when reversing
	Steer    float64 `json:"steer"`    // degrees, positive to the right
	Segments int     `json:"segments"` // queued path segments
}

func (*TruckState) TableName() string {
	return "truck_states"
}

// DriveRequest is one destination request and the segments planned for it
type DriveRequest struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_driverequest_session_id"`
	Session      Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame"`

	FromX    float64        `json:"fromX"`
	FromY    float64        `json:"fromY"`
	FromHdg  float64        `json:"fromHdg"`
	ToX      float64        `json:"toX"`
	ToY      float64        `json:"toY"`
	ToHdg    float64        `json:"toHdg"`
	Accepted bool           `json:"accepted"`
	Path     string         `json:"path"` // WKT LineString through segment endpoints
	Segments datatypes.JSON `json:"segments"`
}

func (*DriveRequest) TableName() string {
	return "drive_requests"
}
