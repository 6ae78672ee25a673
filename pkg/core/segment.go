package core

import "github.com/golang/geo/r2"

// SegmentKind discriminates planned path pieces.
type SegmentKind int

const (
	SegmentStraight SegmentKind = iota
	SegmentTurn
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentStraight:
		return "straight"
	case SegmentTurn:
		return "turn"
	default:
		return "unknown"
	}
}

// Segment is one planned piece of path. Turn segments are circular arcs
// around Center; Right marks clockwise travel.
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	StartPos r2.Point    `json:"startPos"`
	StartHdg float64     `json:"startHdg"`
	EndPos   r2.Point    `json:"endPos"`
	EndHdg   float64     `json:"endHdg"`
	Length   float64     `json:"length"`

	Center r2.Point `json:"center,omitzero"`
	Radius float64  `json:"radius,omitempty"`
	Right  bool     `json:"right,omitempty"`
}
