// Package logic contains the pure state machines of the door controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"time"
)

// Detection is the combined classification of both light barriers.
type Detection int

const (
	DetectNone  Detection = iota // no barrier interrupted
	DetectOuter                  // only the outer barrier interrupted
	DetectInner                  // only the inner barrier interrupted
	DetectBoth                   // both barriers interrupted
)

func (d Detection) String() string {
	switch d {
	case DetectNone:
		return "NONE"
	case DetectOuter:
		return "OUTER"
	case DetectInner:
		return "INNER"
	case DetectBoth:
		return "BOTH"
	}
	return "UNKNOWN"
}

// PassState is a state of the door passing FSM.
type PassState string

const (
	PassIdle          PassState = "IDLE"
	PassStartEntering PassState = "START_ENTERING"
	PassEntering1     PassState = "ENTERING_1"
	PassEntering2     PassState = "ENTERING_2"
	PassEntered       PassState = "ENTERED"
	PassStartLeaving  PassState = "START_LEAVING"
	PassLeaving1      PassState = "LEAVING_1"
	PassLeaving2      PassState = "LEAVING_2"
	PassLeft          PassState = "LEFT"
)

// EventType identifies something the door or passage FSM observed.
type EventType string

const (
	EventPersonEntered      EventType = "PERSON_ENTERED"
	EventPersonLeft         EventType = "PERSON_LEFT"
	EventCapacityExceeded   EventType = "CAPACITY_EXCEEDED"
	EventUnderflow          EventType = "UNDERFLOW"
	EventSequenceAnomaly    EventType = "SEQUENCE_ANOMALY"
	EventRoomFull           EventType = "ROOM_FULL"
	EventRoomNotFull        EventType = "ROOM_NOT_FULL"
	EventDoorOpened         EventType = "DOOR_OPENED"
	EventDoorClosed         EventType = "DOOR_CLOSED"
	EventPersonsStillInRoom EventType = "PERSONS_STILL_IN_ROOM"
)

// Event is emitted by a Tick/Process call.
type Event struct {
	Timestamp   time.Time
	Type        EventType
	PersonCount int
	Capacity    int
	// Detail carries the anomaly reason for SEQUENCE_ANOMALY and the
	// rejected direction for CAPACITY_EXCEEDED/UNDERFLOW.
	Detail string
}

// Occupancy is the room load at a point in time.
type Occupancy struct {
	PersonCount int
	Capacity    int
	Full        bool
}

// EventCounts tracks the number of passage outcomes since startup.
type EventCounts struct {
	Entered   int
	Left      int
	Rejected  int // entries refused because the room was full
	Underflow int
	Anomalies int
}

// Capacity bounds.
const (
	MinCapacity     = 1
	MaxCapacity     = 255
	DefaultCapacity = 5
)

// ErrInvalidCapacity is returned for a capacity outside MinCapacity..MaxCapacity.
var ErrInvalidCapacity = errors.New("capacity out of range 1..255")

// ValidCapacity reports whether n is an acceptable room capacity.
func ValidCapacity(n int) bool {
	return n >= MinCapacity && n <= MaxCapacity
}
