package logic

import "time"

// DefaultDoorDebounce is the minimum interval between accepted door events.
const DefaultDoorDebounce = 1000 * time.Millisecond

// DoorMonitor tracks the debounced open/closed state of the magnetic switch.
type DoorMonitor struct {
	debounceDuration time.Duration
	open             bool
	lastEvent        time.Time
	accepted         bool // whether any event has been accepted yet
}

// NewDoorMonitor creates a monitor that starts in the closed state.
func NewDoorMonitor(debounceDuration time.Duration) *DoorMonitor {
	return &DoorMonitor{debounceDuration: debounceDuration}
}

// Process takes a switch reading and returns any events that should be emitted.
// A reading that differs from the current state is accepted only if the
// debounce interval has passed since the last accepted event; rejected
// readings do not restart the interval. personCount is the occupancy at the
// time of the reading and is used to warn about persons left in a closed room.
func (d *DoorMonitor) Process(open bool, now time.Time, personCount int) []Event {
	if open == d.open {
		return nil
	}
	if d.accepted && now.Sub(d.lastEvent) < d.debounceDuration {
		return nil
	}

	d.open = open
	d.lastEvent = now
	d.accepted = true

	if open {
		return []Event{{Timestamp: now, Type: EventDoorOpened, PersonCount: personCount}}
	}

	events := []Event{{Timestamp: now, Type: EventDoorClosed, PersonCount: personCount}}
	if personCount > 0 {
		events = append(events, Event{
			Timestamp:   now,
			Type:        EventPersonsStillInRoom,
			PersonCount: personCount,
			Detail:      "there are still persons in the room",
		})
	}
	return events
}

// IsOpen returns the current debounced door state.
func (d *DoorMonitor) IsOpen() bool {
	return d.open
}

// LastEvent returns the time of the last accepted transition and whether
// there was one.
func (d *DoorMonitor) LastEvent() (time.Time, bool) {
	return d.lastEvent, d.accepted
}
