package logic

import (
	"fmt"
	"time"
)

// step is one edge of the passage FSM. A non-empty anomaly means the
// detection was not allowed in the source state and the FSM falls back to idle.
type step struct {
	next    PassState
	anomaly string
}

// Detections missing from a state's row leave the state unchanged.
var passTable = map[PassState]map[Detection]step{
	PassIdle: {
		DetectOuter: {next: PassStartEntering},
		DetectInner: {next: PassStartLeaving},
	},
	PassStartEntering: {
		DetectBoth:  {next: PassEntering1},
		DetectNone:  {next: PassIdle},
		DetectInner: {next: PassIdle, anomaly: "entering: only inner barrier passed before both were passed"},
	},
	PassEntering1: {
		DetectInner: {next: PassEntering2},
		DetectOuter: {next: PassStartEntering},
		DetectNone:  {next: PassIdle, anomaly: "entering: both barriers were passed, now none"},
	},
	PassEntering2: {
		DetectNone:  {next: PassEntered},
		DetectBoth:  {next: PassEntering1},
		DetectOuter: {next: PassIdle, anomaly: "entering: inner barrier was passed, now only outer"},
	},
	PassStartLeaving: {
		DetectBoth:  {next: PassLeaving1},
		DetectNone:  {next: PassIdle},
		DetectOuter: {next: PassIdle, anomaly: "leaving: only outer barrier passed before both were passed"},
	},
	PassLeaving1: {
		DetectOuter: {next: PassLeaving2},
		DetectInner: {next: PassStartLeaving},
		DetectNone:  {next: PassIdle, anomaly: "leaving: both barriers were passed, now none"},
	},
	PassLeaving2: {
		DetectNone:  {next: PassLeft},
		DetectBoth:  {next: PassLeaving1},
		DetectInner: {next: PassIdle, anomaly: "leaving: outer barrier was passed, now only inner"},
	},
}

// PassageTracker runs the door passing FSM and keeps the room occupancy.
// It assumes only one person passes the door at a time.
type PassageTracker struct {
	state    PassState
	count    int
	capacity int
	counts   EventCounts

	// announced is the full flag as last reported by ROOM_FULL / ROOM_NOT_FULL.
	announced bool
}

// NewPassageTracker creates an idle tracker with an empty room.
// An invalid capacity falls back to DefaultCapacity.
func NewPassageTracker(capacity int) *PassageTracker {
	if !ValidCapacity(capacity) {
		capacity = DefaultCapacity
	}
	return &PassageTracker{state: PassIdle, capacity: capacity}
}

// Tick feeds one detection into the FSM and returns the events it caused.
// Invalid sequences never corrupt the count: they emit SEQUENCE_ANOMALY
// and return the FSM to idle.
func (p *PassageTracker) Tick(det Detection, now time.Time) []Event {
	var events []Event

	if s, ok := passTable[p.state][det]; ok {
		from := p.state
		p.state = s.next
		if s.anomaly != "" {
			p.counts.Anomalies++
			events = append(events, p.event(now, EventSequenceAnomaly,
				fmt.Sprintf("%s (state %s, detection %s)", s.anomaly, from, det)))
		}
	}

	// Entered and Left are resolved in the same tick.
	switch p.state {
	case PassEntered:
		if p.count < p.capacity {
			p.count++
			p.counts.Entered++
			events = append(events, p.event(now, EventPersonEntered, ""))
		} else {
			p.counts.Rejected++
			events = append(events, p.event(now, EventCapacityExceeded, "room is already full"))
		}
		p.state = PassIdle
	case PassLeft:
		if p.count > 0 {
			p.count--
			p.counts.Left++
			events = append(events, p.event(now, EventPersonLeft, ""))
		} else {
			p.counts.Underflow++
			events = append(events, p.event(now, EventUnderflow, "room was already empty"))
		}
		p.state = PassIdle
	}

	return append(events, p.checkFull(now)...)
}

// checkFull emits ROOM_FULL / ROOM_NOT_FULL on the edges of count >= capacity.
func (p *PassageTracker) checkFull(now time.Time) []Event {
	full := p.full()
	if full == p.announced {
		return nil
	}
	p.announced = full
	if full {
		return []Event{p.event(now, EventRoomFull, "")}
	}
	return []Event{p.event(now, EventRoomNotFull, "")}
}

func (p *PassageTracker) event(now time.Time, typ EventType, detail string) Event {
	return Event{
		Timestamp:   now,
		Type:        typ,
		PersonCount: p.count,
		Capacity:    p.capacity,
		Detail:      detail,
	}
}

func (p *PassageTracker) full() bool {
	return p.count >= p.capacity
}

// SetCapacity changes the room capacity. Occupancy reflects it at once;
// the matching edge event is emitted by the next Tick.
func (p *PassageTracker) SetCapacity(n int) error {
	if !ValidCapacity(n) {
		return fmt.Errorf("set capacity %d: %w", n, ErrInvalidCapacity)
	}
	p.capacity = n
	return nil
}

// Reset returns the FSM to idle. The person count is kept.
func (p *PassageTracker) Reset() {
	p.state = PassIdle
}

// State returns the current FSM state.
func (p *PassageTracker) State() PassState {
	return p.state
}

// Occupancy returns the current room load.
func (p *PassageTracker) Occupancy() Occupancy {
	return Occupancy{PersonCount: p.count, Capacity: p.capacity, Full: p.full()}
}

// EventCountsSnapshot returns a copy of the passage counters.
func (p *PassageTracker) EventCountsSnapshot() EventCounts {
	return p.counts
}
