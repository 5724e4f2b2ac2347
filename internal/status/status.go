// Package status provides a thread-safe status tracker for the magnet-door daemon.
// It is written by the controller loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/magnet-door/internal/link"
	"github.com/sweeney/magnet-door/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	DebounceMs     int64
	PostIntervalMs int64
	ConnTimeoutMs  int64
	Broker         string
	HTTPAddr       string
	StoreDriver    string
}

// Telemetry describes the last telemetry post.
type Telemetry struct {
	URL      string
	Breaker  string // circuit breaker state
	LastPost time.Time
	LastErr  string
}

// LastEvent is the most recent door or passage event.
type LastEvent struct {
	Type   logic.EventType
	Time   time.Time
	Detail string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	DoorOpen      bool
	Occupancy     logic.Occupancy
	PassState     logic.PassState
	Counts        logic.EventCounts
	Link          link.State
	SSID          string
	MQTTConnected bool
	Telemetry     Telemetry
	LastEvent     *LastEvent
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Link:      link.StateOffline,
			PassState: logic.PassIdle,
		},
	}
}

// Update sets the door and room state. Called from the controller on every tick.
func (t *Tracker) Update(doorOpen bool, occ logic.Occupancy, pass logic.PassState, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.DoorOpen = doorOpen
	t.snap.Occupancy = occ
	t.snap.PassState = pass
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetLink sets the connection state.
func (t *Tracker) SetLink(state link.State) {
	t.mu.Lock()
	t.snap.Link = state
	t.mu.Unlock()
}

// SetSSID sets the configured WiFi network name.
func (t *Tracker) SetSSID(ssid string) {
	t.mu.Lock()
	t.snap.SSID = ssid
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetTelemetry records the telemetry endpoint state.
func (t *Tracker) SetTelemetry(tel Telemetry) {
	t.mu.Lock()
	t.snap.Telemetry = tel
	t.mu.Unlock()
}

// RecordEvent remembers e as the most recent event.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	t.snap.LastEvent = &LastEvent{Type: e.Type, Time: e.Timestamp, Detail: e.Detail}
	t.mu.Unlock()
}

// SetPostInterval updates the displayed post interval.
func (t *Tracker) SetPostInterval(d time.Duration) {
	t.mu.Lock()
	t.snap.Config.PostIntervalMs = d.Milliseconds()
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastEvent != nil {
		le := *s.LastEvent
		s.LastEvent = &le
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
