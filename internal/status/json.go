package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Door          string         `json:"door"`
	Room          RoomJSON       `json:"room"`
	PassState     string         `json:"pass_state"`
	Link          LinkJSON       `json:"link"`
	Telemetry     TelemetryJSON  `json:"telemetry"`
	LastEvent     *LastEventJSON `json:"last_event,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Counts        CountsJSON     `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// RoomJSON reports the room load.
type RoomJSON struct {
	PersonCount int  `json:"person_count"`
	Capacity    int  `json:"capacity"`
	Full        bool `json:"full"`
}

// LinkJSON reports the connection state.
type LinkJSON struct {
	State         string `json:"state"`
	SSID          string `json:"ssid,omitempty"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Broker        string `json:"broker"`
}

// TelemetryJSON reports the telemetry endpoint.
type TelemetryJSON struct {
	URL      string `json:"url"`
	Breaker  string `json:"breaker,omitempty"`
	LastPost string `json:"last_post,omitempty"`
	LastErr  string `json:"last_error,omitempty"`
}

// LastEventJSON is the most recent door or passage event.
type LastEventJSON struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// CountsJSON is the JSON representation of passage counts.
type CountsJSON struct {
	Entered   int `json:"entered"`
	Left      int `json:"left"`
	Rejected  int `json:"rejected"`
	Underflow int `json:"underflow"`
	Anomalies int `json:"anomalies"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	DebounceMs     int64  `json:"debounce_ms"`
	PostIntervalMs int64  `json:"post_interval_ms"`
	ConnTimeoutMs  int64  `json:"conn_timeout_ms"`
	HTTPAddr       string `json:"http_addr"`
	StoreDriver    string `json:"store_driver"`
}

// DoorString renders the door state.
func DoorString(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}

func buildInner(snap Snapshot) StatusInner {
	pass := string(snap.PassState)
	if pass == "" {
		pass = "UNKNOWN"
	}
	linkState := string(snap.Link)
	if linkState == "" {
		linkState = "UNKNOWN"
	}

	inner := StatusInner{
		Door: DoorString(snap.DoorOpen),
		Room: RoomJSON{
			PersonCount: snap.Occupancy.PersonCount,
			Capacity:    snap.Occupancy.Capacity,
			Full:        snap.Occupancy.Full,
		},
		PassState: pass,
		Link: LinkJSON{
			State:         linkState,
			SSID:          snap.SSID,
			MQTTConnected: snap.MQTTConnected,
			Broker:        snap.Config.Broker,
		},
		Telemetry: TelemetryJSON{
			URL:     snap.Telemetry.URL,
			Breaker: snap.Telemetry.Breaker,
			LastErr: snap.Telemetry.LastErr,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Counts: CountsJSON{
			Entered:   snap.Counts.Entered,
			Left:      snap.Counts.Left,
			Rejected:  snap.Counts.Rejected,
			Underflow: snap.Counts.Underflow,
			Anomalies: snap.Counts.Anomalies,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			DebounceMs:     snap.Config.DebounceMs,
			PostIntervalMs: snap.Config.PostIntervalMs,
			ConnTimeoutMs:  snap.Config.ConnTimeoutMs,
			HTTPAddr:       snap.Config.HTTPAddr,
			StoreDriver:    snap.Config.StoreDriver,
		},
	}
	if !snap.Telemetry.LastPost.IsZero() {
		inner.Telemetry.LastPost = snap.Telemetry.LastPost.UTC().Format(time.RFC3339)
	}
	if snap.LastEvent != nil {
		inner.LastEvent = &LastEventJSON{
			Type:      string(snap.LastEvent.Type),
			Timestamp: snap.LastEvent.Time.UTC().Format(time.RFC3339),
			Detail:    snap.LastEvent.Detail,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
