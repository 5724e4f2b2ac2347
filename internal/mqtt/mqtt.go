// Package mqtt publishes the controller's remote event log and telemetry
// to an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TopicEvents is the MQTT topic for the remote event log.
const TopicEvents = "building/magnet-door/events"

// TopicTelemetry is the MQTT topic for people count telemetry.
const TopicTelemetry = "building/magnet-door/telemetry"

// TopicSystem is the MQTT topic for availability and lifecycle events.
const TopicSystem = "building/magnet-door/system"

// Publisher publishes controller messages to MQTT.
type Publisher interface {
	// Connect performs the broker handshake. It honors ctx.
	Connect(ctx context.Context) error

	// PublishEvent sends a named event to the event log.
	// Returns error if publishing fails (should not crash the process).
	PublishEvent(event Event) error

	// PublishTelemetry sends a telemetry payload as is.
	PublishTelemetry(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Disconnect closes the broker session. Safe to call when not connected.
	Disconnect()

	ConnectionStatus
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is one entry of the remote event log.
type Event struct {
	ID          string
	Timestamp   time.Time
	Name        string // e.g. "door_opened", "room_full"
	Description string
}

// NewEvent creates an event with a fresh ID.
func NewEvent(name, description string, ts time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Timestamp:   ts,
		Name:        name,
		Description: description,
	}
}

// SystemEvent represents a system lifecycle event (e.g., ONLINE, OFFLINE, SHUTDOWN).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "ONLINE", "OFFLINE", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for the event log.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload contains the event details.
type EventPayload struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FormatPayload creates the JSON payload for an event log entry.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Event: EventPayload{
			ID:          event.ID,
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Name:        event.Name,
			Description: event.Description,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
