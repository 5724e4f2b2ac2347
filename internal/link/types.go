// Package link supervises the network connection of the controller: WiFi
// association, the remote service handshake, the reconnect button and the
// bounded reconnection window after a connection loss.
package link

import (
	"context"
	"errors"
	"time"
)

// State is the state of the connection FSM.
type State string

const (
	StateOffline      State = "OFFLINE"
	StateOnline       State = "ONLINE"
	StateReconnecting State = "RECONNECTING"
)

// EventType identifies a connection FSM transition.
type EventType string

const (
	EventConnectRequested  EventType = "CONNECT_REQUESTED"
	EventConnected         EventType = "CONNECTED"
	EventConnectionLost    EventType = "CONNECTION_LOST"
	EventConnectionTimeout EventType = "CONNECTION_TIMEOUT"
	EventDisconnected      EventType = "DISCONNECTED"
)

// Event is a connection FSM transition returned by Tick.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State // state after the transition
}

// Result is the outcome of a Connect attempt.
type Result int

const (
	ResultConnected Result = iota
	ResultNoSSID           // the configured SSID is not in range
	ResultAuthFailed       // association was refused
	ResultFailed           // association failed for another reason
	ResultTimeout          // the remote service did not answer within the timeout
)

func (r Result) String() string {
	switch r {
	case ResultConnected:
		return "connected"
	case ResultNoSSID:
		return "no SSID available"
	case ResultAuthFailed:
		return "WiFi authentication failed"
	case ResultFailed:
		return "WiFi connection failed"
	case ResultTimeout:
		return "connection timeout"
	}
	return "unknown"
}

// WiFiStatus is the association state reported by the WiFi station.
type WiFiStatus int

const (
	WiFiIdle WiFiStatus = iota
	WiFiConnected
	WiFiNoSSID
	WiFiDisconnected // associated network refused us, typically bad credentials
	WiFiFailed
)

func (s WiFiStatus) String() string {
	switch s {
	case WiFiIdle:
		return "idle"
	case WiFiConnected:
		return "connected"
	case WiFiNoSSID:
		return "no-ssid"
	case WiFiDisconnected:
		return "disconnected"
	case WiFiFailed:
		return "failed"
	}
	return "unknown"
}

// Credentials are the WiFi network name and password.
type Credentials struct {
	SSID string
	Pass string
}

// WiFi is the station interface used to join a network.
type WiFi interface {
	// Begin starts association and returns without waiting for it.
	Begin(ssid, pass string) error
	// Status polls the association state.
	Status() WiFiStatus
	// Disconnect leaves the network.
	Disconnect() error
}

// Remote is the remote service the controller reports to.
type Remote interface {
	// Connect performs the service handshake. It must honor ctx.
	Connect(ctx context.Context) error
	// Connected reports whether the service session is up.
	Connected() bool
	// Disconnect closes the session. Safe to call when not connected.
	Disconnect()
	// LogEvent records a named event with a description.
	LogEvent(name, description string) error
	// SendJSON delivers a telemetry payload.
	SendJSON(ctx context.Context, payload []byte) error
}

// Indicator drives the connection status LED.
type Indicator interface {
	StartBlink()
	StopBlink()
	SetLink(on bool)
}

// ErrOffline is returned by LogEvent and SendData when not online.
var ErrOffline = errors.New("link is not online")

// Defaults.
const (
	DefaultTimeout      = 20000 * time.Millisecond
	DefaultPollInterval = 500 * time.Millisecond
	DefaultButtonHold   = 500 * time.Millisecond
)
