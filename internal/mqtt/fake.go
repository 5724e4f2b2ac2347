package mqtt

import "context"

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Events contains all event log entries that were published.
	Events []Event

	// Payloads contains the JSON payloads of the published events.
	Payloads [][]byte

	// Telemetry contains all published telemetry payloads.
	Telemetry [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// PublishError, if set, will be returned by every Publish method.
	PublishError error

	// Connected controls the return value of IsConnected.
	Connected bool

	ConnectCalls int
	Disconnects  int
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Connect marks the fake as connected unless ConnectError is set.
func (f *FakePublisher) Connect(ctx context.Context) error {
	f.ConnectCalls++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Connected = true
	return nil
}

// PublishEvent records the event.
func (f *FakePublisher) PublishEvent(event Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishTelemetry records the payload.
func (f *FakePublisher) PublishTelemetry(payload []byte) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Telemetry = append(f.Telemetry, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Disconnect marks the fake as disconnected.
func (f *FakePublisher) Disconnect() {
	f.Disconnects++
	f.Connected = false
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages and errors.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
