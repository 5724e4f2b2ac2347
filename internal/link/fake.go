package link

import (
	"context"
	"time"
)

// ImmediateTimer is a backoff.Timer that fires as soon as it is started.
// It lets tests run the bounded polling loop without sleeping.
type ImmediateTimer struct {
	// Waits records every requested wait.
	Waits []time.Duration
	c     chan time.Time
}

// Start records d and fires immediately.
func (t *ImmediateTimer) Start(d time.Duration) {
	t.Waits = append(t.Waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

// Stop does nothing.
func (t *ImmediateTimer) Stop() {}

// C returns the fire channel.
func (t *ImmediateTimer) C() <-chan time.Time {
	return t.c
}

// Total returns the sum of all requested waits.
func (t *ImmediateTimer) Total() time.Duration {
	var sum time.Duration
	for _, w := range t.Waits {
		sum += w
	}
	return sum
}

// FakeWiFi is a scripted WiFi station.
type FakeWiFi struct {
	// Statuses is returned by successive Status calls; the last entry repeats.
	Statuses []WiFiStatus
	// BeginError, if set, will be returned by Begin.
	BeginError error

	index       int
	BeginCalls  int
	StatusCalls int
	Disconnects int
	SSID, Pass  string
}

// Begin records the credentials.
func (f *FakeWiFi) Begin(ssid, pass string) error {
	f.BeginCalls++
	if f.BeginError != nil {
		return f.BeginError
	}
	f.SSID, f.Pass = ssid, pass
	return nil
}

// Status returns the next scripted status, or WiFiIdle when none are set.
func (f *FakeWiFi) Status() WiFiStatus {
	f.StatusCalls++
	if len(f.Statuses) == 0 {
		return WiFiIdle
	}
	s := f.Statuses[f.index]
	if f.index < len(f.Statuses)-1 {
		f.index++
	}
	return s
}

// SetStatus replaces the script with a single repeating status.
func (f *FakeWiFi) SetStatus(s WiFiStatus) {
	f.Statuses = []WiFiStatus{s}
	f.index = 0
}

// Disconnect counts calls.
func (f *FakeWiFi) Disconnect() error {
	f.Disconnects++
	return nil
}

// LoggedEvent is one event recorded by FakeRemote.
type LoggedEvent struct {
	Name        string
	Description string
}

// FakeRemote records remote calls.
type FakeRemote struct {
	// Up controls the return value of Connected.
	Up bool
	// ConnectError, if set, will be returned by Connect.
	ConnectError error
	// SendError, if set, will be returned by SendJSON.
	SendError error
	// Block makes Connect wait for its context to end.
	Block bool

	ConnectCalls int
	Disconnects  int
	Events       []LoggedEvent
	Payloads     [][]byte

	// Budget is the time the last Connect was given by its context, or zero
	// when the context had no deadline.
	Budget time.Duration
}

// Connect sets Up unless ConnectError is set.
func (f *FakeRemote) Connect(ctx context.Context) error {
	f.ConnectCalls++
	f.Budget = 0
	if dl, ok := ctx.Deadline(); ok {
		f.Budget = time.Until(dl)
	}
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.Up = true
	return nil
}

// Connected returns Up.
func (f *FakeRemote) Connected() bool {
	return f.Up
}

// Disconnect clears Up.
func (f *FakeRemote) Disconnect() {
	f.Disconnects++
	f.Up = false
}

// LogEvent records the event.
func (f *FakeRemote) LogEvent(name, description string) error {
	f.Events = append(f.Events, LoggedEvent{Name: name, Description: description})
	return nil
}

// SendJSON records the payload.
func (f *FakeRemote) SendJSON(ctx context.Context, payload []byte) error {
	if f.SendError != nil {
		return f.SendError
	}
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// FakeIndicator records LED control calls.
type FakeIndicator struct {
	Blinking    bool
	BlinkStarts int
	BlinkStops  int
	LinkOn      bool
}

// StartBlink marks the blink task as running.
func (f *FakeIndicator) StartBlink() {
	if !f.Blinking {
		f.BlinkStarts++
	}
	f.Blinking = true
}

// StopBlink marks the blink task as stopped.
func (f *FakeIndicator) StopBlink() {
	if f.Blinking {
		f.BlinkStops++
	}
	f.Blinking = false
}

// SetLink records the solid LED state.
func (f *FakeIndicator) SetLink(on bool) {
	f.LinkOn = on
}
