package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config tunes a Supervisor. Zero values select the defaults.
type Config struct {
	// Timeout bounds the reconnection window and the whole of Connect.
	Timeout time.Duration
	// PollInterval is the WiFi status polling period during Connect.
	PollInterval time.Duration
	// ButtonHold is how long the button must be held to register a press.
	ButtonHold time.Duration
	// Now is the clock Connect measures its deadline with. Defaults to time.Now.
	Now func() time.Time
	// Timer paces the WiFi polling loop. nil uses a real timer.
	Timer backoff.Timer
	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Supervisor runs the connection FSM. It is driven from a single goroutine.
type Supervisor struct {
	wifi   WiFi
	remote Remote
	ind    Indicator
	cfg    Config
	logger *slog.Logger

	state  State
	lostAt time.Time
	button button
}

// New creates an offline Supervisor.
func New(wifi WiFi, remote Remote, ind Indicator, cfg Config) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ButtonHold <= 0 {
		cfg.ButtonHold = DefaultButtonHold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		wifi:   wifi,
		remote: remote,
		ind:    ind,
		cfg:    cfg,
		logger: logger,
		state:  StateOffline,
		button: button{hold: cfg.ButtonHold},
	}
}

// Tick advances the FSM. buttonDown is the current level of the connection
// button; it is sampled on every tick so the hold time is measured even
// while the FSM ignores presses. Only transitions produce events.
func (s *Supervisor) Tick(now time.Time, buttonDown bool) []Event {
	pressed := s.button.update(now, buttonDown)

	switch s.state {
	case StateOffline:
		if pressed {
			return []Event{s.event(now, EventConnectRequested)}
		}

	case StateOnline:
		if !s.linkUp() {
			s.state = StateReconnecting
			s.lostAt = now
			s.ind.StartBlink()
			s.logger.Warn("connection lost, reconnecting", "timeout", s.cfg.Timeout)
			return []Event{s.event(now, EventConnectionLost)}
		}
		if pressed {
			s.Disconnect()
			return []Event{s.event(now, EventDisconnected)}
		}

	case StateReconnecting:
		if pressed {
			s.Disconnect()
			return []Event{s.event(now, EventDisconnected)}
		}
		if now.Sub(s.lostAt) <= s.cfg.Timeout {
			if s.linkUp() {
				s.state = StateOnline
				s.ind.StopBlink()
				s.ind.SetLink(true)
				s.logger.Info("connection restored", "after", now.Sub(s.lostAt))
				return []Event{s.event(now, EventConnected)}
			}
			return nil
		}
		s.Disconnect()
		s.logger.Warn("connection not restored within timeout, going offline", "timeout", s.cfg.Timeout)
		return []Event{s.event(now, EventConnectionTimeout)}
	}

	return nil
}

// Connect joins the WiFi network and performs the remote handshake. Both
// phases share one deadline Timeout after the call. The connection LED
// blinks during the attempt and is solid on success, off on failure.
func (s *Supervisor) Connect(ctx context.Context, creds Credentials) Result {
	if s.state != StateOffline {
		s.Disconnect()
	}

	s.ind.StartBlink()
	s.logger.Info("connecting", "ssid", creds.SSID)

	deadline := s.cfg.Now().Add(s.cfg.Timeout)
	res := s.associate(ctx, creds, deadline)
	if res == ResultConnected {
		res = s.handshake(ctx, deadline)
	}

	s.ind.StopBlink()
	if res != ResultConnected {
		s.remote.Disconnect()
		if err := s.wifi.Disconnect(); err != nil {
			s.logger.Debug("wifi disconnect failed", "error", err)
		}
		s.ind.SetLink(false)
		s.logger.Warn("connect failed", "result", res.String())
		return res
	}

	s.state = StateOnline
	s.ind.SetLink(true)
	s.logger.Info("online", "ssid", creds.SSID)
	return ResultConnected
}

// handshake connects the remote side with whatever time is left before
// deadline.
func (s *Supervisor) handshake(ctx context.Context, deadline time.Time) Result {
	left := deadline.Sub(s.cfg.Now())
	if left <= 0 {
		s.logger.Warn("no time left for the remote handshake")
		return ResultTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, left)
	defer cancel()
	if err := s.remote.Connect(rctx); err != nil {
		s.logger.Warn("remote handshake failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return ResultTimeout
		}
		return ResultFailed
	}
	return ResultConnected
}

var errNotAssociated = errors.New("not associated")

// associate polls the WiFi status at PollInterval until it connects or
// deadline passes.
func (s *Supervisor) associate(ctx context.Context, creds Credentials, deadline time.Time) Result {
	if err := s.wifi.Begin(creds.SSID, creds.Pass); err != nil {
		s.logger.Warn("wifi begin failed", "ssid", creds.SSID, "error", err)
		return ResultFailed
	}

	maxPolls := uint64(s.cfg.Timeout / s.cfg.PollInterval)
	status := WiFiIdle
	op := func() error {
		status = s.wifi.Status()
		if status == WiFiConnected {
			return nil
		}
		err := fmt.Errorf("%w: %s", errNotAssociated, status)
		if !s.cfg.Now().Before(deadline) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.PollInterval), maxPolls),
		ctx,
	)
	if err := backoff.RetryNotifyWithTimer(op, b, nil, s.cfg.Timer); err == nil {
		return ResultConnected
	}

	switch status {
	case WiFiNoSSID:
		return ResultNoSSID
	case WiFiDisconnected:
		return ResultAuthFailed
	default:
		return ResultFailed
	}
}

// Disconnect leaves the network and goes offline. Safe to call in any state.
func (s *Supervisor) Disconnect() {
	s.remote.Disconnect()
	if err := s.wifi.Disconnect(); err != nil {
		s.logger.Debug("wifi disconnect failed", "error", err)
	}
	s.ind.StopBlink()
	s.ind.SetLink(false)
	s.state = StateOffline
}

// Reset brings the supervisor back to its initial offline state.
func (s *Supervisor) Reset() {
	s.Disconnect()
	s.button = button{hold: s.cfg.ButtonHold}
}

// State returns the current FSM state.
func (s *Supervisor) State() State {
	return s.state
}

// Online reports whether the link is fully up.
func (s *Supervisor) Online() bool {
	return s.state == StateOnline
}

// LogEvent records an event at the remote service while online.
func (s *Supervisor) LogEvent(name, description string) error {
	if s.state != StateOnline {
		return ErrOffline
	}
	return s.remote.LogEvent(name, description)
}

// SendData delivers a JSON payload to the remote service while online.
func (s *Supervisor) SendData(ctx context.Context, payload []byte) error {
	if s.state != StateOnline {
		return ErrOffline
	}
	return s.remote.SendJSON(ctx, payload)
}

func (s *Supervisor) linkUp() bool {
	return s.wifi.Status() == WiFiConnected && s.remote.Connected()
}

func (s *Supervisor) event(now time.Time, typ EventType) Event {
	return Event{Timestamp: now, Type: typ, State: s.state}
}

// button registers one press per hold of at least hold duration.
type button struct {
	hold     time.Duration
	released time.Time
	seen     bool
	latched  bool
}

func (b *button) update(now time.Time, down bool) bool {
	if !down {
		b.released = now
		b.seen = true
		b.latched = false
		return false
	}
	if !b.seen {
		// Held since before the first sample: measure from now.
		b.released = now
		b.seen = true
	}
	if !b.latched && now.Sub(b.released) >= b.hold {
		b.latched = true
		return true
	}
	return false
}
