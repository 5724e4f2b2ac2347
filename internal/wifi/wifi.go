// Package wifi joins WiFi networks through NetworkManager's nmcli.
package wifi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/magnet-door/internal/link"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DefaultWatchInterval is how often Watch refreshes the device state.
const DefaultWatchInterval = time.Second

// Station is a link.WiFi backed by nmcli. Begin and Disconnect hand nmcli
// to goroutines and Status only reads the cached state, so none of them
// wait on a subprocess.
type Station struct {
	iface   string
	run     Runner
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex

	// seq changes with every state change; results computed under an older
	// seq are dropped.
	seq        uint64
	connecting bool
	attempt    link.WiFiStatus // outcome of the last Begin, WiFiIdle while pending
	device     link.WiFiStatus // last known device state
	cancel     context.CancelFunc
	leaving    chan struct{} // closed once the last nmcli disconnect returned
}

// NewStation creates a station for the given interface. A nil run uses
// ExecRunner.
func NewStation(iface string, run Runner, timeout time.Duration, logger *slog.Logger) *Station {
	if run == nil {
		run = ExecRunner
	}
	if timeout <= 0 {
		timeout = link.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Station{
		iface:   iface,
		run:     run,
		timeout: timeout,
		logger:  logger,
		attempt: link.WiFiIdle,
		device:  link.WiFiIdle,
	}
}

// Begin starts joining ssid and returns immediately. A pending attempt is
// abandoned; its outcome is never reported.
func (s *Station) Begin(ssid, pass string) error {
	if ssid == "" {
		return fmt.Errorf("begin: empty SSID")
	}

	args := []string{"--wait", strconv.Itoa(int(s.timeout / time.Second)), "device", "wifi", "connect", ssid}
	if pass != "" {
		args = append(args, "password", pass)
	}
	if s.iface != "" {
		args = append(args, "ifname", s.iface)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout+5*time.Second)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.seq++
	mine := s.seq
	s.connecting = true
	s.attempt = link.WiFiIdle
	leaving := s.leaving
	s.mu.Unlock()

	go func() {
		defer cancel()
		if leaving != nil {
			select {
			case <-leaving:
			case <-ctx.Done():
			}
		}
		out, err := s.run(ctx, "nmcli", args...)
		st := link.WiFiConnected
		if err != nil {
			st = classifyConnectError(out)
			s.logger.Debug("nmcli connect failed", "ssid", ssid, "output", strings.TrimSpace(string(out)), "error", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.seq != mine {
			s.logger.Debug("dropping superseded connect result", "ssid", ssid, "status", st.String())
			return
		}
		s.seq++
		s.connecting = false
		s.attempt = st
		if st == link.WiFiConnected {
			s.device = st
		}
	}()
	return nil
}

// Status reports the association state from memory. A failed attempt is
// reported until the next Begin; otherwise the cached device state decides.
func (s *Station) Status() link.WiFiStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connecting {
		return link.WiFiIdle
	}
	if s.attempt != link.WiFiIdle && s.attempt != link.WiFiConnected {
		return s.attempt
	}
	return s.device
}

// Watch refreshes the cached device state every interval until ctx ends.
func (s *Station) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Station) refresh(ctx context.Context) {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	args := []string{"-t", "-f", "GENERAL.STATE", "device", "show"}
	if s.iface != "" {
		args = append(args, s.iface)
	}
	out, err := s.run(rctx, "nmcli", args...)
	if ctx.Err() != nil {
		return
	}
	st := link.WiFiFailed
	if err == nil {
		st = parseDeviceState(out)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.device = st
	}
}

// Disconnect abandons a pending attempt and leaves the network. The nmcli
// call runs in the background; the next Begin waits for it.
func (s *Station) Disconnect() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	s.connecting = false
	s.attempt = link.WiFiIdle
	s.device = link.WiFiDisconnected
	if s.iface == "" {
		s.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	s.leaving = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if out, err := s.run(ctx, "nmcli", "device", "disconnect", s.iface); err != nil {
			s.logger.Debug("nmcli disconnect failed", "iface", s.iface, "output", string(bytes.TrimSpace(out)), "error", err)
		}
	}()
	return nil
}

// parseDeviceState maps "GENERAL.STATE:100 (connected)" to a status.
func parseDeviceState(out []byte) link.WiFiStatus {
	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimPrefix(line, "GENERAL.STATE:")
	code, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return link.WiFiFailed
	}
	switch {
	case n == 100:
		return link.WiFiConnected
	case n == 120:
		return link.WiFiFailed
	case n >= 40 && n < 100:
		// prepare, config, need-auth, ip-config and friends
		return link.WiFiIdle
	default:
		return link.WiFiDisconnected
	}
}

// classifyConnectError maps nmcli error output to a status.
func classifyConnectError(out []byte) link.WiFiStatus {
	msg := strings.ToLower(string(out))
	switch {
	case strings.Contains(msg, "no network with ssid"):
		return link.WiFiNoSSID
	case strings.Contains(msg, "secrets were required"),
		strings.Contains(msg, "802-11-wireless-security.psk"),
		strings.Contains(msg, "authentication"):
		return link.WiFiDisconnected
	default:
		return link.WiFiFailed
	}
}
