// Package controller ties the door and passage state machines, the link
// supervisor and the persisted settings together. It is driven by a single
// goroutine that calls Tick once per poll interval.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/sweeney/magnet-door/internal/console"
	"github.com/sweeney/magnet-door/internal/gpio"
	"github.com/sweeney/magnet-door/internal/history"
	"github.com/sweeney/magnet-door/internal/link"
	"github.com/sweeney/magnet-door/internal/logic"
	"github.com/sweeney/magnet-door/internal/metrics"
	"github.com/sweeney/magnet-door/internal/persist"
	"github.com/sweeney/magnet-door/internal/status"
)

// ErrInvalidArgument is returned for command arguments out of range.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrTooLong is returned for values that do not fit their persisted field.
var ErrTooLong = persist.ErrTooLong

// Post interval bounds.
const (
	MinPostInterval     = 1000 * time.Millisecond
	MaxPostInterval     = 3000 * time.Millisecond
	DefaultPostInterval = 2000 * time.Millisecond
)

// Entrance drives the entrance LEDs.
type Entrance interface {
	SetEntrance(allowed bool)
}

// URLSetter receives the telemetry server URL when it changes.
type URLSetter interface {
	SetURL(url string)
}

// Deps are the collaborators of a Controller. Board, Entrance, Link and
// Store are required; the rest may be nil.
type Deps struct {
	Board    gpio.Reader
	Entrance Entrance
	Link     *link.Supervisor
	Store    persist.Store
	Uplink   URLSetter
	Metrics  *metrics.Metrics
	Tracker  *status.Tracker
	History  history.OccupancyRecorder
	Console  io.Writer
	// Level is switched between debug and BaseLevel by Verbose.
	Level     *slog.LevelVar
	BaseLevel slog.Level
	Logger    *slog.Logger
}

// Config tunes a Controller.
type Config struct {
	DoorDebounce time.Duration
	PostInterval time.Duration
	// DefaultURL is used when no server URL has been stored.
	DefaultURL string
}

// Controller runs one access control cycle per Tick.
type Controller struct {
	d      Deps
	cfg    Config
	logger *slog.Logger
	out    io.Writer

	door    *logic.DoorMonitor
	passage *logic.PassageTracker

	creds     link.Credentials
	serverURL string
	verbose   bool

	pending  []console.Command
	lastPost time.Time
}

// New loads the persisted settings and creates a Controller.
func New(d Deps, cfg Config) (*Controller, error) {
	if cfg.DoorDebounce <= 0 {
		cfg.DoorDebounce = logic.DefaultDoorDebounce
	}
	if cfg.PostInterval < MinPostInterval || cfg.PostInterval > MaxPostInterval {
		cfg.PostInterval = DefaultPostInterval
	}
	if d.History == nil {
		d.History = history.Nop{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := d.Console
	if out == nil {
		out = io.Discard
	}

	c := &Controller{
		d:      d,
		cfg:    cfg,
		logger: logger,
		out:    out,
		door:   logic.NewDoorMonitor(cfg.DoorDebounce),
	}

	s, err := persist.LoadSettings(d.Store)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	c.passage = logic.NewPassageTracker(s.RoomCap)
	c.creds = link.Credentials{SSID: s.SSID, Pass: s.Pass}
	c.serverURL = s.ServerURL
	if c.serverURL == "" {
		c.serverURL = cfg.DefaultURL
	}
	if d.Uplink != nil {
		d.Uplink.SetURL(c.serverURL)
	}
	if d.Tracker != nil {
		d.Tracker.SetSSID(c.creds.SSID)
		d.Tracker.SetPostInterval(cfg.PostInterval)
	}

	// Door starts closed: entrance denied.
	d.Entrance.SetEntrance(false)
	c.publishState()

	logger.Info("settings loaded",
		"ssid", c.creds.SSID,
		"capacity", c.passage.Occupancy().Capacity,
		"server_url", c.serverURL,
	)
	return c, nil
}

// Submit queues a command. It is applied at the start of the next Tick.
func (c *Controller) Submit(cmd console.Command) {
	c.pending = append(c.pending, cmd)
}

// Tick runs one cycle. A queued command is applied instead of the sensor
// pass so that commands and sensor processing never share a tick.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if len(c.pending) > 0 {
		cmd := c.pending[0]
		c.pending = c.pending[1:]
		if err := c.ApplyCommand(ctx, cmd); err != nil {
			c.logger.Warn("command failed", "command", cmd.Kind.String(), "error", err)
			c.printf("Error: %v\n", err)
		}
		return
	}

	sample, err := c.d.Board.Read()
	if err != nil {
		c.logger.Error("gpio read error", "error", err)
		return
	}

	events := c.door.Process(sample.DoorOpen(), now, c.passage.Occupancy().PersonCount)
	if c.door.IsOpen() {
		det := logic.Classify(sample.Outer, sample.Inner)
		events = append(events, c.passage.Tick(det, now)...)
	}
	for _, e := range events {
		c.route(e)
	}

	c.telemetry(ctx, now)

	for _, le := range c.d.Link.Tick(now, sample.ButtonDown()) {
		c.onLinkEvent(ctx, le)
	}

	c.publishState()
}

// remoteEvents maps local events to the names and descriptions logged at
// the remote service. Events not listed stay local.
var remoteEvents = map[logic.EventType]struct{ name, desc string }{
	logic.EventDoorOpened:         {"door_opened", "Info: You can come in."},
	logic.EventDoorClosed:         {"door_closed", "Info: Room was closed."},
	logic.EventPersonsStillInRoom: {"persons_in_room", "Alert: There are still persons in the room!"},
	logic.EventRoomFull:           {"room_full", "Alert: Room is full now."},
	logic.EventRoomNotFull:        {"room_not_full", "Info: Room is no longer full."},
}

func (c *Controller) route(e logic.Event) {
	attrs := []any{"type", e.Type, "persons", e.PersonCount}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	switch e.Type {
	case logic.EventSequenceAnomaly, logic.EventUnderflow, logic.EventCapacityExceeded:
		c.logger.Warn("event", attrs...)
	default:
		c.logger.Info("event", attrs...)
	}

	switch e.Type {
	case logic.EventDoorOpened:
		c.d.Entrance.SetEntrance(!c.passage.Occupancy().Full)
	case logic.EventDoorClosed, logic.EventRoomFull:
		c.d.Entrance.SetEntrance(false)
	case logic.EventRoomNotFull:
		c.d.Entrance.SetEntrance(true)
	}

	if r, ok := remoteEvents[e.Type]; ok && c.d.Link.Online() {
		if err := c.d.Link.LogEvent(r.name, r.desc); err != nil {
			c.logger.Warn("remote log failed", "event", r.name, "error", err)
		}
	}

	if c.d.Metrics != nil {
		c.d.Metrics.ObserveEvent(e)
	}
	if c.d.Tracker != nil {
		c.d.Tracker.RecordEvent(e)
	}
}

type telemetryPayload struct {
	PeopleCount string `json:"people_count"`
}

// telemetry hands the person count to the link once per post interval
// while online. Delivery happens off the tick; only a failed handoff is
// recorded here.
func (c *Controller) telemetry(ctx context.Context, now time.Time) {
	if !c.d.Link.Online() {
		return
	}
	if !c.lastPost.IsZero() && now.Sub(c.lastPost) < c.cfg.PostInterval {
		return
	}
	c.lastPost = now

	occ := c.passage.Occupancy()
	c.d.History.Record(now, occ)
	payload, _ := json.Marshal(telemetryPayload{PeopleCount: strconv.Itoa(occ.PersonCount)})
	err := c.d.Link.SendData(ctx, payload)
	if err == nil {
		c.logger.Debug("telemetry queued", "people_count", occ.PersonCount)
		return
	}

	c.logger.Warn("telemetry send failed", "error", err)
	if c.d.Metrics != nil {
		c.d.Metrics.ObservePost(err)
	}
	if c.d.Tracker != nil {
		tel := status.Telemetry{URL: c.serverURL, LastPost: now, LastErr: err.Error()}
		if b, ok := c.d.Uplink.(interface{ State() string }); ok {
			tel.Breaker = b.State()
		}
		c.d.Tracker.SetTelemetry(tel)
	}
}

func (c *Controller) onLinkEvent(ctx context.Context, e link.Event) {
	if c.d.Metrics != nil {
		c.d.Metrics.ObserveLinkEvent(e)
	}
	switch e.Type {
	case link.EventConnectRequested:
		c.printf("-----------Connecting-----------\n")
		c.connect(ctx)
	case link.EventConnected:
		c.printf("Info: Connection restored.\n")
	case link.EventConnectionLost:
		c.printf("Warning: Connection lost. Trying to reconnect.\n")
	case link.EventConnectionTimeout:
		c.printf("Error: Connection could not be restored.\n-----------Going offline-----------\n")
	case link.EventDisconnected:
		c.printf("-----------Going offline-----------\n")
	}
}

func (c *Controller) connect(ctx context.Context) {
	if c.creds.SSID == "" {
		c.printf("Error: No WiFi credentials configured. Use: Config Wifi <ssid> [<pass>]\n")
		return
	}
	res := c.d.Link.Connect(ctx, c.creds)
	if res != link.ResultConnected {
		c.printf("Error: Connection failed.\n  >> Reason: %s\n", res)
		return
	}
	c.lastPost = time.Time{}
	c.printf("-----------Online-----------\n")
}

// ApplyCommand executes one operator command.
func (c *Controller) ApplyCommand(ctx context.Context, cmd console.Command) error {
	c.logger.Debug("applying command", "command", cmd.Kind.String())
	switch cmd.Kind {
	case console.CmdConnect:
		if c.d.Link.Online() {
			c.printf("Info: Command unnecessary: %s\n  >> Reason: Already in Online mode.\n", cmd.Raw)
			return nil
		}
		c.printf("-----------Connecting-----------\n")
		c.connect(ctx)
		c.publishState()
		return nil

	case console.CmdDisconnect:
		if c.d.Link.State() == link.StateOffline {
			c.printf("Info: Command unnecessary: %s\n  >> Reason: Already in Offline mode.\n", cmd.Raw)
			return nil
		}
		c.d.Link.Disconnect()
		c.printf("-----------Going offline-----------\n")
		c.publishState()
		return nil

	case console.CmdConfigCap:
		return c.SetRoomCap(cmd.Cap)
	case console.CmdConfigURL:
		return c.SetServerURL(cmd.URL)
	case console.CmdConfigWiFi:
		return c.ConfigureWiFi(cmd.SSID, cmd.Pass)
	case console.CmdResetWiFi:
		return c.ResetWiFi()
	case console.CmdReset:
		return c.FactoryReset()
	case console.CmdVerbose:
		c.SetVerbose(cmd.On)
		return nil
	case console.CmdShowConfig:
		c.ShowConfig()
		return nil
	}
	return fmt.Errorf("%w: unsupported command %q", ErrInvalidArgument, cmd.Raw)
}

// SetRoomCap validates, persists and applies a new room capacity.
func (c *Controller) SetRoomCap(n int) error {
	if !logic.ValidCapacity(n) {
		return fmt.Errorf("room capacity %d out of bounds, should be between 1 and 255: %w", n, ErrInvalidArgument)
	}
	if err := persist.SaveRoomCap(c.d.Store, n); err != nil {
		return fmt.Errorf("store room capacity: %w", err)
	}
	if err := c.passage.SetCapacity(n); err != nil {
		return err
	}
	c.printf("  >> Room capacity set to %d.\n", n)
	c.publishState()
	return nil
}

// SetServerURL persists and applies the telemetry server URL.
func (c *Controller) SetServerURL(url string) error {
	if len(url) > persist.ServerURLSize {
		return fmt.Errorf("server url is %d bytes, max %d: %w", len(url), persist.ServerURLSize, ErrTooLong)
	}
	if err := persist.SaveServerURL(c.d.Store, url); err != nil {
		return fmt.Errorf("store server url: %w", err)
	}
	c.serverURL = url
	if c.d.Uplink != nil {
		c.d.Uplink.SetURL(url)
	}
	c.printf("  >> Server URL set to %s.\n", url)
	return nil
}

// ConfigureWiFi persists and applies new WiFi credentials. They are used on
// the next connect.
func (c *Controller) ConfigureWiFi(ssid, pass string) error {
	if len(ssid) > persist.SSIDSize || len(pass) > persist.PassSize {
		return fmt.Errorf("wifi credentials exceed %d bytes: %w", persist.SSIDSize, ErrTooLong)
	}
	if err := persist.SaveWiFi(c.d.Store, ssid, pass); err != nil {
		return fmt.Errorf("store wifi credentials: %w", err)
	}
	c.creds = link.Credentials{SSID: ssid, Pass: pass}
	if c.d.Tracker != nil {
		c.d.Tracker.SetSSID(ssid)
	}
	c.printf("  >> WiFi credentials saved for %q.\n", ssid)
	return nil
}

// ResetWiFi erases the stored WiFi credentials and reloads them.
func (c *Controller) ResetWiFi() error {
	if err := persist.EraseWiFi(c.d.Store); err != nil {
		return fmt.Errorf("reset wifi credentials: %w", err)
	}
	if err := c.reloadCreds(); err != nil {
		return err
	}
	c.printf("  >> WiFi credentials successfully reset.\n")
	return nil
}

// FactoryReset erases the WiFi credentials, restores the default room
// capacity and returns the passage FSM to idle. The person count is kept.
func (c *Controller) FactoryReset() error {
	if err := persist.FactoryReset(c.d.Store, logic.DefaultCapacity); err != nil {
		return fmt.Errorf("restore factory settings: %w", err)
	}
	if err := c.reloadCreds(); err != nil {
		return err
	}
	if err := c.passage.SetCapacity(logic.DefaultCapacity); err != nil {
		return err
	}
	c.passage.Reset()
	c.printf("  >> Configuration restored to factory settings.\n")
	c.publishState()
	return nil
}

func (c *Controller) reloadCreds() error {
	s, err := persist.LoadSettings(c.d.Store)
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	c.creds = link.Credentials{SSID: s.SSID, Pass: s.Pass}
	if c.d.Tracker != nil {
		c.d.Tracker.SetSSID(c.creds.SSID)
	}
	return nil
}

// SetVerbose switches debug logging on or off.
func (c *Controller) SetVerbose(on bool) {
	c.verbose = on
	if c.d.Level != nil {
		if on {
			c.d.Level.Set(slog.LevelDebug)
		} else {
			c.d.Level.Set(c.d.BaseLevel)
		}
	}
	c.printf("  >> Verbose output %s.\n", onOff(on))
}

// ShowConfig prints the current configuration to the console.
func (c *Controller) ShowConfig() {
	occ := c.passage.Occupancy()
	c.printf("WiFi SSID:      %s\n", c.creds.SSID)
	c.printf("Room capacity:  %d\n", occ.Capacity)
	c.printf("Persons:        %d\n", occ.PersonCount)
	c.printf("Server URL:     %s\n", c.serverURL)
	c.printf("Post interval:  %v\n", c.cfg.PostInterval)
	c.printf("Link:           %s\n", c.d.Link.State())
	c.printf("Verbose:        %s\n", onOff(c.verbose))
}

// Occupancy returns the current room load.
func (c *Controller) Occupancy() logic.Occupancy {
	return c.passage.Occupancy()
}

// DoorOpen returns the debounced door state.
func (c *Controller) DoorOpen() bool {
	return c.door.IsOpen()
}

// Credentials returns the WiFi credentials in use.
func (c *Controller) Credentials() link.Credentials {
	return c.creds
}

// ServerURL returns the telemetry server URL in use.
func (c *Controller) ServerURL() string {
	return c.serverURL
}

// Pending returns the number of queued commands.
func (c *Controller) Pending() int {
	return len(c.pending)
}

func (c *Controller) publishState() {
	occ := c.passage.Occupancy()
	if c.d.Tracker != nil {
		c.d.Tracker.Update(c.door.IsOpen(), occ, c.passage.State(), c.passage.EventCountsSnapshot())
		c.d.Tracker.SetLink(c.d.Link.State())
	}
	if c.d.Metrics != nil {
		c.d.Metrics.SetOccupancy(occ)
		c.d.Metrics.SetDoorOpen(c.door.IsOpen())
		c.d.Metrics.SetLinkState(c.d.Link.State())
	}
}

func (c *Controller) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
