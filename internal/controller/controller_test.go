package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
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

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

var (
	closed = gpio.Idle
	open   = gpio.Sample{Door: true, Outer: true, Inner: true, Button: true}
	outer  = gpio.Sample{Door: true, Outer: false, Inner: true, Button: true}
	both   = gpio.Sample{Door: true, Outer: false, Inner: false, Button: true}
	inner  = gpio.Sample{Door: true, Outer: true, Inner: false, Button: true}
)

type entranceLog struct {
	calls []bool
}

func (e *entranceLog) SetEntrance(allowed bool) {
	e.calls = append(e.calls, allowed)
}

func (e *entranceLog) last() bool {
	if len(e.calls) == 0 {
		return false
	}
	return e.calls[len(e.calls)-1]
}

type urlRecorder struct {
	url string
}

func (u *urlRecorder) SetURL(url string) { u.url = url }

// failingStore loads blanks and refuses every write.
type failingStore struct{}

var errDisk = errors.New("disk failure")

func (failingStore) Load(key persist.Key) ([]byte, error) {
	if key == persist.KeyRoomCap {
		return []byte{0}, nil
	}
	return []byte{}, nil
}
func (failingStore) Store(persist.Key, []byte) error         { return errDisk }
func (failingStore) StoreAll(map[persist.Key][]byte) error { return errDisk }
func (failingStore) Erase(...persist.Key) error            { return errDisk }
func (failingStore) Close() error                          { return nil }

type rig struct {
	board    *gpio.FakeBoard
	wifi     *link.FakeWiFi
	remote   *link.FakeRemote
	ind      *link.FakeIndicator
	store    persist.Store
	entrance *entranceLog
	uplink   *urlRecorder
	hist     *history.Fake
	tracker  *status.Tracker
	level    *slog.LevelVar
	out      *bytes.Buffer
	c        *Controller
	now      time.Time
}

func newRig(t *testing.T, store persist.Store) *rig {
	t.Helper()
	if store == nil {
		s, err := persist.NewImageStore(filepath.Join(t.TempDir(), "settings.img"))
		if err != nil {
			t.Fatalf("NewImageStore: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
	}
	r := &rig{
		board:    gpio.NewFakeBoard([]gpio.Sample{closed}),
		wifi:     &link.FakeWiFi{},
		remote:   &link.FakeRemote{},
		ind:      &link.FakeIndicator{},
		store:    store,
		entrance: &entranceLog{},
		uplink:   &urlRecorder{},
		hist:     &history.Fake{},
		tracker:  status.NewTracker(t0, status.Config{}),
		level:    new(slog.LevelVar),
		out:      &bytes.Buffer{},
		now:      t0,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := link.New(r.wifi, r.remote, r.ind, link.Config{
		Now:    func() time.Time { return r.now },
		Timer:  &link.ImmediateTimer{},
		Logger: logger,
	})
	c, err := New(Deps{
		Board:     r.board,
		Entrance:  r.entrance,
		Link:      sup,
		Store:     store,
		Uplink:    r.uplink,
		Metrics:   metrics.New(),
		Tracker:   r.tracker,
		History:   r.hist,
		Console:   r.out,
		Level:     r.level,
		BaseLevel: slog.LevelInfo,
		Logger:    logger,
	}, Config{PostInterval: 2 * time.Second, DefaultURL: "http://default.example/data"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.c = c
	return r
}

func (r *rig) tick(samples ...gpio.Sample) {
	for _, s := range samples {
		r.board.Samples = []gpio.Sample{s}
		r.c.Tick(context.Background(), r.now)
		r.now = r.now.Add(50 * time.Millisecond)
	}
}

func (r *rig) enter() {
	r.tick(outer, both, inner, open)
}

func (r *rig) leave() {
	r.tick(inner, both, outer, open)
}

func (r *rig) online(t *testing.T) {
	t.Helper()
	if err := r.c.ConfigureWiFi("lab", "secret"); err != nil {
		t.Fatalf("ConfigureWiFi: %v", err)
	}
	r.wifi.SetStatus(link.WiFiConnected)
	if err := r.c.ApplyCommand(context.Background(), console.Command{Kind: console.CmdConnect, Raw: "Connect"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := r.tracker.Snapshot().Link; got != link.StateOnline {
		t.Fatalf("link state: got %s, want ONLINE", got)
	}
}

func remoteNames(events []link.LoggedEvent) []string {
	var names []string
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}

func TestNewLoadsDefaultsFromBlankStore(t *testing.T) {
	r := newRig(t, nil)

	occ := r.c.Occupancy()
	if occ.Capacity != logic.DefaultCapacity {
		t.Errorf("capacity: got %d, want %d", occ.Capacity, logic.DefaultCapacity)
	}
	if r.c.ServerURL() != "http://default.example/data" {
		t.Errorf("server url: got %q", r.c.ServerURL())
	}
	if r.uplink.url != "http://default.example/data" {
		t.Errorf("uplink url: got %q", r.uplink.url)
	}
	if len(r.entrance.calls) != 1 || r.entrance.last() {
		t.Errorf("expected entrance denied at startup, got %v", r.entrance.calls)
	}
}

func TestNewLoadsStoredSettings(t *testing.T) {
	s, err := persist.NewImageStore(filepath.Join(t.TempDir(), "settings.img"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := persist.SaveWiFi(s, "lab", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := persist.SaveRoomCap(s, 3); err != nil {
		t.Fatal(err)
	}
	if err := persist.SaveServerURL(s, "http://stored.example/x"); err != nil {
		t.Fatal(err)
	}

	r := newRig(t, s)
	if got := r.c.Occupancy().Capacity; got != 3 {
		t.Errorf("capacity: got %d, want 3", got)
	}
	if got := r.c.Credentials(); got.SSID != "lab" || got.Pass != "pw" {
		t.Errorf("credentials: got %+v", got)
	}
	if r.uplink.url != "http://stored.example/x" {
		t.Errorf("uplink url: got %q", r.uplink.url)
	}
	if got := r.tracker.Snapshot().SSID; got != "lab" {
		t.Errorf("tracker ssid: got %q", got)
	}
}

func TestSetRoomCapRejectsOutOfRange(t *testing.T) {
	r := newRig(t, nil)

	for _, n := range []int{0, 256, -1, 1000} {
		err := r.c.SetRoomCap(n)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SetRoomCap(%d): got %v, want ErrInvalidArgument", n, err)
		}
	}
	if got := r.c.Occupancy().Capacity; got != logic.DefaultCapacity {
		t.Errorf("capacity changed to %d", got)
	}
	v, err := r.store.Load(persist.KeyRoomCap)
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 0 {
		t.Errorf("store written: got %d", v[0])
	}
}

func TestSetRoomCapBounds(t *testing.T) {
	r := newRig(t, nil)
	for _, n := range []int{1, 255, 5} {
		if err := r.c.SetRoomCap(n); err != nil {
			t.Errorf("SetRoomCap(%d): %v", n, err)
		}
		if got := r.c.Occupancy().Capacity; got != n {
			t.Errorf("capacity: got %d, want %d", got, n)
		}
	}
	v, _ := r.store.Load(persist.KeyRoomCap)
	if v[0] != 5 {
		t.Errorf("stored capacity: got %d, want 5", v[0])
	}
}

func TestCapacityDrivesRoomFullAndEntrance(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.SetRoomCap(2); err != nil {
		t.Fatal(err)
	}

	r.tick(open)
	if !r.entrance.last() {
		t.Fatal("expected entrance allowed after door opened")
	}

	r.enter()
	r.enter()
	occ := r.c.Occupancy()
	if occ.PersonCount != 2 || !occ.Full {
		t.Fatalf("occupancy: got %+v, want 2 full", occ)
	}
	if r.entrance.last() {
		t.Error("expected entrance denied when room is full")
	}

	r.enter()
	snap := r.tracker.Snapshot()
	if snap.Occupancy.PersonCount != 2 {
		t.Errorf("person count: got %d, want 2", snap.Occupancy.PersonCount)
	}
	if snap.Counts.Rejected != 1 {
		t.Errorf("rejected: got %d, want 1", snap.Counts.Rejected)
	}

	r.leave()
	if r.c.Occupancy().Full {
		t.Error("expected room not full after one left")
	}
	if !r.entrance.last() {
		t.Error("expected entrance allowed after ROOM_NOT_FULL")
	}
}

func TestLoweredCapacityKeepsEntranceDenied(t *testing.T) {
	r := newRig(t, nil)
	r.tick(open)
	r.enter()
	r.enter()
	r.now = r.now.Add(2 * time.Second)
	r.tick(closed)
	if got := r.c.Occupancy().PersonCount; got != 2 {
		t.Fatalf("setup: person count %d, want 2", got)
	}

	if err := r.c.SetRoomCap(2); err != nil {
		t.Fatal(err)
	}
	if !r.tracker.Snapshot().Occupancy.Full {
		t.Error("expected status to report the room full right after SetRoomCap")
	}

	r.entrance.calls = nil
	r.now = r.now.Add(2 * time.Second)
	r.tick(open, open)
	for i, allowed := range r.entrance.calls {
		if allowed {
			t.Fatalf("entrance allowed at call %d after the room became full", i)
		}
	}
	if len(r.entrance.calls) == 0 {
		t.Error("expected the door opening to drive the entrance LEDs")
	}
}

func TestPassageIgnoredWhileDoorClosed(t *testing.T) {
	r := newRig(t, nil)
	closedOuter := gpio.Sample{Door: false, Outer: false, Inner: true, Button: true}
	closedBoth := gpio.Sample{Door: false, Outer: false, Inner: false, Button: true}
	closedInner := gpio.Sample{Door: false, Outer: true, Inner: false, Button: true}
	r.tick(closedOuter, closedBoth, closedInner, closed)

	if got := r.c.Occupancy().PersonCount; got != 0 {
		t.Errorf("person count: got %d, want 0", got)
	}
}

func TestDoorClosedDeniesEntrance(t *testing.T) {
	r := newRig(t, nil)
	r.tick(open)
	r.now = r.now.Add(2 * time.Second)
	r.tick(closed)

	if r.c.DoorOpen() {
		t.Error("expected door closed")
	}
	if r.entrance.last() {
		t.Error("expected entrance denied after door closed")
	}
	if got := r.tracker.Snapshot().LastEvent; got == nil || got.Type != logic.EventDoorClosed {
		t.Errorf("last event: got %+v", got)
	}
}

func TestCommandAppliedInsteadOfSensorPass(t *testing.T) {
	r := newRig(t, nil)
	r.c.Submit(console.Command{Kind: console.CmdConfigCap, Cap: 3, Raw: "Config Cap 3"})
	if r.c.Pending() != 1 {
		t.Fatalf("pending: got %d", r.c.Pending())
	}

	r.tick(open)
	if r.c.DoorOpen() {
		t.Error("sensors were processed in the command tick")
	}
	if got := r.c.Occupancy().Capacity; got != 3 {
		t.Errorf("capacity: got %d, want 3", got)
	}

	r.tick(open)
	if !r.c.DoorOpen() {
		t.Error("expected door opened on the next tick")
	}
}

func TestInvalidCommandReportedOnConsole(t *testing.T) {
	r := newRig(t, nil)
	r.c.Submit(console.Command{Kind: console.CmdConfigCap, Cap: 0, Raw: "Config Cap 0"})
	r.tick(closed)

	if !strings.Contains(r.out.String(), "Error:") {
		t.Errorf("expected error on console, got %q", r.out.String())
	}
}

func TestRemoteEventsOnlyWhileOnline(t *testing.T) {
	r := newRig(t, nil)

	r.tick(open)
	r.now = r.now.Add(2 * time.Second)
	r.tick(closed)
	if len(r.remote.Events) != 0 {
		t.Fatalf("expected no remote events offline, got %v", r.remote.Events)
	}

	r.online(t)
	r.now = r.now.Add(2 * time.Second)
	r.tick(open)
	r.enter()
	r.now = r.now.Add(2 * time.Second)
	r.tick(closed)

	got := remoteNames(r.remote.Events)
	want := []string{"door_opened", "door_closed", "persons_in_room"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("remote events: got %v, want %v", got, want)
	}
	if r.remote.Events[0].Description != "Info: You can come in." {
		t.Errorf("description: got %q", r.remote.Events[0].Description)
	}
}

func TestRemoteRoomFullEvents(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.SetRoomCap(1); err != nil {
		t.Fatal(err)
	}
	r.online(t)
	r.tick(open)
	r.enter()
	r.leave()

	got := strings.Join(remoteNames(r.remote.Events), ",")
	if got != "door_opened,room_full,room_not_full" {
		t.Errorf("remote events: got %s", got)
	}
}

func TestTelemetryInterval(t *testing.T) {
	r := newRig(t, nil)

	for i := 0; i < 100; i++ {
		r.tick(closed)
	}
	if len(r.remote.Payloads) != 0 || r.hist.Len() != 0 {
		t.Fatalf("expected no telemetry offline, got %d payloads", len(r.remote.Payloads))
	}

	r.online(t)
	for i := 0; i < 100; i++ {
		r.tick(closed)
	}
	if len(r.remote.Payloads) != 3 {
		t.Fatalf("payloads: got %d, want 3", len(r.remote.Payloads))
	}
	if got := string(r.remote.Payloads[0]); got != `{"people_count":"0"}` {
		t.Errorf("payload: got %s", got)
	}
	if r.hist.Len() != 3 {
		t.Errorf("history samples: got %d, want 3", r.hist.Len())
	}
	if got := r.tracker.Snapshot().Telemetry.LastErr; got != "" {
		t.Errorf("unexpected telemetry error %q", got)
	}
}

func TestTelemetryFailureRecorded(t *testing.T) {
	r := newRig(t, nil)
	r.online(t)
	r.remote.SendError = errors.New("server down")
	r.tick(closed)

	if got := r.tracker.Snapshot().Telemetry.LastErr; got != "server down" {
		t.Errorf("last error: got %q", got)
	}
}

func TestConnectAndDisconnectNoOps(t *testing.T) {
	r := newRig(t, nil)
	ctx := context.Background()

	if err := r.c.ApplyCommand(ctx, console.Command{Kind: console.CmdDisconnect, Raw: "Disconnect"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.out.String(), "Already in Offline mode") {
		t.Errorf("expected offline info, got %q", r.out.String())
	}

	r.online(t)
	r.out.Reset()
	if err := r.c.ApplyCommand(ctx, console.Command{Kind: console.CmdConnect, Raw: "Connect"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.out.String(), "Already in Online mode") {
		t.Errorf("expected online info, got %q", r.out.String())
	}
	if r.wifi.BeginCalls != 1 {
		t.Errorf("begin calls: got %d, want 1", r.wifi.BeginCalls)
	}

	if err := r.c.ApplyCommand(ctx, console.Command{Kind: console.CmdDisconnect, Raw: "Disconnect"}); err != nil {
		t.Fatal(err)
	}
	if got := r.tracker.Snapshot().Link; got != link.StateOffline {
		t.Errorf("link: got %s, want OFFLINE", got)
	}
}

func TestConnectFailureReported(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.ConfigureWiFi("lab", "wrong"); err != nil {
		t.Fatal(err)
	}
	r.wifi.SetStatus(link.WiFiDisconnected)
	if err := r.c.ApplyCommand(context.Background(), console.Command{Kind: console.CmdConnect}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.out.String(), link.ResultAuthFailed.String()) {
		t.Errorf("expected auth failure reason, got %q", r.out.String())
	}
}

func TestButtonRequestsConnect(t *testing.T) {
	r := newRig(t, nil)
	held := gpio.Sample{Door: false, Outer: true, Inner: true, Button: false}

	for i := 0; i < 11; i++ {
		r.tick(held)
	}
	if !strings.Contains(r.out.String(), "No WiFi credentials") {
		t.Errorf("expected missing credentials message, got %q", r.out.String())
	}

	if err := r.c.ConfigureWiFi("lab", "secret"); err != nil {
		t.Fatal(err)
	}
	r.wifi.SetStatus(link.WiFiConnected)
	r.tick(closed)
	for i := 0; i < 11; i++ {
		r.tick(held)
	}
	if got := r.tracker.Snapshot().Link; got != link.StateOnline {
		t.Errorf("link: got %s, want ONLINE", got)
	}
}

func TestConnectionLossReported(t *testing.T) {
	r := newRig(t, nil)
	r.online(t)

	r.remote.Up = false
	r.tick(closed)
	if got := r.tracker.Snapshot().Link; got != link.StateReconnecting {
		t.Fatalf("link: got %s, want RECONNECTING", got)
	}
	if !strings.Contains(r.out.String(), "Connection lost") {
		t.Errorf("expected loss message, got %q", r.out.String())
	}

	r.remote.Up = true
	r.tick(closed)
	if got := r.tracker.Snapshot().Link; got != link.StateOnline {
		t.Errorf("link: got %s, want ONLINE", got)
	}
	if !strings.Contains(r.out.String(), "Connection restored") {
		t.Errorf("expected restore message, got %q", r.out.String())
	}
}

func TestSetServerURL(t *testing.T) {
	r := newRig(t, nil)

	if err := r.c.SetServerURL("http://new.example/data"); err != nil {
		t.Fatal(err)
	}
	if r.uplink.url != "http://new.example/data" {
		t.Errorf("uplink url: got %q", r.uplink.url)
	}
	v, _ := r.store.Load(persist.KeyServerURL)
	if string(v) != "http://new.example/data" {
		t.Errorf("stored url: got %q", v)
	}

	long := "http://" + strings.Repeat("a", 250)
	if err := r.c.SetServerURL(long); !errors.Is(err, ErrTooLong) {
		t.Errorf("long url: got %v, want ErrTooLong", err)
	}
	if r.c.ServerURL() != "http://new.example/data" {
		t.Errorf("url changed to %q", r.c.ServerURL())
	}
}

func TestConfigureWiFiTooLong(t *testing.T) {
	r := newRig(t, nil)
	err := r.c.ConfigureWiFi(strings.Repeat("s", 257), "pw")
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("got %v, want ErrTooLong", err)
	}
	if r.c.Credentials().SSID != "" {
		t.Error("credentials changed")
	}
}

func TestPersistFailureKeepsValues(t *testing.T) {
	r := newRig(t, failingStore{})
	r.uplink.url = "unchanged"

	if err := r.c.SetRoomCap(3); !errors.Is(err, errDisk) {
		t.Errorf("SetRoomCap: got %v, want errDisk", err)
	}
	if got := r.c.Occupancy().Capacity; got != logic.DefaultCapacity {
		t.Errorf("capacity: got %d", got)
	}
	if err := r.c.SetServerURL("http://x"); !errors.Is(err, errDisk) {
		t.Errorf("SetServerURL: got %v, want errDisk", err)
	}
	if r.uplink.url != "unchanged" {
		t.Errorf("uplink url: got %q", r.uplink.url)
	}
	if err := r.c.ConfigureWiFi("lab", "pw"); !errors.Is(err, errDisk) {
		t.Errorf("ConfigureWiFi: got %v, want errDisk", err)
	}
	if r.c.Credentials().SSID != "" {
		t.Error("credentials changed")
	}
	if err := r.c.FactoryReset(); !errors.Is(err, errDisk) {
		t.Errorf("FactoryReset: got %v, want errDisk", err)
	}
}

func TestResetWiFi(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.ConfigureWiFi("lab", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := r.c.ResetWiFi(); err != nil {
		t.Fatal(err)
	}
	if got := r.c.Credentials(); got.SSID != "" || got.Pass != "" {
		t.Errorf("credentials: got %+v", got)
	}
	if r.tracker.Snapshot().SSID != "" {
		t.Error("tracker ssid not cleared")
	}
}

func TestFactoryReset(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.ConfigureWiFi("lab", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := r.c.SetRoomCap(9); err != nil {
		t.Fatal(err)
	}
	if err := r.c.SetServerURL("http://kept.example"); err != nil {
		t.Fatal(err)
	}

	if err := r.c.ApplyCommand(context.Background(), console.Command{Kind: console.CmdReset}); err != nil {
		t.Fatal(err)
	}
	if got := r.c.Credentials(); got.SSID != "" {
		t.Errorf("credentials: got %+v", got)
	}
	if got := r.c.Occupancy().Capacity; got != logic.DefaultCapacity {
		t.Errorf("capacity: got %d", got)
	}
	if r.c.ServerURL() != "http://kept.example" {
		t.Errorf("url: got %q", r.c.ServerURL())
	}
	v, _ := r.store.Load(persist.KeyRoomCap)
	if v[0] != logic.DefaultCapacity {
		t.Errorf("stored capacity: got %d", v[0])
	}
}

func TestVerboseTogglesLevel(t *testing.T) {
	r := newRig(t, nil)
	ctx := context.Background()

	r.c.ApplyCommand(ctx, console.Command{Kind: console.CmdVerbose, On: true})
	if r.level.Level() != slog.LevelDebug {
		t.Errorf("level: got %v, want debug", r.level.Level())
	}
	r.c.ApplyCommand(ctx, console.Command{Kind: console.CmdVerbose, On: false})
	if r.level.Level() != slog.LevelInfo {
		t.Errorf("level: got %v, want info", r.level.Level())
	}
}

func TestShowConfig(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.ConfigureWiFi("lab", "pw"); err != nil {
		t.Fatal(err)
	}
	r.out.Reset()
	r.c.ApplyCommand(context.Background(), console.Command{Kind: console.CmdShowConfig})

	out := r.out.String()
	for _, want := range []string{"lab", "Room capacity:  5", "http://default.example/data", "OFFLINE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pw") {
		t.Error("password printed")
	}
}

func TestReadErrorSkipsTick(t *testing.T) {
	r := newRig(t, nil)
	r.board.ReadError = errors.New("gpio gone")
	r.tick(open)
	if r.c.DoorOpen() {
		t.Error("door state changed on read error")
	}
}
