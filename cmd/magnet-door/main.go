// Command magnet-door counts persons passing a door, enforces the room
// capacity and reports occupancy to a server and an MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sweeney/magnet-door/internal/config"
	"github.com/sweeney/magnet-door/internal/console"
	"github.com/sweeney/magnet-door/internal/controller"
	"github.com/sweeney/magnet-door/internal/gpio"
	"github.com/sweeney/magnet-door/internal/history"
	"github.com/sweeney/magnet-door/internal/link"
	"github.com/sweeney/magnet-door/internal/logic"
	"github.com/sweeney/magnet-door/internal/metrics"
	"github.com/sweeney/magnet-door/internal/mqtt"
	"github.com/sweeney/magnet-door/internal/persist"
	"github.com/sweeney/magnet-door/internal/status"
	"github.com/sweeney/magnet-door/internal/uplink"
	"github.com/sweeney/magnet-door/internal/web"
	"github.com/sweeney/magnet-door/internal/wifi"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	printState := flag.Bool("print-state", false, "Print current input state and exit")
	noConsole := flag.Bool("no-console", false, "Do not read operator commands from stdin")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	if err := run(cfg, levelVar, level, *printState, !*noConsole, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file if one is found and falls back to the
// defaults otherwise. An explicit path must exist.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, levelVar *slog.LevelVar, baseLevel slog.Level, printState, readConsole bool, logger *slog.Logger) error {
	board, err := gpio.NewRealBoard(cfg.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	if printState {
		s, err := board.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("Door: %s, Barriers: %s, Button: %s\n",
			status.DoorString(s.DoorOpen()), logic.Classify(s.Outer, s.Inner), pressedString(s.ButtonDown()))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := persist.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	indicators := gpio.NewIndicators(board, cfg.BlinkInterval, logger.With("component", "leds"))
	defer indicators.StopBlink()

	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger.With("component", "mqtt"),
	})
	defer publisher.Disconnect()

	poster := uplink.New(uplink.Config{
		URL:          cfg.Server.URL,
		Timeout:      cfg.Server.Timeout,
		Failures:     cfg.Server.BreakerFailures,
		OpenDuration: cfg.Server.BreakerOpen,
		Logger:       logger.With("component", "uplink"),
	})

	var recorder history.OccupancyRecorder = history.Nop{}
	if cfg.Influx.URL != "" {
		recorder = history.NewInfluxRecorder(history.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Device: cfg.MQTT.ClientID,
		}, logger.With("component", "history"))
	}
	defer recorder.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:         cfg.Poll.Milliseconds(),
		DebounceMs:     cfg.DoorDebounce.Milliseconds(),
		PostIntervalMs: cfg.PostInterval.Milliseconds(),
		ConnTimeoutMs:  cfg.ConnTimeout.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Listen,
		StoreDriver:    cfg.Store.Driver,
	})
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	station := wifi.NewStation(cfg.WiFi.Interface, nil, cfg.ConnTimeout, logger.With("component", "wifi"))
	go station.Watch(ctx, wifi.DefaultWatchInterval)

	rem := newRemote(publisher, poster, logger.With("component", "remote"), reportPost(tracker, m, poster))
	go rem.run(ctx)

	supervisor := link.New(station, rem, indicators, link.Config{
		Timeout:    cfg.ConnTimeout,
		ButtonHold: cfg.ButtonHold,
		Logger:     logger.With("component", "link"),
	})

	ctrl, err := controller.New(controller.Deps{
		Board:     board,
		Entrance:  indicators,
		Link:      supervisor,
		Store:     store,
		Uplink:    poster,
		Metrics:   m,
		Tracker:   tracker,
		History:   recorder,
		Console:   os.Stdout,
		Level:     levelVar,
		BaseLevel: baseLevel,
		Logger:    logger.With("component", "controller"),
	}, controller.Config{
		DoorDebounce: cfg.DoorDebounce,
		PostInterval: cfg.PostInterval,
		DefaultURL:   cfg.Server.URL,
	})
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// Buffered until the first broker connection.
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn("failed to queue startup event", "error", err)
	}

	if cfg.HTTP.Listen != "" {
		srv := web.New(cfg.HTTP.Listen, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Listen)
	}

	cmds := make(chan console.Command)
	if readConsole {
		go func() {
			if err := console.Run(ctx, os.Stdin, os.Stdout, cmds); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("console stopped", "error", err)
			}
		}()
	}

	logger.Info("started",
		"poll", cfg.Poll,
		"door_debounce", cfg.DoorDebounce,
		"post_interval", cfg.PostInterval,
		"broker", cfg.MQTT.Broker,
		"store", cfg.Store.Driver,
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, ctrl, publisher, tracker, logger, time.Now, ticker.C, cmds, sigCh)
}

func runLoop(ctx context.Context, ctrl *controller.Controller, publisher mqtt.Publisher, tracker *status.Tracker, logger *slog.Logger, now func() time.Time, tick <-chan time.Time, cmds <-chan console.Command, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				tracker.SetMQTTConnected(publisher.IsConnected())
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				logger.Info("published shutdown event")
			}
			return nil

		case cmd := <-cmds:
			ctrl.Submit(cmd)

		case <-tick:
			ctrl.Tick(ctx, now())
			if tracker != nil {
				tracker.SetMQTTConnected(publisher.IsConnected())
			}
		}
	}
}

// reportPost records telemetry delivery outcomes from the remote worker.
func reportPost(tracker *status.Tracker, m *metrics.Metrics, p *uplink.Poster) func(error) {
	return func(err error) {
		m.ObservePost(err)
		tel := status.Telemetry{URL: p.URL(), Breaker: p.State(), LastPost: time.Now()}
		if err != nil {
			tel.LastErr = err.Error()
		}
		tracker.SetTelemetry(tel)
	}
}

func pressedString(down bool) string {
	if down {
		return "pressed"
	}
	return "released"
}
