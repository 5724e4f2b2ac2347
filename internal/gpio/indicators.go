package gpio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBlinkInterval is the toggle period of the connection LED while a
// connection is being established or restored.
const DefaultBlinkInterval = 1500 * time.Millisecond

// Indicators drives the status LEDs. All LEDs are active low.
type Indicators struct {
	w      Writer
	logger *slog.Logger
	blink  *Blinker
}

// NewIndicators creates the LED driver on top of a Writer.
func NewIndicators(w Writer, blinkInterval time.Duration, logger *slog.Logger) *Indicators {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicators{
		w:      w,
		logger: logger,
		blink:  NewBlinker(w, LineLinkLED, blinkInterval, logger),
	}
}

// SetEntrance signals whether someone may enter: the open LED lights when
// entry is allowed, the closed LED otherwise.
func (i *Indicators) SetEntrance(allowed bool) {
	i.write(LineOpenLED, !allowed)
	i.write(LineClosedLED, allowed)
}

// SetLink turns the connection LED solidly on or off.
func (i *Indicators) SetLink(on bool) {
	i.write(LineLinkLED, !on)
}

// StartBlink starts toggling the connection LED. A no-op if already blinking.
func (i *Indicators) StartBlink() {
	i.blink.Start()
}

// StopBlink stops toggling the connection LED. Safe to call when not blinking.
func (i *Indicators) StopBlink() {
	i.blink.Stop()
}

// Blinking reports whether the connection LED blink task is running.
func (i *Indicators) Blinking() bool {
	return i.blink.Running()
}

func (i *Indicators) write(line Line, high bool) {
	if err := i.w.Write(line, high); err != nil {
		i.logger.Warn("indicator write failed", "line", line.String(), "error", err)
	}
}

// Blinker toggles a single output line at a fixed interval from its own
// goroutine. The goroutine touches nothing but that line.
type Blinker struct {
	w        Writer
	line     Line
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBlinker creates a stopped blinker.
func NewBlinker(w Writer, line Line, interval time.Duration, logger *slog.Logger) *Blinker {
	if interval <= 0 {
		interval = DefaultBlinkInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Blinker{w: w, line: line, interval: interval, logger: logger}
}

// Start begins toggling. Calling Start while running does nothing.
func (b *Blinker) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, b.done)
}

// Stop ends toggling and waits for the goroutine to exit, so no write from
// the blink task can land after Stop returns. Safe to call when stopped.
func (b *Blinker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
}

// Running reports whether the blink goroutine is active.
func (b *Blinker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *Blinker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	level := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level = !level
			if err := b.w.Write(b.line, level); err != nil {
				b.logger.Debug("blink write failed", "line", b.line.String(), "error", err)
			}
		}
	}
}
