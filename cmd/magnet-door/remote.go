package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/magnet-door/internal/mqtt"
)

// defaultQueueSize bounds the work waiting for the delivery worker.
const defaultQueueSize = 64

// errQueueFull is returned when the delivery worker has fallen behind.
var errQueueFull = errors.New("delivery queue full")

// poster delivers telemetry to the HTTP server.
type poster interface {
	Post(ctx context.Context, payload []byte) error
}

// remote is the link.Remote of the controller: the MQTT session carries
// the event log and mirrors telemetry, the HTTP poster delivers telemetry
// to the people counter server.
//
// Event logging, telemetry and disconnect are queued for a single worker
// goroutine (see run) so the tick never waits on the network.
type remote struct {
	pub    mqtt.Publisher
	post   poster
	now    func() time.Time
	logger *slog.Logger
	// onPost receives the outcome of every telemetry POST. May be nil.
	onPost func(err error)

	jobs chan job
}

type job struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

func newRemote(pub mqtt.Publisher, post poster, logger *slog.Logger, onPost func(error)) *remote {
	return &remote{
		pub:    pub,
		post:   post,
		now:    time.Now,
		logger: logger,
		onPost: onPost,
		jobs:   make(chan job, defaultQueueSize),
	}
}

// run executes queued work in order until ctx ends.
func (r *remote) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.jobs:
			if j.fn != nil {
				j.fn(ctx)
			}
			if j.done != nil {
				close(j.done)
			}
		}
	}
}

func (r *remote) enqueue(fn func(ctx context.Context)) error {
	select {
	case r.jobs <- job{fn: fn}:
		return nil
	default:
		return errQueueFull
	}
}

// flush waits until everything queued before it has run.
func (r *remote) flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.jobs <- job{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect waits for queued work, then opens the broker session.
func (r *remote) Connect(ctx context.Context) error {
	if err := r.flush(ctx); err != nil {
		return err
	}
	return r.pub.Connect(ctx)
}

func (r *remote) Connected() bool {
	return r.pub.IsConnected()
}

func (r *remote) Disconnect() {
	if err := r.enqueue(func(context.Context) { r.pub.Disconnect() }); err != nil {
		r.logger.Warn("broker disconnect dropped", "error", err)
	}
}

func (r *remote) LogEvent(name, description string) error {
	event := mqtt.NewEvent(name, description, r.now())
	return r.enqueue(func(context.Context) {
		if err := r.pub.PublishEvent(event); err != nil {
			r.logger.Warn("remote log failed", "event", name, "error", err)
		}
	})
}

// SendJSON queues payload for the server. The MQTT mirror is best effort.
func (r *remote) SendJSON(_ context.Context, payload []byte) error {
	payload = append([]byte(nil), payload...)
	return r.enqueue(func(ctx context.Context) {
		if err := r.pub.PublishTelemetry(payload); err != nil {
			r.logger.Debug("telemetry mirror failed", "error", err)
		}
		err := r.post.Post(ctx, payload)
		if err != nil {
			r.logger.Warn("telemetry post failed", "error", err)
		}
		if r.onPost != nil {
			r.onPost(err)
		}
	})
}
