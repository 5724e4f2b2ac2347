package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // a random suffix is appended; defaults to "magnet-door"
	BufferSize int
	// MaxRetries bounds the connect attempts within one Connect call.
	MaxRetries uint64
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are kept in a ring buffer and replayed
// once the client connects again.
type RealPublisher struct {
	client     paho.Client
	logger     *slog.Logger
	maxRetries uint64

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It does not
// connect; call Connect.
func NewRealPublisher(o Options) *RealPublisher {
	if o.ClientID == "" {
		o.ClientID = "magnet-door"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 4
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &RealPublisher{
		logger:     logger,
		maxRetries: o.MaxRetries,
		buf:        newRingBuffer(o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID + "-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	return p
}

// Connect performs the broker handshake, retrying with backoff until it
// succeeds, the retries are used up or ctx ends.
func (p *RealPublisher) Connect(ctx context.Context) error {
	op := func() error {
		token := p.client.Connect()
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				p.logger.Debug("mqtt connect attempt failed", "error", err)
				return err
			}
			return nil
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// onConnect announces availability and replays buffered messages.
// It runs on the paho goroutine for the first connect and every reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.logger.Info("mqtt connected")

	online, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "ONLINE"})
	c.Publish(TopicSystem, 1, true, online)

	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) > 0 {
		p.logger.Info("mqtt replaying buffered messages", "count", len(msgs))
	}
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			p.logger.Warn("mqtt replay failed", "topic", m.topic, "error", err)
		}
	}
}

// PublishEvent sends an event log entry to the broker.
func (p *RealPublisher) PublishEvent(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1 (at-least-once): event log entries should not be lost
	return p.publish(bufferedMsg{topic: TopicEvents, payload: payload, qos: 1})
}

// PublishTelemetry sends a telemetry payload. QoS 0, retained so new
// subscribers see the current count.
func (p *RealPublisher) PublishTelemetry(payload []byte) error {
	return p.publish(bufferedMsg{topic: TopicTelemetry, payload: payload, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		p.logger.Debug("mqtt offline, message buffered", "topic", m.topic)
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Disconnect announces the shutdown and closes the broker session.
func (p *RealPublisher) Disconnect() {
	if !p.client.IsConnectionOpen() {
		return
	}
	off, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "DISCONNECT"})
	p.client.Publish(TopicSystem, 1, true, off).WaitTimeout(time.Second)
	p.client.Disconnect(250)
}
