// Package metrics exposes controller counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/magnet-door/internal/link"
	"github.com/sweeney/magnet-door/internal/logic"
)

const namespace = "magnet_door"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	personCount prometheus.Gauge
	capacity    prometheus.Gauge
	roomFull    prometheus.Gauge
	doorOpen    prometheus.Gauge
	linkState   *prometheus.GaugeVec
	events      *prometheus.CounterVec
	linkEvents  *prometheus.CounterVec
	posts       *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		personCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "persons_in_room",
			Help: "Number of persons currently in the room.",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_capacity",
			Help: "Configured room capacity.",
		}),
		roomFull: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_full",
			Help: "1 while the room is at capacity.",
		}),
		doorOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "door_open",
			Help: "1 while the door is open.",
		}),
		linkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "link_state",
			Help: "1 for the current connection state.",
		}, []string{"state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Door and passage events by type.",
		}, []string{"type"}),
		linkEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "link_events_total",
			Help: "Connection state transitions by type.",
		}, []string{"type"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "telemetry_posts_total",
			Help: "Telemetry posts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.personCount, m.capacity, m.roomFull, m.doorOpen,
		m.linkState, m.events, m.linkEvents, m.posts,
	)
	m.SetLinkState(link.StateOffline)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent counts a door or passage event.
func (m *Metrics) ObserveEvent(e logic.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
}

// SetOccupancy updates the room gauges.
func (m *Metrics) SetOccupancy(o logic.Occupancy) {
	m.personCount.Set(float64(o.PersonCount))
	m.capacity.Set(float64(o.Capacity))
	m.roomFull.Set(boolFloat(o.Full))
}

// SetDoorOpen updates the door gauge.
func (m *Metrics) SetDoorOpen(open bool) {
	m.doorOpen.Set(boolFloat(open))
}

// SetLinkState marks s as the only active state.
func (m *Metrics) SetLinkState(s link.State) {
	for _, st := range []link.State{link.StateOffline, link.StateOnline, link.StateReconnecting} {
		m.linkState.WithLabelValues(string(st)).Set(boolFloat(st == s))
	}
}

// ObserveLinkEvent counts a connection transition.
func (m *Metrics) ObserveLinkEvent(e link.Event) {
	m.linkEvents.WithLabelValues(string(e.Type)).Inc()
}

// ObservePost counts a telemetry post outcome.
func (m *Metrics) ObservePost(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.posts.WithLabelValues(result).Inc()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
