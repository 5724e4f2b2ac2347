// Package history records the room occupancy as an InfluxDB time series.
package history

import (
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/magnet-door/internal/logic"
)

// Measurement is the InfluxDB measurement name.
const Measurement = "occupancy"

// OccupancyRecorder stores occupancy samples.
type OccupancyRecorder interface {
	Record(ts time.Time, o logic.Occupancy)
	Close()
}

// Config configures an InfluxRecorder.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Device string // value of the device tag
}

// InfluxRecorder writes samples through the non-blocking WriteAPI, so a
// slow or absent database never stalls the caller. Write errors are
// logged and the time of the last one is kept.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	device string
	logger *slog.Logger

	mu      sync.RWMutex
	lastErr time.Time
}

// NewInfluxRecorder creates a recorder for the given server.
func NewInfluxRecorder(cfg Config, logger *slog.Logger) *InfluxRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	opts := influxdb2.DefaultOptions().
		SetBatchSize(20).
		SetFlushInterval(5000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	r := &InfluxRecorder{
		client: client,
		write:  client.WriteAPI(cfg.Org, cfg.Bucket),
		device: cfg.Device,
		logger: logger,
	}
	go func() {
		for err := range r.write.Errors() {
			if err != nil {
				r.mu.Lock()
				r.lastErr = time.Now()
				r.mu.Unlock()
				r.logger.Warn("influx write error", "error", err)
			}
		}
	}()
	return r
}

// Record queues one occupancy sample.
func (r *InfluxRecorder) Record(ts time.Time, o logic.Occupancy) {
	r.write.WritePoint(occupancyPoint(r.device, ts, o))
}

// LastError returns the time of the last write error, zero if none.
func (r *InfluxRecorder) LastError() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Close flushes pending samples and closes the client.
func (r *InfluxRecorder) Close() {
	r.write.Flush()
	r.client.Close()
}

func occupancyPoint(device string, ts time.Time, o logic.Occupancy) *write.Point {
	return influxdb2.NewPoint(Measurement,
		map[string]string{"device": device},
		map[string]interface{}{
			"people_count": o.PersonCount,
			"capacity":     o.Capacity,
			"full":         o.Full,
		},
		ts)
}

// Nop discards every sample.
type Nop struct{}

func (Nop) Record(time.Time, logic.Occupancy) {}
func (Nop) Close()                            {}

// Sample is one recorded occupancy value.
type Sample struct {
	Time      time.Time
	Occupancy logic.Occupancy
}

// Fake records samples in memory for tests.
type Fake struct {
	mu      sync.Mutex
	Samples []Sample
	Closed  bool
}

// Record stores the sample.
func (f *Fake) Record(ts time.Time, o logic.Occupancy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = append(f.Samples, Sample{Time: ts, Occupancy: o})
}

// Close marks the fake closed.
func (f *Fake) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
}

// Len returns the number of recorded samples.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Samples)
}
