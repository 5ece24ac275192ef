package auditsink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authengine"
)

const (
	defaultMeasurement  = "auth_audit"
	defaultPingTimeout  = 5 * time.Second
	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// PointWriter is the subset of the influx non-blocking write API the sink
// needs. api.WriteAPI satisfies it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// InfluxConfig describes the InfluxDB v2 target.
type InfluxConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	Measurement   string `yaml:"measurement"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// Influx writes audit events as points. Event type and outcome are tags;
// everything else is a field so per-user series do not explode cardinality.
type Influx struct {
	writer      PointWriter
	measurement string
	close       func()
}

// NewInflux wraps an existing writer.
func NewInflux(w PointWriter, measurement string) *Influx {
	if measurement == "" {
		measurement = defaultMeasurement
	}
	return &Influx{writer: w, measurement: measurement}
}

// DialInflux pings cfg.URL and returns a sink owning the client. Async
// write errors are logged through logger.
func DialInflux(ctx context.Context, cfg InfluxConfig, logger zerolog.Logger) (*Influx, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: influx url and bucket are required", ErrConnectionFailed)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	log := logger.With().Str("component", "auditsink.influx").Logger()
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn().Err(err).Msg("audit point write failed")
		}
	}()

	sink := NewInflux(writeAPI, cfg.Measurement)
	sink.close = func() {
		writeAPI.Flush()
		client.Close()
	}
	return sink, nil
}

// Emit queues event as one point.
func (s *Influx) Emit(_ context.Context, event authengine.AuditEvent) {
	s.writer.WritePoint(s.point(event))
}

func (s *Influx) point(event authengine.AuditEvent) *write.Point {
	tags := map[string]string{
		"event_type": event.EventType,
		"success":    strconv.FormatBool(event.Success),
	}
	fields := map[string]interface{}{
		"actor":  event.Actor,
		"target": event.Target,
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(s.measurement, tags, fields, ts)
}

// Close flushes pending points and closes a client opened by DialInflux.
func (s *Influx) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
