package authengine

import (
	"io"

	"github.com/MrEthical07/authengine/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one security-relevant Engine outcome. Secrets (passwords,
// digests, salts, tokens) are never placed in an event.
type AuditEvent = audit.Event

// AuditSink receives events from the Engine's async dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes events through a zerolog logger.
type LogSink = audit.LogSink

// MultiSink fans an event out to every member.
type MultiSink = audit.MultiSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
