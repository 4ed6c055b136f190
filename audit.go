package goThrottle

import (
	"io"

	"github.com/MrEthical07/goThrottle/internal/audit"
	"github.com/rs/zerolog"
)

// Audit event types.
const (
	AuditEventDenied        = audit.EventDenied
	AuditEventBlocked       = audit.EventBlocked
	AuditEventReset         = audit.EventReset
	AuditEventPersistFailed = audit.EventPersistFailed
	AuditEventCleanup       = audit.EventCleanup
)

// AuditEvent is one audit record delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events from the async dispatcher. Emit runs on the
// dispatcher goroutine, never on the caller's.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LoggerSink     = audit.LoggerSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerSink writes each event as a structured zerolog entry.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return audit.NewLoggerSink(logger)
}
