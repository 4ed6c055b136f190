package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types emitted by the engine.
const (
	EventDenied        = "throttle.denied"
	EventBlocked       = "throttle.blocked"
	EventReset         = "throttle.reset"
	EventPersistFailed = "throttle.persist_failed"
	EventCleanup       = "throttle.cleanup"
)

// Event is one audit record. Identifier is the caller-supplied subject and
// may be empty for namespace-wide events such as cleanup.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	Action     string            `json:"action,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Allowed    bool              `json:"allowed"`
	Remaining  int               `json:"remaining"`
	ResetAt    *time.Time        `json:"reset_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// LoggerSink writes events as structured zerolog entries at info level.
type LoggerSink struct {
	logger zerolog.Logger
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(_ context.Context, event Event) {
	e := s.logger.Info().
		Str("audit_id", event.ID).
		Str("event", event.EventType).
		Time("at", event.Timestamp).
		Bool("allowed", event.Allowed).
		Int("remaining", event.Remaining)
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.Identifier != "" {
		e = e.Str("identifier", event.Identifier)
	}
	if event.IP != "" {
		e = e.Str("ip", event.IP)
	}
	if event.ResetAt != nil {
		e = e.Time("reset_at", *event.ResetAt)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		e = e.Interface("metadata", event.Metadata)
	}
	e.Msg("throttle audit")
}
