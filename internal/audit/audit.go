package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event describes one security-relevant action: a session change, a
// rejected token, an invite decision. The JSON field names are stable.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Identity  string            `json:"identity,omitempty"`
	Role      string            `json:"role,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink is called from the dispatcher goroutine, never from request paths.
// The context carries the dispatcher's per-event deadline.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// Fanout delivers every event to each sink in order. Nil sinks are skipped;
// with no sinks left it returns NoOpSink.
func Fanout(sinks ...Sink) Sink {
	kept := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return NoOpSink{}
	case 1:
		return kept[0]
	}
	return kept
}

type fanout []Sink

func (f fanout) Emit(ctx context.Context, event Event) {
	for _, s := range f {
		s.Emit(ctx, event)
	}
}

// ChannelSink hands events to a reader, mostly tests. Emit blocks until the
// reader catches up or the dispatcher deadline passes.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.ch }

// JSONWriterSink appends newline-delimited JSON to an io.Writer.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriterSink{enc: enc}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// ZapSink writes successes at info and failures at warn on the "audit"
// logger, using the event type as the message.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	level := s.log.Info
	if !event.Success {
		level = s.log.Warn
	}
	level(event.EventType, zapFields(event)...)
}

func zapFields(event Event) []zap.Field {
	fields := []zap.Field{
		zap.Time("ts_event", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	optional := [...][2]string{
		{"identity", event.Identity},
		{"role", event.Role},
		{"actor_id", event.ActorID},
		{"session_id", event.SessionID},
		{"ip", event.IP},
		{"error", event.Error},
	}
	for _, kv := range optional {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	return fields
}
