package gatekeeper

import (
	"io"

	"github.com/lernio/gatekeeper/internal/audit"
	"go.uber.org/zap"
)

type (
	// AuditEvent is one security-relevant event.
	AuditEvent = audit.Event
	// AuditSink receives events from the engine's dispatcher goroutine.
	AuditSink = audit.Sink
	// AuditSinkFunc adapts a function to AuditSink.
	AuditSinkFunc = audit.SinkFunc
)

type (
	NoOpSink    = audit.NoOpSink
	ChannelSink = audit.ChannelSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs events on log.Named("audit"). It is the default sink when
// the Builder is given a logger but no sink.
func NewZapSink(log *zap.Logger) AuditSink {
	return audit.NewZapSink(log)
}
