package goSession

import (
	"context"
	"io"

	"github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one session lifecycle record delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink consumes audit events. Emit is called from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that writes events into a buffered channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink returns a sink that logs every event through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}

func (m *Manager) emitAudit(ctx context.Context, kind EventKind, user *SessionUser, success bool, err error, meta map[string]string) {
	if m.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: m.clock.Now().UTC(),
		EventType: kind.String(),
		Success:   success,
		Metadata:  meta,
	}
	if user != nil {
		ev.UserID = user.ID
		ev.Email = user.Email
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.audit.Emit(ctx, ev)
}
