package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/upload"
	"github.com/lhdbsbz/hookrelay/internal/webhook"
)

// Relayer forwards one chat turn to the webhook.
type Relayer interface {
	Relay(ctx context.Context, env webhook.Envelope) (*webhook.Reply, error)
}

// RelayFunc adapts a function to Relayer.
type RelayFunc func(ctx context.Context, env webhook.Envelope) (*webhook.Reply, error)

func (f RelayFunc) Relay(ctx context.Context, env webhook.Envelope) (*webhook.Reply, error) {
	return f(ctx, env)
}

// Emitter writes one event to the client side of a connection.
type Emitter interface {
	Emit(event string, payload any) error
}

const retryHint = "The assistant is not available right now. Please try again in a few minutes."

// Session relays chat turns for one live connection.
// States: open (after NewSession) and closed (after Close); there is no way back.
type Session struct {
	connID  string
	relayer Relayer
	emitter Emitter
	log     *slog.Logger
	open    atomic.Bool
}

func NewSession(connID string, relayer Relayer, emitter Emitter, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		connID:  connID,
		relayer: relayer,
		emitter: emitter,
		log:     log.With("conn", connID),
	}
	s.open.Store(true)
	return s
}

// Open reports whether the transport is still connected.
func (s *Session) Open() bool { return s.open.Load() }

// Close marks the transport as gone. Results of in-flight calls are dropped;
// the webhook call itself is left to finish.
func (s *Session) Close() {
	if s.open.CompareAndSwap(true, false) {
		s.log.Info("session closed")
	}
}

// Run handles inbound events one at a time, in arrival order, until the channel is
// closed or ctx ends. Events still queued after Close are dropped.
func (s *Session) Run(ctx context.Context, inbound <-chan Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			if !s.Open() {
				s.log.Debug("dropping queued event after close", "event", in.Event)
				continue
			}
			s.Handle(ctx, in)
		}
	}
}

// Handle processes one inbound event and emits exactly one message or error event
// for it, unless the session closed in the meantime.
func (s *Session) Handle(ctx context.Context, in Inbound) {
	if !s.Open() {
		return
	}

	if in.Err != nil {
		s.emit(EventError, ErrorPayload{Message: "Malformed frame", Detail: in.Err.Error()})
		return
	}

	switch in.Event {
	case EventMessage, EventFile:
		s.handleChat(ctx, in)
	default:
		s.emit(EventError, ErrorPayload{
			Message: "Unknown event: " + in.Event,
			Detail:  "Supported events are message and file.",
		})
	}
}

func (s *Session) handleChat(ctx context.Context, in Inbound) {
	var p ChatParams
	if err := json.Unmarshal(in.Data, &p); err != nil {
		s.emit(EventError, ErrorPayload{
			Message: "Invalid " + in.Event + " payload",
			Detail:  err.Error(),
		})
		return
	}

	env := webhook.Envelope{
		Message:     p.text(),
		SessionID:   p.SessionID,
		Attachments: p.Attachments,
	}
	if env.SessionID == "" {
		env.SessionID = s.connID
	}
	if env.Attachments == nil {
		env.Attachments = []upload.File{}
	}

	reply, err := s.relayer.Relay(ctx, env)
	if !s.Open() {
		s.log.Debug("discarding webhook result for closed session", "sessionId", env.SessionID, "error", err)
		return
	}
	if err != nil {
		s.logFailure(in.Event, env.SessionID, err)
		s.emit(EventError, failurePayload(in.Event, err))
		return
	}

	s.emit(EventMessage, ResponsePayload{
		Type:        responseType,
		Content:     reply.Text,
		Attachments: reply.Attachments,
		Timestamp:   reply.Timestamp,
		SessionID:   reply.SessionID,
		Agent:       reply.AgentLabel,
	})
}

func (s *Session) emit(event string, payload any) {
	if !s.Open() {
		return
	}
	if err := s.emitter.Emit(event, payload); err != nil {
		s.log.Warn("emit failed", "event", event, "error", err)
	}
}

func (s *Session) logFailure(event, sessionID string, err error) {
	attrs := []any{"event", event, "sessionId", sessionID, "kind", apperr.KindOf(err), "error", err}
	var e *apperr.Error
	if errors.As(err, &e) {
		if e.StatusCode != 0 {
			attrs = append(attrs, "status", e.StatusCode)
		}
		if e.Body != "" {
			attrs = append(attrs, "body", e.Body)
		}
	}
	s.log.Error("webhook relay failed", attrs...)
}

func failurePayload(event string, err error) ErrorPayload {
	msg := "Could not reach the assistant"
	if event == EventFile {
		msg = "Could not process the file"
	}
	return ErrorPayload{
		Message: msg,
		Detail:  retryHint,
		Kind:    apperr.KindOf(err),
	}
}
