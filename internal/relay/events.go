package relay

import (
	"encoding/json"
	"time"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/upload"
)

// Event names on the real-time channel.
const (
	EventConnect = "connect" // server → client, once after the upgrade
	EventMessage = "message" // both directions: chat turn in, normalized reply out
	EventFile    = "file"    // client → server, chat turn referencing uploaded files
	EventError   = "error"   // server → client
)

const responseType = "response"

// Inbound is one event read from a connection, payload still undecoded.
// Err is set when the frame itself could not be parsed.
type Inbound struct {
	Event string
	Data  json.RawMessage
	Err   error
}

// ChatParams is the payload of inbound message and file events.
// Older clients send the text as "message", newer ones as "text".
type ChatParams struct {
	Message     string        `json:"message"`
	Text        string        `json:"text"`
	SessionID   string        `json:"sessionId"`
	Attachments []upload.File `json:"attachments"`
}

func (p ChatParams) text() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Message
}

// ResponsePayload is the outbound message event.
type ResponsePayload struct {
	Type        string            `json:"type"`
	Content     string            `json:"content"`
	Attachments []json.RawMessage `json:"attachments"`
	Timestamp   time.Time         `json:"timestamp"`
	SessionID   string            `json:"sessionId"`
	Agent       string            `json:"agent"`
}

// ErrorPayload is the outbound error event.
type ErrorPayload struct {
	Message string      `json:"message"`
	Detail  string      `json:"detail"`
	Kind    apperr.Kind `json:"kind,omitempty"`
}

// ConnectPayload tells the client which connection id its turns fall back to.
type ConnectPayload struct {
	ConnID string `json:"connId"`
}
