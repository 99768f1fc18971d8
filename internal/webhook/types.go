package webhook

import (
	"encoding/json"
	"time"

	"github.com/lhdbsbz/hookrelay/internal/upload"
)

// Envelope is the body POSTed to the webhook for one chat turn.
type Envelope struct {
	Message     string        `json:"message"`
	SessionID   string        `json:"sessionId"`
	Attachments []upload.File `json:"attachments"`
}

// Reply is the normalized webhook answer. Every field is populated: missing values are
// filled from the request, the call time or the gateway configuration.
type Reply struct {
	Text        string            `json:"text"`
	SessionID   string            `json:"sessionId"`
	Attachments []json.RawMessage `json:"attachments"` // passed through to the client untouched
	Timestamp   time.Time         `json:"timestamp"`
	AgentLabel  string            `json:"agent"`
}
