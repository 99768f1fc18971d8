package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
)

// shape tags which of the known reply layouts a body uses.
type shape int

const (
	// shapeUnknown is valid JSON with no recognizable layout; it gets the canned reply.
	shapeUnknown shape = iota
	// shapeItems is the workflow-tool item list: [{"json": {...}}, ...].
	shapeItems
	// shapeFlat is a single object carrying the reply fields directly.
	shapeFlat
)

func (s shape) String() string {
	switch s {
	case shapeItems:
		return "items"
	case shapeFlat:
		return "flat"
	}
	return "unknown"
}

// replyFields holds the recognized fields undecoded so each one can be read leniently.
type replyFields struct {
	Text        json.RawMessage `json:"text"`
	Message     json.RawMessage `json:"message"`
	Output      json.RawMessage `json:"output"`
	SessionID   json.RawMessage `json:"sessionId"`
	Attachments json.RawMessage `json:"attachments"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

type rawReply struct {
	shape  shape
	fields replyFields
}

type item struct {
	JSON json.RawMessage `json:"json"`
}

const maxDiagnosticBody = 2048

// decodeReply detects the layout of a 2xx webhook body. Empty placeholders
// ("", "{}", "[]", "null") and non-structural bodies are errors.
func decodeReply(body []byte) (rawReply, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return rawReply{}, apperr.New(apperr.UpstreamEmptyResponse, "webhook returned an empty body")
	}
	if !json.Valid(trimmed) {
		return rawReply{}, malformed("webhook reply is not valid JSON", trimmed)
	}

	switch trimmed[0] {
	case 'n':
		return rawReply{}, apperr.New(apperr.UpstreamEmptyResponse, "webhook returned null")

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return rawReply{}, malformed("webhook reply is not a JSON array", trimmed)
		}
		if len(items) == 0 {
			return rawReply{}, apperr.New(apperr.UpstreamEmptyResponse, "webhook returned an empty array")
		}
		var first item
		if isObject(items[0]) && json.Unmarshal(items[0], &first) == nil && isObject(first.JSON) {
			var f replyFields
			if err := json.Unmarshal(first.JSON, &f); err == nil {
				return rawReply{shape: shapeItems, fields: f}, nil
			}
		}
		return rawReply{shape: shapeUnknown}, nil

	case '{':
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return rawReply{}, malformed("webhook reply is not a JSON object", trimmed)
		}
		if len(keys) == 0 {
			return rawReply{}, apperr.New(apperr.UpstreamEmptyResponse, "webhook returned an empty object")
		}
		var f replyFields
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return rawReply{}, malformed("webhook reply object could not be decoded", trimmed)
		}
		return rawReply{shape: shapeFlat, fields: f}, nil
	}

	return rawReply{}, malformed("webhook reply must be a JSON object or array", trimmed)
}

// normalizeReply fills a Reply from the decoded body. Text precedence is
// text, message, output; with none present the canned default is used.
func normalizeReply(raw rawReply, env Envelope, calledAt time.Time, agentLabel, defaultText string) *Reply {
	r := &Reply{
		Text:        defaultText,
		SessionID:   env.SessionID,
		Attachments: []json.RawMessage{},
		Timestamp:   calledAt,
		AgentLabel:  agentLabel,
	}
	if raw.shape == shapeUnknown {
		return r
	}

	f := raw.fields
	for _, candidate := range []json.RawMessage{f.Text, f.Message, f.Output} {
		if s, ok := asText(candidate); ok {
			r.Text = s
			break
		}
	}
	if s, ok := asText(f.SessionID); ok {
		r.SessionID = s
	}
	if ts, ok := asTime(f.Timestamp); ok {
		r.Timestamp = ts
	}
	r.Attachments = asObjects(f.Attachments)
	return r
}

// asText accepts non-empty strings, numbers and booleans.
func asText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// asTime accepts RFC 3339 strings and epoch milliseconds.
func asTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return ts, true
		}
		if ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms), true
		}
		return time.Time{}, false
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// asObjects keeps the JSON objects of an array; anything else yields an empty list.
func asObjects(raw json.RawMessage) []json.RawMessage {
	out := []json.RawMessage{}
	var list []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return out
	}
	for _, el := range list {
		if isObject(el) {
			out = append(out, el)
		}
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func malformed(msg string, body []byte) *apperr.Error {
	e := apperr.New(apperr.UpstreamMalformedResponse, msg)
	e.Body = truncate(string(body), maxDiagnosticBody)
	return e
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...[truncated]"
}
