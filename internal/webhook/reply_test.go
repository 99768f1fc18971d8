package webhook

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testEnv = Envelope{Message: "hola", SessionID: "session-1700000000000"}
)

const (
	testLabel   = "Acme Sales"
	testDefault = "Thanks, we will be in touch."
)

func normalize(t *testing.T, body string) *Reply {
	t.Helper()
	raw, err := decodeReply([]byte(body))
	require.NoError(t, err)
	return normalizeReply(raw, testEnv, testNow, testLabel, testDefault)
}

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantText  string
		wantShape shape
	}{
		{"items with text", `[{"json":{"text":"hi"}}]`, "hi", shapeItems},
		{"items prefers text over output", `[{"json":{"output":"o","text":"t"}}]`, "t", shapeItems},
		{"items with output only", `[{"json":{"output":"from agent"}}]`, "from agent", shapeItems},
		{"items without fields", `[{"json":{"foo":1}}]`, testDefault, shapeItems},
		{"items without json key", `[{"text":"ignored"}]`, testDefault, shapeUnknown},
		{"items of scalars", `["a","b"]`, testDefault, shapeUnknown},
		{"flat text", `{"text":"flat"}`, "flat", shapeFlat},
		{"flat message", `{"message":"msg"}`, "msg", shapeFlat},
		{"flat output", `{"output":"ok"}`, "ok", shapeFlat},
		{"flat precedence", `{"output":"o","message":"m","text":"t"}`, "t", shapeFlat},
		{"empty text falls through", `{"text":"","message":"m"}`, "m", shapeFlat},
		{"numeric text", `{"text":42}`, "42", shapeFlat},
		{"boolean text", `{"text":true}`, "true", shapeFlat},
		{"boolean false in items", `[{"json":{"output":false}}]`, "false", shapeItems},
		{"object text ignored", `{"text":{"nested":true},"output":"o"}`, "o", shapeFlat},
		{"unrecognized object", `{"status":"queued"}`, testDefault, shapeFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := decodeReply([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantShape, raw.shape, "shape %s", raw.shape)

			r := normalizeReply(raw, testEnv, testNow, testLabel, testDefault)
			assert.Equal(t, tt.wantText, r.Text)
			assert.NotEmpty(t, r.Text)
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	r := normalize(t, `{"output":"ok"}`)
	assert.Equal(t, "ok", r.Text)
	assert.Equal(t, testEnv.SessionID, r.SessionID)
	assert.Equal(t, testNow, r.Timestamp)
	assert.Equal(t, testLabel, r.AgentLabel)
	assert.NotNil(t, r.Attachments)
	assert.Empty(t, r.Attachments)
}

func TestNormalizeCarriesReplyFields(t *testing.T) {
	r := normalize(t, `[{"json":{
		"text":"see attached",
		"sessionId":"other-session",
		"timestamp":"2026-02-01T10:00:00Z",
		"attachments":[{"url":"https://cdn.example/brochure.pdf"},"junk",7]
	}}]`)

	assert.Equal(t, "see attached", r.Text)
	assert.Equal(t, "other-session", r.SessionID)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), r.Timestamp.UTC())
	require.Len(t, r.Attachments, 1)
	assert.JSONEq(t, `{"url":"https://cdn.example/brochure.pdf"}`, string(r.Attachments[0]))
}

func TestNormalizeTimestampForms(t *testing.T) {
	r := normalize(t, `{"text":"x","timestamp":1767225600000}`)
	assert.Equal(t, time.UnixMilli(1767225600000), r.Timestamp)

	r = normalize(t, `{"text":"x","timestamp":"not a date"}`)
	assert.Equal(t, testNow, r.Timestamp)

	r = normalize(t, `{"text":"x","timestamp":null}`)
	assert.Equal(t, testNow, r.Timestamp)
}

func TestDecodeReplyFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind apperr.Kind
	}{
		{"empty string", ``, apperr.UpstreamEmptyResponse},
		{"whitespace", "  \n\t", apperr.UpstreamEmptyResponse},
		{"empty object", `{}`, apperr.UpstreamEmptyResponse},
		{"empty object with spaces", ` { } `, apperr.UpstreamEmptyResponse},
		{"empty array", `[]`, apperr.UpstreamEmptyResponse},
		{"null", `null`, apperr.UpstreamEmptyResponse},
		{"html error page", `<html>Bad Gateway</html>`, apperr.UpstreamMalformedResponse},
		{"truncated json", `{"text":"hi"`, apperr.UpstreamMalformedResponse},
		{"bare string", `"hello"`, apperr.UpstreamMalformedResponse},
		{"bare number", `12`, apperr.UpstreamMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeReply([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "ab" + "ñ" + "cd" // ñ occupies bytes 2 and 3
	got := truncate(s, 3)
	assert.Equal(t, "ab...[truncated]", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "abñ...[truncated]", truncate(s, 4))
	assert.Equal(t, s, truncate(s, len(s)))
}

func TestMalformedKeepsBodyForDiagnostics(t *testing.T) {
	_, err := decodeReply([]byte(`<html>oops</html>`))
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "<html>oops</html>", e.Body)
}
