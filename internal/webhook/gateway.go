package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/config"
	"github.com/lhdbsbz/hookrelay/internal/upload"
)

const maxReplyBytes = 4 << 20

// Gateway forwards chat turns to the automation webhook and normalizes its replies.
// It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	endpoint     string
	agentLabel   string
	defaultReply string
	headers      map[string]string
	httpClient   *http.Client
	now          func() time.Time
}

type Option func(*Gateway)

// WithHTTPClient replaces the client built from the config timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithClock overrides the time source used for defaulted reply timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(cfg config.WebhookConfig, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook url %q must be http or https", cfg.URL)
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	g := &Gateway{
		endpoint:     cfg.URL,
		agentLabel:   cfg.AgentLabel,
		defaultReply: cfg.DefaultReply,
		headers:      headers,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Endpoint returns the webhook URL this gateway posts to.
func (g *Gateway) Endpoint() string { return g.endpoint }

// Relay performs exactly one POST for env. No retries.
// Errors are *apperr.Error with an Upstream* kind.
func (g *Gateway) Relay(ctx context.Context, env Envelope) (*Reply, error) {
	if env.Attachments == nil {
		env.Attachments = []upload.File{}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}

	calledAt := g.now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnreachable, "webhook request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnreachable, "read webhook response", err)
	}
	if len(body) > maxReplyBytes {
		e := malformed("webhook reply exceeds "+humanize.IBytes(maxReplyBytes), body)
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	slog.Debug("webhook responded",
		"status", resp.StatusCode,
		"bytes", len(body),
		"sessionId", env.SessionID,
		"elapsed", time.Since(calledAt))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.Error{
			Kind:       apperr.UpstreamError,
			Message:    "webhook returned " + resp.Status,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxDiagnosticBody),
		}
	}

	raw, err := decodeReply(body)
	if err != nil {
		if e, ok := err.(*apperr.Error); ok {
			e.StatusCode = resp.StatusCode
		}
		return nil, err
	}
	return normalizeReply(raw, env, calledAt, g.agentLabel, g.defaultReply), nil
}
