package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesdesk/internal/domain"
)

const maxErrorBody = 1 << 16

// Client talks to the remote backend REST API. It is safe for concurrent use;
// the bearer credential is passed per call and never stored.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", parsed.Scheme)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("backend"),
	}, nil
}

type request struct {
	op             string
	method         string
	path           string
	token          string
	body           any
	idempotencyKey string
}

func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	target := c.baseURL.ResolveReference(ref)
	if target.Host != c.baseURL.Host || target.Scheme != c.baseURL.Scheme {
		return nil, fmt.Errorf("refusing to follow %s outside backend host", target.Redacted())
	}
	return target, nil
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	target, err := c.resolve(req.path)
	if err != nil {
		return &domain.RemoteError{Op: req.op, Err: err}
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return &domain.RemoteError{Op: req.op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return &domain.RemoteError{Op: req.op, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.idempotencyKey)
	}

	startedAt := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("backend call failed",
			zap.String("op", req.op),
			zap.String("method", req.method),
			zap.String("path", target.Path),
			zap.Error(err),
		)
		return &domain.RemoteError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		zap.String("op", req.op),
		zap.String("method", req.method),
		zap.String("path", target.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(startedAt)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.RemoteError{
			Op:     req.op,
			Status: resp.StatusCode,
			Detail: extractDetail(raw),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ResponseError{Op: req.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// extractDetail pulls a human-readable message out of an error body. It knows
// the common shapes: {"detail": ...}, {"error": ...}, {"message": ...},
// {"non_field_errors": [...]} and {"field": ["msg"]}.
func extractDetail(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] != '{' {
		if trimmed[0] == '"' {
			var s string
			if json.Unmarshal(trimmed, &s) == nil {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message", "non_field_errors"} {
		if msg := firstMessage(body[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if msg := firstMessage(body[key]); msg != "" {
			return key + ": " + msg
		}
	}
	return ""
}

func firstMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}
