// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// ENDPOINTS
// =============================================================================

const (
	PathChat          = "/api/chat"
	PathImageGenerate = "/api/image/generate"
	PathImageComfyUI  = "/api/image/comfyui"
	PathAudioGenerate = "/api/audio/generate"
	PathEvents        = "/api/ws"
)

// =============================================================================
// CLIENT CONFIG
// =============================================================================

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per attempt; default 120s, generation is slow
	RetryMax  int           // retries for idempotent requests; default 2
	RetryWait time.Duration // initial backoff; default 1s
	RateLimit float64       // requests per second; <= 0 is unlimited
	APIKey    string        // sent as a bearer token when set
	UserAgent string
	Logger    *zap.Logger
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://127.0.0.1:8000",
		Timeout:   120 * time.Second,
		RetryMax:  2,
		RetryWait: time.Second,
		UserAgent: "storyloom/1.0",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the story backend. It is safe for concurrent use.
type Client struct {
	mu      sync.RWMutex
	resty   *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger
	baseURL string
}

type idempotentKey struct{}

// NewClient builds a client on a pooled retryablehttp transport with rate
// limiting and retries reserved for idempotent requests.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(30*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		AddRetryCondition(shouldRetry)
	restyClient.SetTransport(retryClient.HTTPClient.Transport)
	if cfg.APIKey != "" {
		restyClient.SetAuthToken(cfg.APIKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		log:     log,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// shouldRetry lets only requests marked idempotent through the standard
// retryablehttp policy: connection errors, 429 and 5xx.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil {
		return false
	}
	ctx := resp.Request.Context()
	if idem, _ := ctx.Value(idempotentKey{}).(bool); !idem {
		return false
	}
	if err == nil && resp.RawResponse == nil {
		return false
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, resp.RawResponse, err)
	return retry
}

// post sends body to path and decodes the JSON object response into fields.
// A non-2xx status or a body carrying "error" becomes a TransportError.
func (c *Client) post(ctx context.Context, op, path string, body any, idempotent bool) (map[string]json.RawMessage, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, NotTransmitted: true, Err: fmt.Errorf("rate limit: %w", err)}
	}

	if idempotent {
		ctx = context.WithValue(ctx, idempotentKey{}, true)
	}

	c.mu.RLock()
	req := c.resty.R().SetContext(ctx)
	c.mu.RUnlock()

	start := time.Now()
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		c.log.Warn("remote call failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &TransportError{Op: op, NotTransmitted: notTransmitted(err), Err: err}
	}

	c.log.Debug("remote call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.Int("attempts", resp.Request.Attempt),
		zap.Duration("elapsed", time.Since(start)))

	var fields map[string]json.RawMessage
	decodeErr := json.Unmarshal(resp.Body(), &fields)

	if resp.IsError() {
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Message:    errorText(fields),
		}
	}
	if decodeErr != nil || fields == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "body is not a JSON object"}
	}
	if msg := errorText(fields); msg != "" {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode(), Message: msg}
	}
	return fields, nil
}

// errorText extracts {"error": "..."} or FastAPI's {"detail": "..."}.
func errorText(fields map[string]json.RawMessage) string {
	for _, key := range []string{"error", "detail"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// notTransmitted reports whether err happened before the request left the
// machine: dialing failed, the URL was bad, or the context ended first.
func notTransmitted(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return true
	}
	return false
}
