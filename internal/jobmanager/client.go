// Package jobmanager is a typed client for the Flink job manager REST API.
package jobmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"flinkctl/internal/apperrors"
)

// maxErrorBody limits how much of a failed response is kept for error context.
const maxErrorBody = 4 << 10

// Config holds the job manager endpoint and transport settings.
type Config struct {
	Address string        // default: localhost
	Port    int           // default: 8081
	Timeout time.Duration // per call (default: 30s)

	// RateLimit caps requests per second. 0 disables limiting.
	RateLimit float64
	Burst     int // default: 1
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = "localhost"
	}
	if c.Port <= 0 {
		c.Port = 8081
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// MetricsRecorder is an optional interface for recording call metrics.
type MetricsRecorder interface {
	RecordRemoteCall(ctx context.Context, route string, statusCode int, durationSeconds float64)
}

// Client talks to one job manager. The endpoint is fixed for the client's
// lifetime and the client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics MetricsRecorder
}

// New creates a client for the configured endpoint. logger and metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics MetricsRecorder) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	return &Client{
		baseURL: "http://" + net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "jobmanager")),
		metrics: metrics,
	}
}

// BaseURL returns the endpoint root, e.g. http://localhost:8081.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RemoteCallError is returned for any response outside 2xx.
type RemoteCallError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RemoteCallError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap classifies every status failure as apperrors.ErrRemoteCall.
func (e *RemoteCallError) Unwrap() error {
	return apperrors.ErrRemoteCall
}

// Reason is the remote message, falling back to the status text.
func (e *RemoteCallError) Reason() string {
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

// asRemote extracts a RemoteCallError from err.
func asRemote(err error) (*RemoteCallError, bool) {
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return rce, true
	}
	return nil, false
}

// request describes one call. Exactly one of body (JSON encoded) or raw
// (sent as-is with contentType) may be set.
type request struct {
	method      string
	route       string // path template, used as the metrics label
	path        string
	query       url.Values
	body        any
	raw         io.Reader
	contentType string
}

// do executes req and decodes a JSON response into out. An empty response
// body leaves out untouched.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: rate limit: %w", req.method, req.path, err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := req.contentType
	switch {
	case req.raw != nil:
		body = req.raw
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(ctx, req.route, 0, start)
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	c.record(ctx, req.route, resp.StatusCode, start)

	c.logger.Debug("Job manager call",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteCallError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", req.method, req.path, err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, route string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRemoteCall(ctx, route, status, time.Since(start).Seconds())
	}
}
