package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/internal/tlsutil"
	"github.com/BaSui01/pathfinder/types"
)

// maxResponseBytes caps every response body read.
const maxResponseBytes = 8 << 20

// CallRecorder receives one observation per external call.
type CallRecorder interface {
	RecordExternalCall(service, outcome string, duration time.Duration)
}

// Option customizes a client.
type Option func(*client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r CallRecorder) Option {
	return func(cl *client) { cl.recorder = r }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(b BreakerConfig) Option {
	return func(cl *client) { cl.breakerCfg = b }
}

// client is the shared HTTP core: breaker, error mapping and call metrics.
type client struct {
	name       string
	baseURL    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	breakerCfg BreakerConfig
	recorder   CallRecorder
	logger     *zap.Logger
}

func newClient(name string, cfg ServiceConfig, opts ...Option) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &client{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       tlsutil.SecureHTTPClient(timeout),
		breakerCfg: DefaultConfig().Breaker,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("source", name))

	bc := c.breakerCfg
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: max(bc.HalfOpenRequests, 1),
		Interval:    bc.Interval,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(bc.ConsecutiveFailures, 1)
		},
		// 只有可重试错误（5xx、超时、限流）计入熔断
		IsSuccessful: func(err error) bool {
			return err == nil || !types.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// endpoint joins the base URL, path and query.
func (c *client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *client) getJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return types.NewInvalidRequestError(err.Error()).WithSource(c.name)
	}
	return c.doJSON(req, headers, out)
}

func (c *client) postJSON(ctx context.Context, path string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return types.NewInvalidRequestError(err.Error()).WithSource(c.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return types.NewInvalidRequestError(err.Error()).WithSource(c.name)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, headers, out)
}

func (c *client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewInvalidRequestError(err.Error()).WithSource(c.name)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(req, nil, out)
}

func (c *client) doJSON(req *http.Request, headers map[string]string, out any) error {
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewError(types.ErrMalformedOutput, fmt.Sprintf("decode %s response: %v", c.name, err)).
			WithSource(c.name).
			WithCause(err)
	}
	return nil
}

// do executes req through the breaker and returns the body of a 2xx response.
func (c *client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				if errors.Is(ctxErr, context.Canceled) {
					return nil, ctxErr
				}
				return nil, types.NewTimeoutError(c.name, err)
			}
			return nil, types.NewUpstreamError(c.name, http.StatusBadGateway, err.Error()).
				WithRetryable(true).
				WithCause(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, types.NewUpstreamError(c.name, http.StatusBadGateway, err.Error()).WithRetryable(true)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, types.FromHTTPStatus(c.name, resp.StatusCode, snippet(data))
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = types.NewError(types.ErrServiceUnavailable, c.name+" circuit open").
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithSource(c.name).
			WithCause(err)
	}
	c.record(err, time.Since(start))
	return body, err
}

func (c *client) record(err error, d time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(types.GetErrorCode(err)))
		if outcome == "" {
			outcome = "error"
		}
	}
	c.recorder.RecordExternalCall(c.name, outcome, d)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
