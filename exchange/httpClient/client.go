// Package httpClient is the signed Bybit v5 REST transport.
package httpClient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bybitMaker/metrics"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 10
)

// Client sends signed requests. It never retries; callers decide.
type Client struct {
	baseURL string
	sign    *Sign
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout bounds every request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second; burst equals the rate.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(sign *Sign, opts ...Option) *Client {
	c := &Client{
		baseURL: API_BASE_URL,
		sign:    sign,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateLimit),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post serializes body once and uses the same bytes as signature input and request body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	ts := c.timestamp()
	c.sign.Apply(req.Header, ts, c.sign.PostSignature(ts, payload))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint)
}

// Get sends params as a raw query. When signed is false no auth headers are set.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, signed bool) (*Response, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		ts := c.timestamp()
		c.sign.Apply(req.Header, ts, c.sign.GetSignature(ts, params))
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint)
}

func (c *Client) timestamp() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

func (c *Client) do(req *http.Request, endpoint string) (*Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		c.observe(endpoint, "throttled", 0)
		return nil, fmt.Errorf("%s: rate limiter: %w", endpoint, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error", time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "transport_error", time.Since(start))
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, endpoint, err)
	}
	c.observe(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

func (c *Client) observe(endpoint, outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RESTRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	if d > 0 {
		c.metrics.RESTRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}
