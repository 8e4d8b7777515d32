package ais

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/metrics"
	"github.com/saviobatista/seatime-logger/internal/parser"
	"github.com/saviobatista/seatime-logger/internal/types"
)

const (
	maxBodyBytes     = 1 << 20
	breakerName      = "ais-provider"
	breakerTrips     = 5
	breakerCoolDown  = 2 * time.Minute
	defaultTimeout   = 15 * time.Second
	defaultRateLimit = 1.0
)

// AuditLogger records every provider call
type AuditLogger interface {
	Record(ctx context.Context, entry *types.APICallLog) error
}

// Config configures the provider client
type Config struct {
	BaseURL   string
	APIKey    string
	Extended  bool
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuditLogger records each attempt to the given sink
func WithAuditLogger(a AuditLogger) Option {
	return func(c *Client) { c.audit = a }
}

// WithMetrics reports poll outcomes and breaker state
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the wall clock used for fallback timestamps and audit records
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client fetches vessel positions from the AIS provider
type Client struct {
	baseURL  string
	apiKey   string
	extended bool
	timeout  time.Duration

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*types.VesselPosition]
	audit   AuditLogger
	metrics *metrics.Metrics
	logger  logger.Logger
	now     func() time.Time
}

// NewClient creates a new provider client
func NewClient(cfg Config, log logger.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		extended: cfg.Extended,
		timeout:  cfg.Timeout,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*types.VesselPosition](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerCoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			return !trips(err)
		},
		IsExcluded: aborted,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return c
}

// FetchPosition returns the current position of the vessel with the given MMSI
func (c *Client) FetchPosition(ctx context.Context, mmsi string) (*types.VesselPosition, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		perr := &ProviderError{Kind: KindTransport, MMSI: mmsi, Err: err, Aborted: true}
		c.record(ctx, mmsi, c.requestURL(mmsi), 0, perr, 0)
		return nil, perr
	}

	pos, err := c.breaker.Execute(func() (*types.VesselPosition, error) {
		return c.fetch(ctx, mmsi)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			perr := &ProviderError{Kind: KindUnavailable, MMSI: mmsi, Err: err}
			c.record(ctx, mmsi, c.requestURL(mmsi), 0, perr, 0)
			return nil, perr
		}
		return nil, err
	}
	return pos, nil
}

func (c *Client) requestURL(mmsi string) string {
	q := url.Values{}
	q.Set("mmsi", mmsi)
	q.Set("response", "json")
	q.Set("extended", strconv.FormatBool(c.extended))
	return c.baseURL + "/vessel?" + q.Encode()
}

func (c *Client) fetch(ctx context.Context, mmsi string) (pos *types.VesselPosition, err error) {
	reqURL := c.requestURL(mmsi)
	start := c.now()
	status := 0

	defer func() {
		c.record(ctx, mmsi, reqURL, status, err, c.now().Sub(start))
	}()

	callerCtx := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &ProviderError{Kind: KindTransport, MMSI: mmsi, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Kind: KindTransport, MMSI: mmsi, Err: err, Aborted: callerCtx.Err() != nil}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProviderError{Kind: KindTransport, StatusCode: status, MMSI: mmsi, Err: err, Aborted: callerCtx.Err() != nil}
	}

	if kind, failed := classifyStatus(status); failed {
		return nil, &ProviderError{Kind: kind, StatusCode: status, MMSI: mmsi, Err: errors.New(snippet(body))}
	}

	pos, err = parser.ParseVesselResponse(body, c.now())
	if err != nil {
		return nil, &ProviderError{Kind: KindInvalidResponse, StatusCode: status, MMSI: mmsi, Err: err}
	}
	if pos.MMSI == "" {
		pos.MMSI = mmsi
	}
	if pos.TimestampSource == types.TimestampFallback {
		c.logger.Warn("Provider returned no usable timestamp, using wall clock", "mmsi", mmsi)
	}

	return pos, nil
}

// classifyStatus maps an HTTP status to a failure kind
func classifyStatus(status int) (FailureKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized:
		return KindUnauthorized, true
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status == http.StatusNotFound:
		return KindNotFound, true
	default:
		return KindUnavailable, true
	}
}

func (c *Client) record(ctx context.Context, mmsi, reqURL string, status int, callErr error, elapsed time.Duration) {
	outcome := "success"
	if callErr != nil {
		outcome = string(KindOf(callErr))
		if outcome == "" {
			outcome = "error"
		}
	}

	if c.metrics != nil {
		c.metrics.PollsTotal.WithLabelValues(outcome).Inc()
		if status != 0 {
			c.metrics.PollDuration.Observe(elapsed.Seconds())
		}
	}

	if callErr != nil {
		c.logger.Warn("AIS provider call failed",
			"mmsi", mmsi,
			"outcome", outcome,
			"status", status,
			"api_key", types.MaskAPIKey(c.apiKey),
			"error", callErr)
	}

	if c.audit == nil {
		return
	}

	entry := &types.APICallLog{
		Timestamp:  c.now(),
		MMSI:       mmsi,
		URL:        reqURL,
		APIKey:     types.MaskAPIKey(c.apiKey),
		Extended:   c.extended,
		StatusCode: status,
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	}

	// The request context may already be done; audit writes get their own deadline
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.audit.Record(auditCtx, entry); err != nil {
		c.logger.Error("Failed to record API call", "mmsi", mmsi, "error", err)
	}
}

// State returns the circuit breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response body"
	}
	return fmt.Sprintf("response: %s", s)
}
