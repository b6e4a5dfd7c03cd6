package client

// http_client.go = pull channel: paginated snapshot queries and the authoritative
// mutation endpoints used by the action dispatchers.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second

	// pacing for the pull channel, protects the API during reconnect storms
	defaultRateLimit = 5
	defaultRateBurst = 10

	// retry configuration for idempotent GETs
	defaultMaxRetries   = 2
	defaultInitialDelay = 500 * time.Millisecond
	maxRetryDelay       = 8 * time.Second
)

// HTTPClient talks to the notifications REST API
type HTTPClient struct {
	baseURL      string
	httpClient   *http.Client
	rateLimiter  *rate.Limiter
	maxRetries   int
	initialDelay time.Duration
	userAgent    string
	logger       *slog.Logger

	mu    sync.RWMutex
	token string
}

// HTTPOption customises an HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client (transport timeouts live there)
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithTimeout sets the transport-level request timeout
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithRateLimit sets the request rate; rps <= 0 disables pacing
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.rateLimiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetries sets how often idempotent reads are retried and the first backoff delay
func WithRetries(maxRetries int, initialDelay time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
		c.initialDelay = initialDelay
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = logger }
}

// constructor for HTTP client
func NewHTTPClient(apiURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: apiURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		rateLimiter:  rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		userAgent:    "sms-notify/1.0",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token sent with every request
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *HTTPClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// FetchPage returns one page of the user's notifications, newest first
func (c *HTTPClient) FetchPage(ctx context.Context, skip, limit int, unreadOnly bool) (*models.NotificationPage, error) {
	params := url.Values{}
	params.Set("skip", strconv.Itoa(skip))
	params.Set("limit", strconv.Itoa(limit))
	if unreadOnly {
		params.Set("unread_only", "true")
	}

	var page models.NotificationPage
	if err := c.getJSON(ctx, "fetch_page", "/notifications", params, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []models.Notification{}
	}
	return &page, nil
}

// FetchUnreadCount is the cheap polling primitive used while the push channel is down
func (c *HTTPClient) FetchUnreadCount(ctx context.Context) (int, error) {
	var result models.UnreadCountResponse
	if err := c.getJSON(ctx, "fetch_unread_count", "/notifications/unread-count", nil, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// MarkAsRead marks one notification read on the server
func (c *HTTPClient) MarkAsRead(ctx context.Context, id int64) error {
	return c.mutate(ctx, "mark_read", http.MethodPost, fmt.Sprintf("/notifications/%d/read", id))
}

// MarkAllAsRead marks every notification of the user read on the server
func (c *HTTPClient) MarkAllAsRead(ctx context.Context) error {
	return c.mutate(ctx, "mark_all_read", http.MethodPost, "/notifications/read-all")
}

// DeleteNotification deletes one notification on the server
func (c *HTTPClient) DeleteNotification(ctx context.Context, id int64) error {
	return c.mutate(ctx, "delete", http.MethodDelete, fmt.Sprintf("/notifications/%d", id))
}

// getJSON performs a GET with rate limiting and retry on retryable failures
func (c *HTTPClient) getJSON(ctx context.Context, op, endpoint string, params url.Values, result any) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var lastErr error
	delay := c.initialDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.do(ctx, op, http.MethodGet, fullURL)
		if err == nil {
			err = decodeResponse(op, resp, result)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		// caller gave up or the error will not go away by itself
		if ctx.Err() != nil || !IsRetryable(err) || attempt == c.maxRetries {
			break
		}

		c.logger.Warn("pull_request_retry",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", delay,
			"error", err,
		)
		if err := sleepContext(ctx, delay); err != nil {
			return networkError(op, err)
		}
		delay = minDuration(delay*2, maxRetryDelay)
	}
	return lastErr
}

// mutate issues a single authoritative request; mutations are never retried here
func (c *HTTPClient) mutate(ctx context.Context, op, method, endpoint string) error {
	resp, err := c.do(ctx, op, method, c.baseURL+endpoint)
	if err != nil {
		return err
	}
	return decodeResponse(op, resp, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, fullURL string) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, networkError(op, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(op, err)
	}
	return resp, nil
}

// decodeResponse closes the body, maps non-2xx statuses and decodes result when non-nil
func decodeResponse(op string, resp *http.Response, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr models.ErrorResponse
		message := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return statusError(op, resp.StatusCode, message)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		// a truncated or garbled body is treated like a dropped connection
		return networkError(op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// minDuration returns the smaller of two durations
func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
