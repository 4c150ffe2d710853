// SPDX-License-Identifier: MIT

package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/internal/metrics"
)

const (
	// userAgent matches the browser build the client impersonates.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	clientBuildNumber = 260292

	maxAttempts = 5
)

// superProperties is the base64 client fingerprint sent on every request.
var superProperties = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf(
	`{"os":"Windows","browser":"Chrome","device":"","system_locale":"en-US","browser_user_agent":%q,"browser_version":"120.0.0.0","os_version":"10","referrer":"","referring_domain":"","release_channel":"stable","client_build_number":%d,"client_event_source":null}`,
	userAgent, clientBuildNumber,
)))

// Client is the REST client. All methods are safe for concurrent use;
// requests hitting the same rate-limit bucket serialize, others run in
// parallel.
type Client struct {
	token string
	base  string
	http  *http.Client

	lim    *limiter
	global *rate.Limiter

	// globalUntil holds the instant until which every request must wait
	// after a global 429.
	gateMu      sync.Mutex
	globalUntil time.Time

	maxRetryAfter time.Duration // 0 means wait however long the API asks
	useClock      bool

	// backoff paces transport and gateway-class retries; swapped out
	// in tests.
	backoff func(attempt int) time.Duration

	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API origin, mainly for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxRateLimitTimeout errors out requests whose rate-limit wait
// would exceed d instead of sleeping. Values under 30s are raised to 30s.
func WithMaxRateLimitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d < 30*time.Second {
			d = 30 * time.Second
		}
		c.maxRetryAfter = d
	}
}

// WithClockSync trusts the local clock over Reset-After headers.
func WithClockSync() Option {
	return func(c *Client) { c.useClock = true }
}

// New builds a REST client for the given user token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:  token,
		base:   BaseURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		lim:    newLimiter(1),
		global: rate.NewLimiter(50, 50),
		logger: log.WithComponent("rest"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1+2*attempt) * time.Second
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the token the client authenticates with.
func (c *Client) Token() string { return c.token }

func (c *Client) waitGlobal(ctx context.Context) error {
	c.gateMu.Lock()
	until := c.globalUntil
	c.gateMu.Unlock()

	if wait := time.Until(until); wait > 0 {
		metrics.IncRatelimitSleep("global")
		c.logger.Warn().Dur(log.FieldRetryAfter, wait).Msg("waiting out global rate limit")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Client) setGlobalGate(d time.Duration) {
	c.gateMu.Lock()
	if until := time.Now().Add(d); until.After(c.globalUntil) {
		c.globalUntil = until
	}
	c.gateMu.Unlock()
}

// errorBody is the JSON shape of API error responses.
type errorBody struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
	CaptchaKey []any   `json:"captcha_key"`
}

// Do performs the route with the optional JSON body, decoding a 2xx
// response into out when out is non-nil. It owns retries: transient
// transport failures, gateway-class 5xx, and 429s are resolved
// internally up to the attempt cap.
func (c *Client) Do(ctx context.Context, route *Route, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("rest: encode body: %w", err)
		}
	}

	b := c.lim.acquire(route)
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.global.Wait(ctx); err != nil {
			return err
		}
		if err := c.waitGlobal(ctx); err != nil {
			return err
		}
		if err := c.waitBucket(ctx, b); err != nil {
			return err
		}

		status, retry, err := c.once(ctx, route, b, payload, out)
		if err == nil && !retry {
			metrics.ObserveRequest(route.Key(), status, time.Since(start))
			return nil
		}
		if err != nil && !retry {
			if status > 0 {
				metrics.ObserveRequest(route.Key(), status, time.Since(start))
			}
			return err
		}
		lastErr = err
		// retry loop backoff for transport errors and gateway-class
		// statuses; 429 sleeps happen inside once().
		if status == 0 || retriableStatus(status) {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("rest: retries exhausted")
	}
	return lastErr
}

// waitBucket sleeps out an exhausted window before sending, erroring
// instead when the wait would exceed the configured maximum.
func (c *Client) waitBucket(ctx context.Context, b *bucket) error {
	now := time.Now()
	if b.expired(now) {
		b.reset()
	}
	if b.remaining > 0 || b.expires.IsZero() {
		return nil
	}
	wait := b.expires.Sub(now)
	if wait <= 0 {
		b.reset()
		return nil
	}
	if c.maxRetryAfter > 0 && wait > c.maxRetryAfter {
		return &RateLimitedError{RetryAfter: wait}
	}
	metrics.IncRatelimitSleep("preemptive")
	c.logger.Debug().Dur(log.FieldRetryAfter, wait).Msg("bucket exhausted, sleeping before request")
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.reset()
	return nil
}

func retriableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInsufficientStorage, 522, 523, 524:
		return true
	}
	return false
}

func retriableTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Connection resets and closed-connection races surface as
	// url.Error-wrapped syscall errors; retrying is always safe here
	// because the bucket token was already spent.
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// once performs a single HTTP exchange. The returned retry flag asks
// the caller to loop; a nil error with retry=false means out is filled.
func (c *Client) once(ctx context.Context, route *Route, b *bucket, payload []byte, out any) (status int, retry bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, route.Method, route.URL(c.base), reader)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Super-Properties", superProperties)
	req.Header.Set("X-Discord-Locale", "en-US")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if b.remaining > 0 {
		b.remaining--
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if retriableTransport(err) {
			c.logger.Warn().Err(err).Str(log.FieldRoute, route.Key()).Msg("transport failure, retrying")
			return 0, true, err
		}
		return 0, false, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, true, err
	}

	c.lim.learn(route, res.Header.Get("X-RateLimit-Bucket"), b)
	if res.Header.Get("X-RateLimit-Remaining") != "" {
		b.update(res.Header, c.lim.defaultLimit, c.useClock)
		if b.remaining == 0 {
			c.logger.Debug().
				Str(log.FieldRoute, route.Key()).
				Str(log.FieldBucket, res.Header.Get("X-RateLimit-Bucket")).
				Msg("rate limit bucket exhausted, pre-emptively limiting")
		}
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return res.StatusCode, false, fmt.Errorf("rest: decode %s response: %w", route.Key(), err)
			}
		}
		return res.StatusCode, false, nil

	case res.StatusCode == http.StatusTooManyRequests:
		if err := c.handle429(ctx, route, res.Header, data); err != nil {
			return res.StatusCode, false, err
		}
		return res.StatusCode, true, nil

	case retriableStatus(res.StatusCode):
		c.logger.Warn().Int(log.FieldStatus, res.StatusCode).Str(log.FieldRoute, route.Key()).Msg("gateway-class error, retrying")
		return res.StatusCode, true, &APIError{Sentinel: ErrServerError, RouteKey: route.Key(), Status: res.StatusCode}

	default:
		return res.StatusCode, false, c.apiError(route, res.StatusCode, data)
	}
}

// handle429 sleeps out a 429 in place. A non-nil return aborts the
// request instead of retrying.
func (c *Client) handle429(ctx context.Context, route *Route, h http.Header, data []byte) error {
	var body errorBody
	cloudflare := h.Get("Via") == ""
	if err := json.Unmarshal(data, &body); err != nil {
		// Non-JSON 429s come from the edge, not the API.
		after, _ := strconv.ParseFloat(h.Get("Retry-After"), 64)
		if after == 0 {
			return &APIError{Sentinel: ErrCloudflare, RouteKey: route.Key(), Status: http.StatusTooManyRequests}
		}
		body.RetryAfter = after
	}

	retryAfter := time.Duration(body.RetryAfter * float64(time.Second))
	if retryAfter == 0 {
		if after, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil {
			retryAfter = time.Duration(after * float64(time.Second))
		}
	}

	if c.maxRetryAfter > 0 && retryAfter > c.maxRetryAfter {
		return &RateLimitedError{RetryAfter: retryAfter, Global: body.Global, Cloudflare: cloudflare}
	}

	evt := c.logger.Warn().
		Str(log.FieldRoute, route.Key()).
		Dur(log.FieldRetryAfter, retryAfter).
		Bool("global", body.Global)
	evt.Msg("rate limited, sleeping before retry")

	kind := "response"
	if body.Global {
		kind = "global"
		c.setGlobalGate(retryAfter)
	}
	metrics.IncRatelimitSleep(kind)

	select {
	case <-time.After(retryAfter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) apiError(route *Route, status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	sentinel := ErrBadRequest
	switch {
	case status == http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case status == http.StatusForbidden:
		sentinel = ErrForbidden
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status >= 500:
		sentinel = ErrServerError
	case len(body.CaptchaKey) > 0:
		sentinel = ErrCaptcha
	}
	return &APIError{
		Sentinel: sentinel,
		RouteKey: route.Key(),
		Status:   status,
		Code:     body.Code,
		Message:  body.Message,
	}
}
