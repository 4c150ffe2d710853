// SPDX-License-Identifier: MIT

package rest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized = errors.New("rest: invalid or revoked token")
	ErrForbidden    = errors.New("rest: access forbidden")
	ErrNotFound     = errors.New("rest: resource not found")
	ErrServerError  = errors.New("rest: upstream internal error (5xx)")
	ErrCaptcha      = errors.New("rest: captcha required")
	ErrCloudflare   = errors.New("rest: blocked at the edge")
	ErrBadRequest   = errors.New("rest: request rejected")
)

// APIError wraps a sentinel with the response context the API returned.
type APIError struct {
	Sentinel error
	RouteKey string
	Status   int
	Code     int // API error code from the response body
	Message  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("rest: %s: %v (HTTP %d", e.RouteKey, e.Sentinel, e.Status)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s, code %d", msg, e.Code)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// RateLimitedError is returned when a rate limit demands a wait longer
// than the client's configured maximum.
type RateLimitedError struct {
	RetryAfter time.Duration
	Global     bool
	Cloudflare bool
}

func (e *RateLimitedError) Error() string {
	scope := "bucket"
	if e.Global {
		scope = "global"
	}
	if e.Cloudflare {
		scope = "cloudflare"
	}
	return fmt.Sprintf("rest: %s rate limit, retry after %s exceeds configured maximum", scope, e.RetryAfter)
}
