// SPDX-License-Identifier: MIT

// Package rest implements the HTTP client for the user API: route
// description, learned rate-limit buckets, the retry loop, and typed
// endpoint calls.
package rest

import (
	"net/url"
	"strings"

	"github.com/concordlib/concord/types"
)

// APIVersion is the REST API version every route is pinned to.
const APIVersion = 9

// BaseURL is the default API origin including the version prefix.
const BaseURL = "https://discord.com/api/v9"

// Route describes one endpoint invocation: the method, the path
// template with {placeholder} parameters, and the substitutions. The
// template (not the substituted path) identifies the rate-limit route.
type Route struct {
	Method string
	Path   string

	// Metadata differentiates known sub-limits that share a path,
	// e.g. deleting own vs. others' messages.
	Metadata string

	// RawQuery is appended verbatim to the request URL. It plays no
	// part in bucket identity.
	RawQuery string

	params map[string]string

	channelID    string
	guildID      string
	webhookID    string
	webhookToken string
}

// NewRoute builds a route from a method and a path template.
func NewRoute(method, path string) *Route {
	return &Route{Method: method, Path: path, params: map[string]string{}}
}

// WithParam substitutes a path placeholder. The four major parameters
// (channel_id, guild_id, webhook_id, webhook_token) additionally feed
// the bucket identity.
func (r *Route) WithParam(name, value string) *Route {
	r.params[name] = value
	switch name {
	case "channel_id":
		r.channelID = value
	case "guild_id":
		r.guildID = value
	case "webhook_id":
		r.webhookID = value
	case "webhook_token":
		r.webhookToken = value
	}
	return r
}

// WithChannel substitutes {channel_id}.
func (r *Route) WithChannel(id types.Snowflake) *Route {
	return r.WithParam("channel_id", id.String())
}

// WithGuild substitutes {guild_id}.
func (r *Route) WithGuild(id types.Snowflake) *Route {
	return r.WithParam("guild_id", id.String())
}

// WithMetadata tags the route with a sub-limit discriminator.
func (r *Route) WithMetadata(meta string) *Route {
	r.Metadata = meta
	return r
}

// WithQuery attaches an encoded query string.
func (r *Route) WithQuery(q url.Values) *Route {
	r.RawQuery = q.Encode()
	return r
}

// Key identifies the route in the bucket-hash mapping.
func (r *Route) Key() string {
	if r.Metadata != "" {
		return r.Method + " " + r.Path + ":" + r.Metadata
	}
	return r.Method + " " + r.Path
}

// MajorParameters renders the major parameters for appending to a
// bucket hash. Routes under /users/@me share one pool and return "".
func (r *Route) MajorParameters() string {
	if strings.HasPrefix(r.Path, "/users/@me") {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{r.channelID, r.guildID, r.webhookID, r.webhookToken} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "+")
}

// URL renders the request URL against the given API base.
func (r *Route) URL(base string) string {
	path := r.Path
	for name, value := range r.params {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	u := strings.TrimRight(base, "/") + path
	if r.RawQuery != "" {
		u += "?" + r.RawQuery
	}
	return u
}
