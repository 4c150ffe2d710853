// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concordlib/concord"
)

// newAdminServer exposes health, readiness, metrics, and a session
// snapshot for operators.
func newAdminServer(addr string, client *concord.Client) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Ready only once the gateway delivered READY; load balancers and
	// probes should not route before the cache is primed.
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if client.State().Ready() {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "connecting"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := client.State()
		stats := st.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":       st.Ready(),
			"session_id":  st.SessionID(),
			"user_id":     st.Me().ID.String(),
			"guilds":      stats.Guilds,
			"channels":    stats.Channels,
			"users":       stats.Users,
			"members":     stats.Members,
			"messages":    stats.Messages,
			"read_states": stats.ReadStates,
		})
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
