// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordlib/concord"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
token: file-token
log_level: debug
data_dir: /tmp/concord
status: idle
message_cache_size: 50
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/concord", cfg.DataDir)
	assert.Equal(t, "idle", cfg.Status)
	assert.Equal(t, 50, cfg.MessageCacheSize)
	// Untouched defaults survive the file.
	assert.Equal(t, ":8088", cfg.Listen)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "token: file-token\nlisten: \":9000\"\n")
	t.Setenv("CONCORD_TOKEN", "env-token")
	t.Setenv("CONCORD_LISTEN", ":7777")
	t.Setenv("CONCORD_MEMBER_CAP", "123")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, ":7777", cfg.Listen)
	assert.Equal(t, 123, cfg.MemberCap)
}

func TestLoadConfigExpandsTokenReference(t *testing.T) {
	path := writeConfig(t, "token: ${MY_SECRET_TOKEN}\n")
	t.Setenv("MY_SECRET_TOKEN", "expanded")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded", cfg.Token)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("CONCORD_TOKEN", "")
	_, err := loadConfig("")
	assert.ErrorContains(t, err, "token is required")

	path := writeConfig(t, "token: t\nstatus: sleeping\n")
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "invalid status")
}

func TestAdminEndpoints(t *testing.T) {
	client := concord.New("tok")
	srv := newAdminServer(":0", client)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	// Not ready before the gateway delivers READY.
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	rec := get("/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":false`)

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}
