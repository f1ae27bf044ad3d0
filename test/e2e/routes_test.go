/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package e2e boots the full server wiring and exercises the HTTP surface.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/config"
	"github.com/snipersonu/ytstreamm1/internal/logbuffer"
	"github.com/snipersonu/ytstreamm1/internal/server"
)

func bootServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Environment:    "test",
		HTTPBind:       "127.0.0.1",
		DBBackend:      config.DatabaseSQLite,
		DBDSN:          filepath.Join(t.TempDir(), "e2e.db"),
		MediaRoot:      t.TempDir(),
		StorageBackend: config.StorageFilesystem,
		FFmpegBin:      "ffmpeg",
		RTMPBase:       "rtmp://a.rtmp.youtube.com/live2",
		JWTSigningKey:  "e2e-test-secret",
		AdminUser:      "admin",
		AdminPassword:  "e2e-password",
	}

	srv, err := server.New(cfg, logbuffer.New(500), zerolog.Nop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("server close: %v", err)
		}
	})

	ts := httptest.NewServer(srv.HTTPServer().Handler)
	t.Cleanup(ts.Close)
	return ts
}

// TestServerBoot verifies the fully wired server answers on its
// operational endpoints and enforces authentication on the API.
func TestServerBoot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e tests in short mode")
	}

	ts := bootServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("/healthz body=%q", body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "ytstream_health_score") {
		t.Fatalf("/metrics missing ytstream collectors")
	}

	resp, err = http.Get(ts.URL + "/api/v1/stream/status")
	if err != nil {
		t.Fatalf("GET /api/v1/stream/status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d, want 401", resp.StatusCode)
	}
}

// TestLoginAndStatusFlow logs in through the bootstrap admin account and
// reads stream status with the issued token.
func TestLoginAndStatusFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e tests in short mode")
	}

	ts := bootServer(t)

	creds, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "e2e-password",
	})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(creds))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", resp.StatusCode)
	}

	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token in the login response")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/stream/status", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	statusResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream/status: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("stream status=%d", statusResp.StatusCode)
	}

	var status struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != "offline" {
		t.Fatalf("state=%q, want offline on a fresh boot", status.State)
	}
}
