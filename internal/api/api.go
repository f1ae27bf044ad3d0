/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the REST and WebSocket control surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/auth"
	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/health"
	"github.com/snipersonu/ytstreamm1/internal/logbuffer"
	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/playlist"
	"github.com/snipersonu/ytstreamm1/internal/stream"
	"github.com/snipersonu/ytstreamm1/internal/version"
	"github.com/snipersonu/ytstreamm1/internal/webhooks"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	jwtSecret  []byte
	supervisor *stream.Supervisor
	playlists  *playlist.Service
	media      *media.Service
	webhooks   *webhooks.Service
	sampler    *health.Sampler
	checker    *version.Checker
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, supervisor *stream.Supervisor, playlists *playlist.Service, mediaSvc *media.Service, webhookSvc *webhooks.Service, sampler *health.Sampler, checker *version.Checker, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		jwtSecret:  jwtSecret,
		supervisor: supervisor,
		playlists:  playlists,
		media:      mediaSvc,
		webhooks:   webhookSvc,
		sampler:    sampler,
		checker:    checker,
		bus:        bus,
		logBuffer:  logBuf,
		logger:     logger,
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Get("/auth/me", a.handleMe)

			pr.Route("/stream", func(r chi.Router) {
				r.Get("/status", a.handleStreamStatus)
				r.Post("/start", a.handleStreamStart)
				r.Post("/stop", a.handleStreamStop)
				r.Post("/restart", a.handleStreamRestart)
				r.Post("/next", a.handleStreamNext)
				r.Post("/previous", a.handleStreamPrevious)
				r.Post("/shuffle", a.handleStreamShuffle)
			})

			pr.Route("/playlists", func(r chi.Router) {
				r.Get("/", a.handlePlaylistsList)
				r.Post("/", a.handlePlaylistsCreate)
				r.Route("/{playlistID}", func(r chi.Router) {
					r.Get("/", a.handlePlaylistGet)
					r.Patch("/", a.handlePlaylistRename)
					r.Delete("/", a.handlePlaylistDelete)
					r.Put("/background", a.handlePlaylistSetBackground)
					r.Post("/items", a.handlePlaylistAddItem)
					r.Put("/items/order", a.handlePlaylistReorder)
					r.Patch("/items/{itemID}", a.handlePlaylistItemGain)
					r.Delete("/items/{itemID}", a.handlePlaylistRemoveItem)
				})
			})

			pr.Route("/media", func(r chi.Router) {
				r.Get("/", a.handleMediaList)
				r.Post("/upload", a.handleMediaUpload)
				r.Post("/remote", a.handleMediaAddRemote)
				r.Get("/{assetID}", a.handleMediaGet)
				r.Delete("/{assetID}", a.handleMediaDelete)
			})

			pr.Route("/monitoring", func(r chi.Router) {
				r.Get("/summary", a.handleMonitoringSummary)
				r.Get("/alerts", a.handleAlertsList)
				r.Post("/alerts/{alertID}/ack", a.handleAlertAck)
				r.Get("/samples", a.handleSamplesList)
			})

			pr.Route("/webhooks", func(r chi.Router) {
				r.Get("/", a.handleWebhooksList)
				r.With(auth.RequireAdmin).Post("/", a.handleWebhooksCreate)
				r.With(auth.RequireAdmin).Delete("/{targetID}", a.handleWebhooksDelete)
				r.Post("/{targetID}/test", a.handleWebhookTest)
				r.Get("/{targetID}/logs", a.handleWebhookLogs)
			})

			// System status routes (admin only)
			pr.Route("/system", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/status", a.handleSystemStatus)
				r.Get("/logs", a.handleSystemLogs)
				r.Get("/logs/components", a.handleLogComponents)
				r.Get("/logs/stats", a.handleLogStats)
				r.Delete("/logs", a.handleClearLogs)
			})

			pr.Get("/version", a.handleVersion)

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "credentials_required")
		return
	}

	user, err := auth.Authenticate(r.Context(), a.db, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		a.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "auth_error")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, auth.TokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "auth_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": time.Now().Add(auth.TokenTTL).UTC().Format(time.RFC3339),
		"user": map[string]any{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
		return
	}
	info := a.checker.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":          info.CurrentVersion,
		"latest_version":   info.LatestVersion,
		"update_available": info.UpdateAvailable,
		"release_url":      info.ReleaseURL,
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.Middleware(a.jwtSecret)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, events.EventType(strings.TrimSpace(part)))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
