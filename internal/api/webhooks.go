/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snipersonu/ytstreamm1/internal/webhooks"
)

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	targets, err := a.webhooks.ListTargets(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list webhooks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": targets})
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		Events string `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url_required")
		return
	}

	target, err := a.webhooks.CreateTarget(r.Context(), req.URL, req.Events)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// The secret is returned only on create.
	writeJSON(w, http.StatusCreated, map[string]any{
		"webhook": target,
		"secret":  target.Secret,
	})
}

func (a *API) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "targetID")
	if err := a.webhooks.DeleteTarget(r.Context(), id); err != nil {
		if errors.Is(err, webhooks.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Msg("delete webhook failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "targetID")
	if err := a.webhooks.TestTarget(r.Context(), id); err != nil {
		if errors.Is(err, webhooks.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (a *API) handleWebhookLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "targetID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	logs, err := a.webhooks.RecentLogs(r.Context(), id, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list webhook logs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
