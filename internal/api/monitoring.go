/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleMonitoringSummary(w http.ResponseWriter, r *http.Request) {
	snap := a.supervisor.Snapshot()

	unacknowledged := 0
	for _, alert := range a.sampler.Alerts() {
		if !alert.Acknowledged {
			unacknowledged++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                snap,
		"score":                 a.sampler.LastScore(),
		"unacknowledged_alerts": unacknowledged,
	})
}

func (a *API) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": a.sampler.Alerts()})
}

func (a *API) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	if !a.sampler.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (a *API) handleSamplesList(w http.ResponseWriter, r *http.Request) {
	limit := 60
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	samples, err := a.sampler.RecentSamples(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list health samples failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}
