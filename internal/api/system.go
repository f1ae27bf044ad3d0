/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/snipersonu/ytstreamm1/internal/logbuffer"
	"github.com/snipersonu/ytstreamm1/internal/stream"
)

// SystemStatus represents the overall system health status.
type SystemStatus struct {
	Database  ComponentStatus `json:"database"`
	Storage   ComponentStatus `json:"storage"`
	Stream    ComponentStatus `json:"stream"`
	Timestamp time.Time       `json:"timestamp"`
}

// ComponentStatus represents the status of a single system component.
type ComponentStatus struct {
	Status  string `json:"status"` // "ok", "error", "unavailable"
	Message string `json:"message,omitempty"`
}

func (a *API) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := SystemStatus{
		Timestamp: time.Now(),
	}

	// Check database connection
	sqlDB, err := a.db.DB()
	if err != nil {
		status.Database = ComponentStatus{Status: "error", Message: err.Error()}
	} else if err := sqlDB.PingContext(ctx); err != nil {
		status.Database = ComponentStatus{Status: "error", Message: err.Error()}
	} else {
		status.Database = ComponentStatus{Status: "ok", Message: "Connected"}
	}

	// Check storage access
	if a.media != nil {
		if err := a.media.CheckStorageAccess(); err != nil {
			status.Storage = ComponentStatus{Status: "error", Message: err.Error()}
		} else {
			status.Storage = ComponentStatus{Status: "ok", Message: "Accessible"}
		}
	} else {
		status.Storage = ComponentStatus{Status: "unavailable", Message: "Media service not available"}
	}

	snap := a.supervisor.Snapshot()
	status.Stream = ComponentStatus{
		Status:  "ok",
		Message: string(snap.State),
	}
	if snap.State == stream.StateErroring {
		status.Stream.Status = "error"
	}

	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("search"),
		Descending: r.URL.Query().Get("order") != "asc",
		Limit:      200,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 2000 {
			params.Limit = parsed
		}
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			params.Since = parsed
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": a.logBuffer.Query(params)})
}

func (a *API) handleLogComponents(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": a.logBuffer.GetComponents()})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	a.logBuffer.Clear()
	w.WriteHeader(http.StatusNoContent)
}
