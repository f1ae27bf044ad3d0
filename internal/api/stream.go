/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/snipersonu/ytstreamm1/internal/stream"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

func (a *API) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.supervisor.Snapshot())
}

func (a *API) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var cfg stream.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := a.supervisor.Start(r.Context(), cfg); err != nil {
		if stream.IsConfigError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		a.logger.Error().Err(err).Msg("stream start failed")
		writeError(w, http.StatusInternalServerError, "start_failed")
		return
	}

	writeJSON(w, http.StatusAccepted, a.supervisor.Snapshot())
}

func (a *API) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if err := a.supervisor.Stop(r.Context()); err != nil {
		a.logger.Error().Err(err).Msg("stream stop failed")
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	writeJSON(w, http.StatusOK, a.supervisor.Snapshot())
}

func (a *API) handleStreamRestart(w http.ResponseWriter, r *http.Request) {
	if err := a.supervisor.Restart(r.Context()); err != nil {
		if stream.IsConfigError(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		a.logger.Error().Err(err).Msg("stream restart failed")
		writeError(w, http.StatusInternalServerError, "restart_failed")
		return
	}

	telemetry.StreamRestartsTotal.WithLabelValues("manual").Inc()
	writeJSON(w, http.StatusAccepted, a.supervisor.Snapshot())
}

func (a *API) handleStreamNext(w http.ResponseWriter, r *http.Request) {
	if err := a.supervisor.NextItem(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, a.supervisor.Snapshot())
}

func (a *API) handleStreamPrevious(w http.ResponseWriter, r *http.Request) {
	if err := a.supervisor.PreviousItem(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, a.supervisor.Snapshot())
}

func (a *API) handleStreamShuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := a.supervisor.SetShuffle(req.Enabled); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.supervisor.Snapshot())
}
