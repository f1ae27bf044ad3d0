/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/auth"
	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/models"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

func parseAssetKind(raw string) (models.AssetKind, bool) {
	switch models.AssetKind(raw) {
	case models.AssetVideo:
		return models.AssetVideo, true
	case models.AssetAudio:
		return models.AssetAudio, true
	case "":
		return "", true
	}
	return "", false
}

func (a *API) handleMediaList(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseAssetKind(r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}

	assets, err := a.media.List(r.Context(), kind)
	if err != nil {
		a.logger.Error().Err(err).Msg("list media failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (a *API) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	kind, ok := parseAssetKind(r.FormValue("kind"))
	if !ok || kind == "" {
		writeError(w, http.StatusBadRequest, "kind_required")
		return
	}

	asset, err := a.media.Upload(r.Context(), media.UploadInput{
		Kind:         kind,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		UploadedBy:   claims.Username,
		File:         file,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	telemetry.MediaUploadsTotal.WithLabelValues(string(kind)).Inc()
	a.bus.Publish(events.EventMediaUploaded, events.Payload{
		"asset_id": asset.ID,
		"kind":     string(asset.Kind),
		"name":     asset.OriginalName,
	})

	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) handleMediaAddRemote(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Kind string `json:"kind"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url_required")
		return
	}
	kind, ok := parseAssetKind(req.Kind)
	if !ok || kind == "" {
		writeError(w, http.StatusBadRequest, "kind_required")
		return
	}

	asset, err := a.media.AddRemote(r.Context(), kind, req.URL, claims.Username)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	telemetry.MediaUploadsTotal.WithLabelValues(string(kind)).Inc()
	a.bus.Publish(events.EventMediaUploaded, events.Payload{
		"asset_id": asset.ID,
		"kind":     string(asset.Kind),
		"name":     asset.OriginalName,
	})

	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assetID")
	asset, err := a.media.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Msg("get media failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleMediaDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assetID")
	if err := a.media.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "not_found")
		case errors.Is(err, media.ErrAssetInUse):
			writeError(w, http.StatusConflict, "asset_in_use")
		default:
			a.logger.Error().Err(err).Msg("delete media failed")
			writeError(w, http.StatusInternalServerError, "db_error")
		}
		return
	}

	a.bus.Publish(events.EventMediaDeleted, events.Payload{"asset_id": id})
	w.WriteHeader(http.StatusNoContent)
}
