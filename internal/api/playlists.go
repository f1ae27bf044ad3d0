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

	"github.com/snipersonu/ytstreamm1/internal/playlist"
)

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	playlists, err := a.playlists.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list playlists failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (a *API) handlePlaylistsCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	created, err := a.playlists.Create(r.Context(), req.Name)
	if err != nil {
		a.logger.Error().Err(err).Msg("create playlist failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	found, err := a.playlists.GetPlaylist(r.Context(), id)
	if err != nil {
		a.writePlaylistError(w, err, "get playlist failed")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (a *API) handlePlaylistRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	if err := a.playlists.Rename(r.Context(), id, req.Name); err != nil {
		a.writePlaylistError(w, err, "rename playlist failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (a *API) handlePlaylistDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	if err := a.playlists.Delete(r.Context(), id); err != nil {
		a.writePlaylistError(w, err, "delete playlist failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaylistSetBackground(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	var req struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id_required")
		return
	}

	if err := a.playlists.SetBackground(r.Context(), id, req.AssetID); err != nil {
		a.writePlaylistError(w, err, "set background failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "background_set"})
}

func (a *API) handlePlaylistAddItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	var req struct {
		Title        string  `json:"title"`
		AudioAssetID string  `json:"audio_asset_id"`
		Gain         float64 `json:"gain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AudioAssetID == "" {
		writeError(w, http.StatusBadRequest, "audio_asset_id_required")
		return
	}
	if req.Gain == 0 {
		req.Gain = 1
	}

	item, err := a.playlists.AddItem(r.Context(), id, req.Title, req.AudioAssetID, req.Gain)
	if err != nil {
		a.writePlaylistError(w, err, "add item failed")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handlePlaylistReorder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "item_ids_required")
		return
	}

	if err := a.playlists.Reorder(r.Context(), id, req.ItemIDs); err != nil {
		a.writePlaylistError(w, err, "reorder failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (a *API) handlePlaylistItemGain(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")
	itemID := chi.URLParam(r, "itemID")
	var req struct {
		Gain float64 `json:"gain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := a.playlists.SetItemGain(r.Context(), playlistID, itemID, req.Gain); err != nil {
		a.writePlaylistError(w, err, "set gain failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "gain_set"})
}

func (a *API) handlePlaylistRemoveItem(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")
	itemID := chi.URLParam(r, "itemID")

	if err := a.playlists.RemoveItem(r.Context(), playlistID, itemID); err != nil {
		a.writePlaylistError(w, err, "remove item failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writePlaylistError maps playlist service errors onto response codes.
func (a *API) writePlaylistError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, playlist.ErrPlaylistNotFound), errors.Is(err, playlist.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, playlist.ErrAssetNotFound):
		writeError(w, http.StatusBadRequest, "asset_not_found")
	case errors.Is(err, playlist.ErrWrongAssetKind):
		writeError(w, http.StatusBadRequest, "wrong_asset_kind")
	default:
		a.logger.Error().Err(err).Msg(logMsg)
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}
