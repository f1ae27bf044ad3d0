/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import "time"

// State enumerates the supervisor lifecycle states.
type State string

const (
	StateOffline    State = "offline"
	StateStarting   State = "starting"
	StateLive       State = "live"
	StateStopping   State = "stopping"
	StateErroring   State = "erroring"
	StateRestarting State = "restarting"
)

// Health grades delivery quality while a stream is up.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthPoor      Health = "poor"
	HealthOffline   Health = "offline"
)

// ItemRef identifies the playlist entry currently on air.
type ItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Status is the supervisor-owned runtime state. Only the supervisor
// mutates it; everyone else sees value copies via Snapshot, so no caller
// can reach into live state.
//
// Uptime resets per run. Errors, Restarts and LastRestart accumulate
// for the supervisor's lifetime and never reset.
type Status struct {
	IsStreaming bool       `json:"isStreaming"`
	State       State      `json:"state"`
	Health      Health     `json:"health"`
	Uptime      int64      `json:"uptime"`
	Bitrate     int        `json:"bitrate"`
	FPS         int        `json:"fps"`
	Resolution  string     `json:"resolution,omitempty"`
	Errors      int64      `json:"errors"`
	Restarts    int64      `json:"restarts"`
	LastRestart *time.Time `json:"lastRestart,omitempty"`
	Mode        Mode       `json:"streamType,omitempty"`

	// Playlist mode. PlaylistIndex is the zero-based slot in the play
	// order, not the item's stored position.
	CurrentItem    *ItemRef `json:"currentPlaylistItem,omitempty"`
	PlaylistIndex  int      `json:"playlistIndex,omitempty"`
	PlaylistLength int      `json:"playlistLength,omitempty"`
}

// clone returns a copy safe to hand outside the supervisor's lock.
// Pointer fields are replaced wholesale on write, never mutated through,
// so sharing them is fine.
func (s Status) clone() Status {
	out := s
	if s.CurrentItem != nil {
		item := *s.CurrentItem
		out.CurrentItem = &item
	}
	return out
}
