/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the playback strategy for a stream run.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModePlaylist Mode = "playlist"
)

// Quality names a preset output resolution.
type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
)

// qualityResolutions maps quality presets to encoder output sizes.
var qualityResolutions = map[Quality]string{
	Quality720p:  "1280x720",
	Quality1080p: "1920x1080",
}

const (
	minBitrateKbps = 500
	maxBitrateKbps = 10000
)

// validFrameRates lists the frame rates the encode pipeline accepts.
var validFrameRates = map[int]bool{24: true, 30: true, 60: true}

// Config describes one stream run. It is immutable once accepted by the
// supervisor; a restart replays the exact accepted value.
type Config struct {
	StreamKey   string  `json:"streamKey"`
	Quality     Quality `json:"quality"`
	Bitrate     int     `json:"bitrate"`
	FPS         int     `json:"fps"`
	Mode        Mode    `json:"streamType"`
	AutoRestart bool    `json:"autoRestart"`

	// Single mode: a local path or URL played on loop.
	Source string `json:"source,omitempty"`

	// Playlist mode.
	PlaylistID string `json:"playlistId,omitempty"`
	Shuffle    bool   `json:"shuffle,omitempty"`
	Loop       bool   `json:"loop,omitempty"`
}

// Validate rejects configurations the encode pipeline cannot serve. The
// returned error is always a *ConfigError.
func (c Config) Validate() error {
	key := strings.TrimSpace(c.StreamKey)
	if key == "" {
		return &ConfigError{Reason: "stream key is required"}
	}
	if len(key) <= 10 {
		return &ConfigError{Reason: "stream key looks truncated"}
	}
	if _, ok := qualityResolutions[c.Quality]; !ok {
		return &ConfigError{Reason: fmt.Sprintf("unknown quality %q", c.Quality)}
	}
	if c.Bitrate < minBitrateKbps || c.Bitrate > maxBitrateKbps {
		return &ConfigError{Reason: fmt.Sprintf("bitrate %d outside %d-%d kbps", c.Bitrate, minBitrateKbps, maxBitrateKbps)}
	}
	if !validFrameRates[c.FPS] {
		return &ConfigError{Reason: fmt.Sprintf("frame rate %d not supported (24, 30 or 60)", c.FPS)}
	}

	switch c.Mode {
	case ModeSingle:
		if strings.TrimSpace(c.Source) == "" {
			return &ConfigError{Reason: "single mode requires a source"}
		}
	case ModePlaylist:
		if strings.TrimSpace(c.PlaylistID) == "" {
			return &ConfigError{Reason: "playlist mode requires a playlist id"}
		}
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}

	return nil
}

// Resolution returns the encoder output size for the configured quality.
func (c Config) Resolution() string {
	return qualityResolutions[c.Quality]
}

// Timings collects the orchestration delays. Zero values fall back to
// the documented defaults.
type Timings struct {
	RestartBackoff    time.Duration
	RestartSettle     time.Duration
	AdvanceDelay      time.Duration
	ErrorAdvanceDelay time.Duration
}

func (t Timings) withDefaults() Timings {
	if t.RestartBackoff <= 0 {
		t.RestartBackoff = 5 * time.Second
	}
	if t.RestartSettle <= 0 {
		t.RestartSettle = 2 * time.Second
	}
	if t.AdvanceDelay <= 0 {
		t.AdvanceDelay = time.Second
	}
	if t.ErrorAdvanceDelay <= 0 {
		t.ErrorAdvanceDelay = 2 * time.Second
	}
	return t
}
