/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pipeline builds and supervises the external ffmpeg encode process
// that feeds the RTMP sink. One Invoker owns at most one process at a time;
// its lifecycle is reported over a typed event channel.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec describes one ffmpeg invocation: inputs, filters, codec parameters and
// the output sink. It is derived from a validated stream configuration and is
// owned by the Invoker for the lifetime of one process.
type Spec struct {
	// VideoInput is a local file path or a remote URL. In playlist mode this
	// is the background video.
	VideoInput string
	// LoopVideo loops the video input indefinitely (-stream_loop -1).
	LoopVideo bool

	// AudioInput is the optional second input (playlist mode). It is played
	// once; the process ends when it ends.
	AudioInput string
	// AudioGain scales the audio input volume. Zero means unity gain.
	AudioGain float64

	Resolution   string // e.g. "1280x720"
	VideoBitrate int    // kbps
	FrameRate    int    // fps

	SinkURL string
}

// Audio encode parameters are fixed: the sink expects a plain AAC track and
// nothing in the product varies it.
const (
	audioCodec      = "aac"
	audioBitrateK   = 128
	audioSampleRate = 44100
)

// Validate checks the spec for structural problems before a process is spawned.
func (s Spec) Validate() error {
	if s.VideoInput == "" {
		return fmt.Errorf("video input is required")
	}
	if s.SinkURL == "" {
		return fmt.Errorf("sink URL is required")
	}
	if s.Resolution == "" {
		return fmt.Errorf("output resolution is required")
	}
	if s.VideoBitrate <= 0 {
		return fmt.Errorf("video bitrate must be positive, got %d", s.VideoBitrate)
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", s.FrameRate)
	}
	if s.AudioGain < 0 {
		return fmt.Errorf("audio gain must not be negative, got %f", s.AudioGain)
	}
	return nil
}

// Args assembles the ffmpeg argument list for the spec.
//
// The encode parameters are product requirements, not tunables: one keyframe
// every two seconds (keyframe interval = 2x fps), a rate-control buffer of
// 1.5x the target bitrate, and the cheapest low-latency x264 preset. The
// output is a single continuous FLV stream for RTMP delivery.
func (s Spec) Args() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	args := []string{"-hide_banner", "-re"}

	if s.LoopVideo {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", s.VideoInput)

	if s.AudioInput != "" {
		gain := s.AudioGain
		if gain == 0 {
			gain = 1.0
		}
		args = append(args, "-i", s.AudioInput)
		// Video comes entirely from the first input, audio entirely from the
		// second at the configured gain. -shortest ends the run when the
		// once-played audio ends even though the video loops forever.
		args = append(args,
			"-filter_complex", fmt.Sprintf("[1:a]volume=%s[aud]", formatGain(gain)),
			"-map", "0:v:0",
			"-map", "[aud]",
			"-shortest",
		)
	}

	keyframeInterval := 2 * s.FrameRate
	bufsize := s.VideoBitrate * 3 / 2

	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-s", s.Resolution,
		"-r", strconv.Itoa(s.FrameRate),
		"-g", strconv.Itoa(keyframeInterval),
		"-b:v", fmt.Sprintf("%dk", s.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", s.VideoBitrate),
		"-bufsize", fmt.Sprintf("%dk", bufsize),
		"-c:a", audioCodec,
		"-b:a", fmt.Sprintf("%dk", audioBitrateK),
		"-ar", strconv.Itoa(audioSampleRate),
		"-f", "flv",
		s.SinkURL,
	)

	return args, nil
}

// String renders the spec for logging with the sink credential redacted.
func (s Spec) String() string {
	sink := s.SinkURL
	if idx := strings.LastIndex(sink, "/"); idx >= 0 && idx < len(sink)-1 {
		sink = sink[:idx+1] + "***"
	}
	if s.AudioInput != "" {
		return fmt.Sprintf("video=%s loop=%t audio=%s gain=%.2f %s@%dkbps/%dfps -> %s",
			s.VideoInput, s.LoopVideo, s.AudioInput, s.AudioGain, s.Resolution, s.VideoBitrate, s.FrameRate, sink)
	}
	return fmt.Sprintf("video=%s loop=%t %s@%dkbps/%dfps -> %s",
		s.VideoInput, s.LoopVideo, s.Resolution, s.VideoBitrate, s.FrameRate, sink)
}

func formatGain(gain float64) string {
	return strconv.FormatFloat(gain, 'f', -1, 64)
}
