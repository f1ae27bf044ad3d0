/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"strings"
	"testing"
	"time"
)

func TestSpecArgs_SingleLoopingInput(t *testing.T) {
	spec := Spec{
		VideoInput:   "/media/loop.mp4",
		LoopVideo:    true,
		Resolution:   "1280x720",
		VideoBitrate: 2500,
		FrameRate:    30,
		SinkURL:      "rtmp://a.rtmp.youtube.com/live2/AAAAAAAAAA1234",
	}

	args, err := spec.Args()
	if err != nil {
		t.Fatalf("Args() failed: %v", err)
	}
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-stream_loop -1 -i /media/loop.mp4") {
		t.Errorf("missing infinite input loop: %s", joined)
	}
	// One keyframe every two seconds.
	if !strings.Contains(joined, "-g 60") {
		t.Errorf("expected keyframe interval 2x fps (-g 60): %s", joined)
	}
	// Rate-control buffer is 1.5x the target bitrate.
	if !strings.Contains(joined, "-bufsize 3750k") {
		t.Errorf("expected bufsize 1.5x bitrate: %s", joined)
	}
	if !strings.Contains(joined, "-preset ultrafast") || !strings.Contains(joined, "-tune zerolatency") {
		t.Errorf("expected lowest-latency preset: %s", joined)
	}
	if !strings.Contains(joined, "-s 1280x720") {
		t.Errorf("missing resolution: %s", joined)
	}
	if args[len(args)-2] != "flv" || args[len(args)-1] != spec.SinkURL {
		t.Errorf("expected FLV output to the sink last, got %v", args[len(args)-2:])
	}
	if strings.Contains(joined, "-shortest") {
		t.Errorf("single mode must not carry -shortest: %s", joined)
	}
}

func TestSpecArgs_PlaylistComposite(t *testing.T) {
	spec := Spec{
		VideoInput:   "/media/background.mp4",
		LoopVideo:    true,
		AudioInput:   "/media/track01.mp3",
		AudioGain:    0.8,
		Resolution:   "1920x1080",
		VideoBitrate: 4500,
		FrameRate:    60,
		SinkURL:      "rtmp://a.rtmp.youtube.com/live2/AAAAAAAAAA1234",
	}

	args, err := spec.Args()
	if err != nil {
		t.Fatalf("Args() failed: %v", err)
	}
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "[1:a]volume=0.8[aud]") {
		t.Errorf("missing volume filter at item gain: %s", joined)
	}
	if !strings.Contains(joined, "-map 0:v:0") || !strings.Contains(joined, "-map [aud]") {
		t.Errorf("video must map from input 0 and audio from the filter: %s", joined)
	}
	// The looping background never ends; -shortest ties the run to the audio.
	if !strings.Contains(joined, "-shortest") {
		t.Errorf("playlist mode requires -shortest: %s", joined)
	}
	if !strings.Contains(joined, "-g 120") {
		t.Errorf("expected keyframe interval 120 at 60fps: %s", joined)
	}
}

func TestSpecArgs_DefaultsUnityGain(t *testing.T) {
	spec := Spec{
		VideoInput:   "/media/bg.mp4",
		LoopVideo:    true,
		AudioInput:   "/media/a.mp3",
		Resolution:   "1280x720",
		VideoBitrate: 2500,
		FrameRate:    30,
		SinkURL:      "rtmp://ingest/key",
	}

	args, err := spec.Args()
	if err != nil {
		t.Fatalf("Args() failed: %v", err)
	}
	if !strings.Contains(strings.Join(args, " "), "volume=1[aud]") {
		t.Errorf("zero gain should default to unity: %v", args)
	}
}

func TestSpecValidateRejectsIncompleteSpecs(t *testing.T) {
	base := Spec{
		VideoInput:   "/media/v.mp4",
		Resolution:   "1280x720",
		VideoBitrate: 2500,
		FrameRate:    30,
		SinkURL:      "rtmp://ingest/key",
	}

	cases := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"missing video", func(s *Spec) { s.VideoInput = "" }},
		{"missing sink", func(s *Spec) { s.SinkURL = "" }},
		{"missing resolution", func(s *Spec) { s.Resolution = "" }},
		{"zero bitrate", func(s *Spec) { s.VideoBitrate = 0 }},
		{"zero fps", func(s *Spec) { s.FrameRate = 0 }},
		{"negative gain", func(s *Spec) { s.AudioGain = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := base
			tc.mutate(&spec)
			if _, err := spec.Args(); err == nil {
				t.Fatal("expected Args() to fail")
			}
		})
	}
}

func TestSpecStringRedactsSink(t *testing.T) {
	spec := Spec{
		VideoInput:   "/media/v.mp4",
		Resolution:   "1280x720",
		VideoBitrate: 2500,
		FrameRate:    30,
		SinkURL:      "rtmp://a.rtmp.youtube.com/live2/SECRETKEY1234",
	}
	if strings.Contains(spec.String(), "SECRETKEY1234") {
		t.Fatalf("spec string leaks the stream key: %s", spec.String())
	}
}

func TestParseProgressLine(t *testing.T) {
	line := "frame=  901 fps= 30 q=28.0 size=    7424KiB time=00:00:30.03 bitrate=2025.4kbits/s speed=1.0x"

	prog, ok := parseProgressLine(line)
	if !ok {
		t.Fatal("expected line to parse as progress")
	}
	if prog.Frames != 901 {
		t.Errorf("frames = %d, want 901", prog.Frames)
	}
	if prog.FPS != 30 {
		t.Errorf("fps = %f, want 30", prog.FPS)
	}
	if prog.Bitrate != 2025.4 {
		t.Errorf("bitrate = %f, want 2025.4", prog.Bitrate)
	}
	if prog.Elapsed != 30*time.Second+30*time.Millisecond {
		t.Errorf("elapsed = %v, want 30.03s", prog.Elapsed)
	}
}

func TestParseProgressLineIgnoresNoise(t *testing.T) {
	for _, line := range []string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from '/media/bg.mp4':",
		"Stream mapping:",
		"[flv @ 0x55d1] Failed to update header with correct duration.",
		"",
	} {
		if _, ok := parseProgressLine(line); ok {
			t.Errorf("line unexpectedly parsed as progress: %q", line)
		}
	}
}

func TestScanProgressSplitsCarriageReturns(t *testing.T) {
	// ffmpeg rewrites its status line with \r; both samples must surface.
	input := "Output #0, flv, to 'rtmp://x':\n" +
		"frame=   30 fps= 30 q=28.0 size=256KiB time=00:00:01.00 bitrate=2000.0kbits/s\r" +
		"frame=   60 fps= 30 q=28.0 size=512KiB time=00:00:02.00 bitrate=2010.0kbits/s\r"

	tail := newTailBuffer(10)
	var samples []Progress
	scanProgress(strings.NewReader(input), tail, func(p Progress) {
		samples = append(samples, p)
	})

	if len(samples) != 2 {
		t.Fatalf("expected 2 progress samples, got %d", len(samples))
	}
	if samples[1].Frames != 60 {
		t.Errorf("second sample frames = %d, want 60", samples[1].Frames)
	}
	if !strings.Contains(tail.String(), "Output #0") {
		t.Errorf("non-status output should land in the tail: %s", tail.String())
	}
}

func TestTailBufferBounds(t *testing.T) {
	tail := newTailBuffer(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tail.Add(l)
	}
	if got := tail.String(); got != "c | d | e" {
		t.Fatalf("unexpected tail contents: %q", got)
	}
}
