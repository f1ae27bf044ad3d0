/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
)

// recordingPublisher captures boundary broadcasts.
type recordingPublisher struct {
	mu       sync.Mutex
	captured []events.EventType
}

func (r *recordingPublisher) Publish(evt events.EventType, payload events.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, evt)
}

func (r *recordingPublisher) saw(evt events.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.captured {
		if e == evt {
			return true
		}
	}
	return false
}

// fakeGuard leases credentials in-process.
type fakeGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(ctx context.Context, credential string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[credential] {
		return nil, errors.New("credential leased elsewhere")
	}
	g.held[credential] = true
	return func() {
		g.mu.Lock()
		delete(g.held, credential)
		g.mu.Unlock()
	}, nil
}

func newTestSupervisor(t *testing.T, fake *fakeInvoker, lib *fakeLibrary, guard SinkGuard) (*Supervisor, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	sup := NewSupervisor(Deps{
		Invoker:   fake,
		Playlists: lib,
		Resolver:  lib,
		Publisher: pub,
		Guard:     guard,
		SinkBase:  "rtmp://a.rtmp.youtube.com/live2",
		Timings:   testTimings(),
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() { _ = sup.Close(context.Background()) })
	return sup, pub
}

func singleConfig(src string) Config {
	return Config{
		StreamKey: "test-key-12345",
		Quality:   Quality720p,
		Bitrate:   2500,
		FPS:       30,
		Mode:      ModeSingle,
		Source:    src,
	}
}

func TestSupervisorRejectsInvalidConfigs(t *testing.T) {
	fake := &fakeInvoker{}
	sup, _ := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty key", func(c *Config) { c.StreamKey = "" }},
		{"short key", func(c *Config) { c.StreamKey = "short" }},
		{"bitrate too low", func(c *Config) { c.Bitrate = 499 }},
		{"bitrate too high", func(c *Config) { c.Bitrate = 10001 }},
		{"unsupported fps", func(c *Config) { c.FPS = 50 }},
		{"unknown quality", func(c *Config) { c.Quality = "480p" }},
		{"single without source", func(c *Config) { c.Source = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := singleConfig("/media/loop.mp4")
			tc.mutate(&cfg)
			err := sup.Start(ctx, cfg)
			if !IsConfigError(err) {
				t.Fatalf("want ConfigError, got %v", err)
			}
		})
	}

	if fake.startCount() != 0 {
		t.Fatalf("pipeline spawned for invalid config: %d starts", fake.startCount())
	}
	if st := sup.Snapshot(); st.State != StateOffline {
		t.Fatalf("state = %s after rejected starts", st.State)
	}
}

func TestSupervisorStartStopLifecycle(t *testing.T) {
	fake := &fakeInvoker{}
	sup, pub := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()

	if err := sup.Start(ctx, singleConfig(tempSource(t))); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, "live state", func() bool {
		st := sup.Snapshot()
		return st.State == StateLive && st.IsStreaming
	})
	if !pub.saw(events.EventStreamStarted) {
		t.Fatal("no stream.started broadcast")
	}

	fake.progress(2400)
	waitFor(t, 2*time.Second, "excellent health", func() bool {
		return sup.Snapshot().Health == HealthExcellent
	})

	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st := sup.Snapshot()
	if st.State != StateOffline || st.IsStreaming {
		t.Fatalf("after stop: %+v", st)
	}
	if st.Uptime != 0 {
		t.Fatalf("uptime not reset: %d", st.Uptime)
	}
	if !pub.saw(events.EventStreamStopped) {
		t.Fatal("no stream.stopped broadcast")
	}

	// Stopping twice is a quiet no-op.
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSupervisorRejectsStartWhileActive(t *testing.T) {
	fake := &fakeInvoker{}
	sup, _ := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()
	src := tempSource(t)

	if err := sup.Start(ctx, singleConfig(src)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	err := sup.Start(ctx, singleConfig(src))
	if !IsConfigError(err) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "already active") {
		t.Fatalf("unexpected reason: %v", err)
	}
	if fake.startCount() != 1 {
		t.Fatalf("second start reached the pipeline: %d starts", fake.startCount())
	}
}

func TestSupervisorMirrorsRecoveryStates(t *testing.T) {
	fake := &fakeInvoker{}
	sup, pub := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()

	cfg := singleConfig(tempSource(t))
	cfg.AutoRestart = true
	if err := sup.Start(ctx, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	fake.finish(errors.New("socket closed"))

	waitFor(t, 2*time.Second, "restart in flight", func() bool {
		st := sup.Snapshot().State
		return st == StateErroring || st == StateRestarting
	})
	waitFor(t, 2*time.Second, "respawn", func() bool {
		return fake.startCount() == 2
	})
	waitFor(t, 2*time.Second, "live again", func() bool {
		return sup.Snapshot().State == StateLive
	})

	st := sup.Snapshot()
	if st.Errors != 1 {
		t.Fatalf("errors = %d, want 1", st.Errors)
	}
	if !pub.saw(events.EventError) {
		t.Fatal("no error broadcast")
	}
}

func TestSupervisorGoesOfflineWithoutRecoveryPolicy(t *testing.T) {
	fake := &fakeInvoker{}
	sup, _ := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()

	cfg := singleConfig(tempSource(t))
	cfg.AutoRestart = false
	if err := sup.Start(ctx, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	fake.finish(errors.New("fatal encoder error"))

	waitFor(t, 2*time.Second, "offline", func() bool {
		return sup.Snapshot().State == StateOffline
	})
	if got := fake.startCount(); got != 1 {
		t.Fatalf("unexpected respawn: %d starts", got)
	}
	if st := sup.Snapshot(); st.Errors != 1 {
		t.Fatalf("errors = %d, want 1", st.Errors)
	}
}

func TestErrorCounterSurvivesNewRuns(t *testing.T) {
	fake := &fakeInvoker{}
	sup, _ := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()
	src := tempSource(t)

	if err := sup.Start(ctx, singleConfig(src)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})
	fake.finish(errors.New("encoder died"))
	waitFor(t, 2*time.Second, "offline", func() bool {
		return sup.Snapshot().State == StateOffline
	})

	if err := sup.Start(ctx, singleConfig(src)); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, 2*time.Second, "live again", func() bool {
		return sup.Snapshot().State == StateLive
	})

	st := sup.Snapshot()
	if st.Errors != 1 {
		t.Fatalf("errors reset across runs: got %d, want 1", st.Errors)
	}
	if st.Uptime > 2 {
		t.Fatalf("uptime carried over: %d", st.Uptime)
	}
}

func TestSupervisorRestartReplaysLastConfig(t *testing.T) {
	fake := &fakeInvoker{}
	sup, pub := newTestSupervisor(t, fake, nil, nil)
	ctx := context.Background()

	if err := sup.Start(ctx, singleConfig(tempSource(t))); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	if err := sup.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(t, 2*time.Second, "live after restart", func() bool {
		return sup.Snapshot().State == StateLive && fake.startCount() == 2
	})

	st := sup.Snapshot()
	if st.Restarts != 1 || st.LastRestart == nil {
		t.Fatalf("restart bookkeeping: restarts=%d lastRestart=%v", st.Restarts, st.LastRestart)
	}
	if fake.spec(0).SinkURL != fake.spec(1).SinkURL {
		t.Fatal("restart changed the sink")
	}
	if !pub.saw(events.EventStreamRestarted) {
		t.Fatal("no stream.restarted broadcast")
	}
}

func TestSupervisorRestartWithoutHistoryRejected(t *testing.T) {
	sup, _ := newTestSupervisor(t, &fakeInvoker{}, nil, nil)
	err := sup.Restart(context.Background())
	if !IsConfigError(err) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestSinkLeaseSerializesSupervisors(t *testing.T) {
	guard := newFakeGuard()
	fakeA := &fakeInvoker{}
	fakeB := &fakeInvoker{}
	supA, _ := newTestSupervisor(t, fakeA, nil, guard)
	supB, _ := newTestSupervisor(t, fakeB, nil, guard)
	ctx := context.Background()
	src := tempSource(t)

	if err := supA.Start(ctx, singleConfig(src)); err != nil {
		t.Fatalf("first supervisor start: %v", err)
	}
	waitFor(t, 2*time.Second, "first live", func() bool {
		return supA.Snapshot().State == StateLive
	})

	err := supB.Start(ctx, singleConfig(src))
	if !IsConfigError(err) {
		t.Fatalf("second supervisor should lose the lease race, got %v", err)
	}
	if fakeB.startCount() != 0 {
		t.Fatal("second supervisor spawned a pipeline without the lease")
	}

	if err := supA.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := supB.Start(ctx, singleConfig(src)); err != nil {
		t.Fatalf("lease not released on stop: %v", err)
	}
}

func TestRunOutlivesStartCallerContext(t *testing.T) {
	fake := &fakeInvoker{watchCtx: true}
	sup, _ := newTestSupervisor(t, fake, nil, nil)

	callerCtx, cancel := context.WithCancel(context.Background())
	if err := sup.Start(callerCtx, singleConfig(tempSource(t))); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	// The request that triggered the start ends here, as it does the
	// moment an HTTP handler returns its response.
	cancel()

	time.Sleep(100 * time.Millisecond)
	st := sup.Snapshot()
	if st.State != StateLive || !st.IsStreaming {
		t.Fatalf("run died with its start caller: %+v", st)
	}
	if st.Errors != 0 {
		t.Fatalf("errors = %d after caller context cancel", st.Errors)
	}
	if fake.startCount() != 1 || !fake.Running() {
		t.Fatalf("pipeline respawned or stopped: %d starts, running=%v", fake.startCount(), fake.Running())
	}

	// Teardown still kills the run: stop must not hang on the detached
	// context.
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sup.Snapshot().State != StateOffline {
		t.Fatal("stop did not land offline")
	}
}

// fakeRotationChecker scripts the eager asset-existence check.
type fakeRotationChecker struct {
	mu     sync.Mutex
	err    error
	asked  []string
	called int
}

func (f *fakeRotationChecker) CheckComplete(ctx context.Context, playlistID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	f.asked = append(f.asked, playlistID)
	return f.err
}

func TestPlaylistStartRunsAssetCheck(t *testing.T) {
	fake := &fakeInvoker{}
	lib, id := testPlaylist(2)
	checker := &fakeRotationChecker{err: errors.New(`playlist "overnight" references missing media assets`)}
	pub := &recordingPublisher{}
	sup := NewSupervisor(Deps{
		Invoker:   fake,
		Playlists: lib,
		Resolver:  lib,
		Publisher: pub,
		Checker:   checker,
		SinkBase:  "rtmp://a.rtmp.youtube.com/live2",
		Timings:   testTimings(),
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() { _ = sup.Close(context.Background()) })

	cfg := testStreamConfig()
	cfg.PlaylistID = id
	err := sup.Start(context.Background(), cfg)
	if !IsConfigError(err) {
		t.Fatalf("want ConfigError for incomplete playlist, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing media assets") {
		t.Fatalf("unexpected reason: %v", err)
	}
	if fake.startCount() != 0 {
		t.Fatalf("pipeline spawned for incomplete playlist: %d starts", fake.startCount())
	}
	if st := sup.Snapshot(); st.State != StateOffline {
		t.Fatalf("state = %s after rejected start", st.State)
	}

	checker.mu.Lock()
	checker.err = nil
	checker.mu.Unlock()

	if err := sup.Start(context.Background(), cfg); err != nil {
		t.Fatalf("start after assets restored: %v", err)
	}
	waitFor(t, 2*time.Second, "live state", func() bool {
		return sup.Snapshot().State == StateLive
	})

	checker.mu.Lock()
	defer checker.mu.Unlock()
	if checker.called != 2 {
		t.Fatalf("asset check ran %d times, want 2", checker.called)
	}
	if checker.asked[0] != id {
		t.Fatalf("asset check got playlist %q", checker.asked[0])
	}
}

func TestSupervisorPlaylistStatusTracksRotation(t *testing.T) {
	fake := &fakeInvoker{}
	lib, id := testPlaylist(2)
	sup, pub := newTestSupervisor(t, fake, lib, nil)
	ctx := context.Background()

	cfg := testStreamConfig()
	cfg.PlaylistID = id
	cfg.Loop = false
	if err := sup.Start(ctx, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, "first item on air", func() bool {
		st := sup.Snapshot()
		return st.State == StateLive && st.CurrentItem != nil && st.CurrentItem.ID == "item-a"
	})
	if st := sup.Snapshot(); st.PlaylistLength != 2 {
		t.Fatalf("playlist length = %d", st.PlaylistLength)
	}

	fake.finish(nil)
	waitFor(t, 2*time.Second, "second item on air", func() bool {
		st := sup.Snapshot()
		return st.CurrentItem != nil && st.CurrentItem.ID == "item-b" && st.PlaylistIndex == 1
	})

	fake.finish(nil)
	waitFor(t, 2*time.Second, "rotation complete teardown", func() bool {
		return sup.Snapshot().State == StateOffline
	})
	if !pub.saw(events.EventItemChanged) {
		t.Fatal("no item change broadcast")
	}
	if !pub.saw(events.EventStreamStopped) {
		t.Fatal("no stopped broadcast after rotation end")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	fake := &fakeInvoker{}
	lib, id := testPlaylist(2)
	sup, _ := newTestSupervisor(t, fake, lib, nil)
	ctx := context.Background()

	cfg := testStreamConfig()
	cfg.PlaylistID = id
	cfg.Loop = true
	if err := sup.Start(ctx, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, "item on air", func() bool {
		st := sup.Snapshot()
		return st.State == StateLive && st.CurrentItem != nil
	})

	snap := sup.Snapshot()
	snap.State = StateOffline
	snap.Errors = 999
	snap.CurrentItem.Title = "clobbered"

	fresh := sup.Snapshot()
	if fresh.State != StateLive {
		t.Fatalf("snapshot mutation leaked into supervisor state: %s", fresh.State)
	}
	if fresh.Errors == 999 {
		t.Fatal("snapshot error counter shared with supervisor")
	}
	if fresh.CurrentItem.Title == "clobbered" {
		t.Fatal("snapshot item shared with supervisor")
	}
}
