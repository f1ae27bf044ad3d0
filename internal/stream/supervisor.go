/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stream implements the orchestration core: a supervisor owning
// the lifecycle state machine, with a single-item player and a playlist
// sequencer driving the encode pipeline underneath it. The core talks
// over typed channels; the event bus only carries boundary broadcasts
// outward.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/pipeline"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

// Publisher receives boundary broadcasts. The events bus satisfies it.
type Publisher interface {
	Publish(evt events.EventType, payload events.Payload)
}

// SinkGuard serializes exclusive use of a sink credential. Acquire
// fails while another holder streams to the same credential.
type SinkGuard interface {
	Acquire(ctx context.Context, credential string) (release func(), err error)
}

// SourceProber checks that a remote source answers before a run starts.
type SourceProber interface {
	ProbeURL(ctx context.Context, rawURL string) error
}

// RotationChecker verifies every asset a playlist references still
// exists before a run starts.
type RotationChecker interface {
	CheckComplete(ctx context.Context, playlistID string) error
}

// Deps bundles the supervisor's collaborators. Guard, Prober, and
// Checker may be nil; sink leasing, URL probing, and the eager asset
// check are then skipped.
type Deps struct {
	Invoker   Invoker
	Playlists PlaylistSource
	Resolver  AssetResolver
	Publisher Publisher
	Guard     SinkGuard
	Prober    SourceProber
	Checker   RotationChecker
	SinkBase  string
	Timings   Timings
	Logger    zerolog.Logger
}

// Supervisor owns the stream lifecycle state machine. It is the single
// writer of Status; the player and sequencer report upward on a notice
// channel the supervisor drains for its whole lifetime.
type Supervisor struct {
	invoker   Invoker
	playlists PlaylistSource
	resolver  AssetResolver
	guard     SinkGuard
	prober    SourceProber
	checker   RotationChecker
	publisher Publisher
	logger    zerolog.Logger
	timings   Timings
	sinkBase  string

	notices chan Notice

	mu           sync.Mutex
	status       Status
	lastConfig   *Config
	player       *SingleItemPlayer
	sequencer    *PlaylistSequencer
	runCancel    context.CancelFunc
	releaseLease func()
	uptimeStop   chan struct{}
	closed       bool
}

// NewSupervisor wires the orchestration core and starts its notice
// consumer.
func NewSupervisor(d Deps) *Supervisor {
	s := &Supervisor{
		invoker:   d.Invoker,
		playlists: d.Playlists,
		resolver:  d.Resolver,
		guard:     d.Guard,
		prober:    d.Prober,
		checker:   d.Checker,
		publisher: d.Publisher,
		logger:    d.Logger.With().Str("component", "supervisor").Logger(),
		timings:   d.Timings.withDefaults(),
		sinkBase:  strings.TrimRight(d.SinkBase, "/"),
		notices:   make(chan Notice, 32),
		status:    Status{State: StateOffline, Health: HealthOffline},
	}
	go s.consumeNotices()
	return s
}

// Start validates cfg, leases the sink credential, and hands off to the
// mode's sub-player. Rejected outright while a run is active; callers
// stop or restart instead. ctx covers admission only; the run itself
// lives on a supervisor-owned context cancelled in teardown, so a
// caller's context ending cannot kill the encoder.
func (s *Supervisor) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		runCancel()
		return &ConfigError{Reason: "supervisor closed"}
	}
	if s.status.State != StateOffline {
		state := s.status.State
		s.mu.Unlock()
		runCancel()
		return &ConfigError{Reason: fmt.Sprintf("stream already active (state %s)", state)}
	}
	s.runCancel = runCancel
	s.status.State = StateStarting
	s.status.Health = HealthOffline
	s.status.IsStreaming = false
	s.status.Uptime = 0
	s.status.Bitrate = cfg.Bitrate
	s.status.FPS = cfg.FPS
	s.status.Resolution = cfg.Resolution()
	s.status.Mode = cfg.Mode
	s.status.CurrentItem = nil
	s.status.PlaylistIndex = 0
	s.status.PlaylistLength = 0
	cfgCopy := cfg
	s.lastConfig = &cfgCopy
	s.mu.Unlock()
	s.publishStatus()

	if err := s.bringUp(ctx, runCtx, cfg); err != nil {
		s.teardown(ctx)
		return err
	}

	s.startUptimeTicker()
	s.logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("quality", string(cfg.Quality)).
		Int("bitrate", cfg.Bitrate).
		Int("fps", cfg.FPS).
		Msg("stream starting")
	return nil
}

// bringUp acquires the lease, probes remote sources, and starts the
// sub-player for the mode. On error the caller tears down; the lease,
// once acquired, is registered before any fallible step that follows.
// Admission steps run on ctx; the sub-player and everything it spawns
// run on runCtx.
func (s *Supervisor) bringUp(ctx, runCtx context.Context, cfg Config) error {
	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, strings.TrimSpace(cfg.StreamKey))
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("sink credential in use: %v", err)}
		}
		s.mu.Lock()
		s.releaseLease = release
		s.mu.Unlock()
	}

	if s.prober != nil && cfg.Mode == ModeSingle && strings.Contains(cfg.Source, "://") {
		if err := s.prober.ProbeURL(ctx, cfg.Source); err != nil {
			return &ConfigError{Reason: fmt.Sprintf("source unreachable: %v", err)}
		}
	}

	sink := s.sinkBase + "/" + strings.TrimSpace(cfg.StreamKey)

	switch cfg.Mode {
	case ModeSingle:
		player := NewSingleItemPlayer(s.invoker, s.notices, s.timings, s.logger)
		spec := pipeline.Spec{
			VideoInput:   cfg.Source,
			LoopVideo:    true,
			Resolution:   cfg.Resolution(),
			VideoBitrate: cfg.Bitrate,
			FrameRate:    cfg.FPS,
			SinkURL:      sink,
		}
		if err := player.Play(runCtx, spec, cfg.AutoRestart); err != nil {
			return err
		}
		s.mu.Lock()
		s.player = player
		s.mu.Unlock()

	case ModePlaylist:
		if s.checker != nil {
			if err := s.checker.CheckComplete(ctx, cfg.PlaylistID); err != nil {
				return &ConfigError{Reason: fmt.Sprintf("playlist incomplete: %v", err)}
			}
		}
		seq := NewPlaylistSequencer(s.invoker, s.playlists, s.resolver, s.notices, s.timings, s.logger)
		if err := seq.Load(ctx, cfg.PlaylistID, cfg.Shuffle, cfg.Loop); err != nil {
			return err
		}
		if err := seq.Start(runCtx, cfg, sink); err != nil {
			return err
		}
		s.mu.Lock()
		s.sequencer = seq
		s.mu.Unlock()
	}

	return nil
}

// Stop tears down the active run. A second stop is a no-op, not an
// error.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status.State == StateOffline || s.status.State == StateStopping {
		s.mu.Unlock()
		return nil
	}
	s.status.State = StateStopping
	s.mu.Unlock()
	s.publishStatus()

	s.teardown(ctx)
	s.publisher.Publish(events.EventStreamStopped, events.Payload{
		"at": time.Now().UTC().Format(time.RFC3339),
	})
	s.logger.Info().Msg("stream stopped")
	return nil
}

// Restart replays the last accepted configuration after a full stop and
// a settle delay. The settle window lets the encoder's connection close
// before the next run reuses the sink.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &ConfigError{Reason: "supervisor closed"}
	}
	if s.lastConfig == nil {
		s.mu.Unlock()
		return &ConfigError{Reason: "nothing to restart"}
	}
	cfg := *s.lastConfig
	s.status.Restarts++
	now := time.Now().UTC()
	s.status.LastRestart = &now
	s.mu.Unlock()

	if err := s.Stop(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.status.State = StateRestarting
	s.mu.Unlock()
	s.publishStatus()

	select {
	case <-time.After(s.timings.RestartSettle):
	case <-ctx.Done():
		s.mu.Lock()
		s.status.State = StateOffline
		s.mu.Unlock()
		s.publishStatus()
		return ctx.Err()
	}

	// Start requires offline; the intermediate flip is not broadcast,
	// so consumers see restarting then starting.
	s.mu.Lock()
	s.status.State = StateOffline
	s.mu.Unlock()

	if err := s.Start(ctx, cfg); err != nil {
		return err
	}

	s.publisher.Publish(events.EventStreamRestarted, events.Payload{
		"restarts": s.Snapshot().Restarts,
	})
	return nil
}

// Snapshot returns a copy of the current status.
func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// LastConfig returns a copy of the most recently accepted
// configuration, or nil before the first accepted start.
func (s *Supervisor) LastConfig() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastConfig == nil {
		return nil
	}
	cfg := *s.lastConfig
	return &cfg
}

// SetHealth applies the sampler's grade. Ignored while offline.
func (s *Supervisor) SetHealth(h Health) {
	s.mu.Lock()
	changed := s.status.IsStreaming && s.status.Health != h
	if changed {
		s.status.Health = h
	}
	s.mu.Unlock()
	if changed {
		s.publishStatus()
	}
}

// NextItem skips the active rotation forward. Playlist mode only.
func (s *Supervisor) NextItem(ctx context.Context) error {
	seq := s.activeSequencer()
	if seq == nil {
		return &ConfigError{Reason: "no playlist stream active"}
	}
	return seq.Next(ctx)
}

// PreviousItem moves the active rotation back one slot.
func (s *Supervisor) PreviousItem(ctx context.Context) error {
	seq := s.activeSequencer()
	if seq == nil {
		return &ConfigError{Reason: "no playlist stream active"}
	}
	return seq.Previous(ctx)
}

// SetShuffle toggles shuffle on the active rotation.
func (s *Supervisor) SetShuffle(on bool) error {
	seq := s.activeSequencer()
	if seq == nil {
		return &ConfigError{Reason: "no playlist stream active"}
	}
	seq.SetShuffle(on)
	return nil
}

// Close stops any active run and refuses further starts. The notice
// consumer keeps draining so late sub-player sends never block; it
// lives until process exit.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.Stop(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func (s *Supervisor) activeSequencer() *PlaylistSequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequencer
}

// teardown stops sub-players, releases the sink lease, and lands the
// state machine back at offline.
func (s *Supervisor) teardown(ctx context.Context) {
	s.mu.Lock()
	player := s.player
	seq := s.sequencer
	cancel := s.runCancel
	release := s.releaseLease
	stop := s.uptimeStop
	s.player = nil
	s.sequencer = nil
	s.runCancel = nil
	s.releaseLease = nil
	s.uptimeStop = nil
	s.mu.Unlock()

	if player != nil {
		if err := player.Stop(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("player stop")
		}
	}
	if seq != nil {
		if err := seq.Stop(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("sequencer stop")
		}
	}
	// Cancelled after the graceful stops so the pipeline gets its
	// interrupt window before the context kills anything left.
	if cancel != nil {
		cancel()
	}
	if stop != nil {
		close(stop)
	}
	if release != nil {
		release()
	}

	s.mu.Lock()
	s.status.State = StateOffline
	s.status.Health = HealthOffline
	s.status.IsStreaming = false
	s.status.Uptime = 0
	s.status.CurrentItem = nil
	s.status.PlaylistIndex = 0
	s.status.PlaylistLength = 0
	s.mu.Unlock()
	s.publishStatus()
}

// startUptimeTicker counts run seconds. It only advances while the run
// is streaming, so recovery gaps pause the clock instead of resetting
// it.
func (s *Supervisor) startUptimeTicker() {
	stop := make(chan struct{})
	s.mu.Lock()
	s.uptimeStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.status.IsStreaming {
					s.status.Uptime++
				}
				uptime := s.status.Uptime
				s.mu.Unlock()
				telemetry.StreamUptimeSeconds.Set(float64(uptime))
			case <-stop:
				telemetry.StreamUptimeSeconds.Set(0)
				return
			}
		}
	}()
}

// consumeNotices is the single consumer of sub-player notifications. It
// serializes every status mutation they cause.
func (s *Supervisor) consumeNotices() {
	for n := range s.notices {
		switch n.Kind {
		case NoticeLive:
			s.handleLive()
		case NoticeHealthy:
			s.handleHealthy()
		case NoticeItemChanged:
			s.handleItemChanged(n)
		case NoticeError:
			s.handlePipelineError(n)
		case NoticeEnded:
			s.handleEnded(n)
		case NoticeStopped:
			s.handleRotationDone()
		}
	}
}

func (s *Supervisor) handleLive() {
	s.mu.Lock()
	prev := s.status.State
	if prev == StateOffline || prev == StateStopping {
		s.mu.Unlock()
		return
	}
	s.status.State = StateLive
	s.status.IsStreaming = true
	if s.status.Health == HealthOffline || s.status.Health == HealthPoor {
		s.status.Health = HealthGood
	}
	s.mu.Unlock()

	if prev == StateLive {
		return
	}
	s.publishStatus()
	if prev == StateStarting {
		s.publisher.Publish(events.EventStreamStarted, events.Payload{
			"at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Supervisor) handleHealthy() {
	s.mu.Lock()
	changed := s.status.IsStreaming && s.status.Health != HealthExcellent
	if changed {
		s.status.Health = HealthExcellent
	}
	s.mu.Unlock()
	if changed {
		s.publishStatus()
	}
}

func (s *Supervisor) handleItemChanged(n Notice) {
	s.mu.Lock()
	if s.status.State == StateOffline || s.status.State == StateStopping {
		s.mu.Unlock()
		return
	}
	s.status.CurrentItem = n.Item
	s.status.PlaylistIndex = n.Index
	s.status.PlaylistLength = n.Total
	s.mu.Unlock()
	s.publishStatus()

	payload := events.Payload{"index": n.Index, "total": n.Total}
	if n.Item != nil {
		payload["id"] = n.Item.ID
		payload["title"] = n.Item.Title
	}
	s.publisher.Publish(events.EventItemChanged, payload)
}

func (s *Supervisor) handlePipelineError(n Notice) {
	s.mu.Lock()
	if s.status.State == StateOffline || s.status.State == StateStopping {
		s.mu.Unlock()
		return
	}
	s.status.Errors++
	s.status.Health = HealthPoor
	if n.WillRecover {
		s.status.State = StateErroring
	}
	errs := s.status.Errors
	s.mu.Unlock()
	s.publishStatus()

	msg := ""
	if n.Err != nil {
		msg = n.Err.Error()
	}
	s.publisher.Publish(events.EventError, events.Payload{"error": msg, "errors": errs})

	if n.WillRecover {
		telemetry.StreamRestartsTotal.WithLabelValues("failure").Inc()
		s.mu.Lock()
		if s.status.State == StateErroring {
			s.status.State = StateRestarting
		}
		s.mu.Unlock()
		s.publishStatus()
		return
	}

	s.logger.Error().Str("error", msg).Msg("pipeline failed with no recovery policy")
	s.teardown(context.Background())
}

func (s *Supervisor) handleEnded(n Notice) {
	s.mu.Lock()
	if s.status.State == StateOffline || s.status.State == StateStopping {
		s.mu.Unlock()
		return
	}
	if n.WillRecover {
		s.status.State = StateRestarting
		s.mu.Unlock()
		s.publishStatus()
		return
	}
	s.mu.Unlock()

	s.logger.Info().Msg("pipeline ended")
	s.teardown(context.Background())
}

func (s *Supervisor) handleRotationDone() {
	s.logger.Info().Msg("playlist rotation complete")
	s.teardown(context.Background())
	s.publisher.Publish(events.EventStreamStopped, events.Payload{
		"reason": "playlist_complete",
	})
}

// publishStatus broadcasts a fresh snapshot. Called after a mutation
// completes, never inside the lock.
func (s *Supervisor) publishStatus() {
	snap := s.Snapshot()
	setStateGauge(snap.State)
	payload := events.Payload{
		"isStreaming": snap.IsStreaming,
		"state":       string(snap.State),
		"health":      string(snap.Health),
		"uptime":      snap.Uptime,
		"bitrate":     snap.Bitrate,
		"fps":         snap.FPS,
		"resolution":  snap.Resolution,
		"errors":      snap.Errors,
		"restarts":    snap.Restarts,
		"streamType":  string(snap.Mode),
	}
	if snap.LastRestart != nil {
		payload["lastRestart"] = snap.LastRestart.Format(time.RFC3339)
	}
	if snap.CurrentItem != nil {
		payload["currentPlaylistItem"] = map[string]any{
			"id":    snap.CurrentItem.ID,
			"title": snap.CurrentItem.Title,
		}
		payload["playlistIndex"] = snap.PlaylistIndex
		payload["playlistLength"] = snap.PlaylistLength
	}
	s.publisher.Publish(events.EventStatus, payload)
}

var gaugedStates = []State{
	StateOffline, StateStarting, StateLive,
	StateStopping, StateErroring, StateRestarting,
}

func setStateGauge(current State) {
	for _, st := range gaugedStates {
		v := 0.0
		if st == current {
			v = 1.0
		}
		telemetry.StreamState.WithLabelValues(string(st)).Set(v)
	}
}
