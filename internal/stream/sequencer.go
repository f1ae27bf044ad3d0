/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/models"
	"github.com/snipersonu/ytstreamm1/internal/pipeline"
)

// PlaylistSource loads playlist aggregates for playback, items ordered
// by position. The sequencer never writes through it.
type PlaylistSource interface {
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
}

// AssetResolver turns a stored media asset into a playable local path
// or URL.
type AssetResolver interface {
	ResolvePath(ctx context.Context, assetID string) (string, error)
}

// PlaylistSequencer walks a playlist's audio rotation over a looping
// background video, one pipeline run per item. Items hand off with a
// short gap: one second after a clean finish, two after a failure.
type PlaylistSequencer struct {
	invoker  Invoker
	source   PlaylistSource
	resolver AssetResolver
	notices  chan<- Notice
	logger   zerolog.Logger

	advanceDelay time.Duration
	errorDelay   time.Duration
	rng          *rand.Rand

	mu       sync.Mutex
	ctx      context.Context
	playlist *models.Playlist
	bgPath   string
	order    []int
	cursor   int
	shuffle  bool
	loop     bool
	running  bool
	pending  *scheduledTask
	cfg      Config
	sinkURL  string
}

// NewPlaylistSequencer wires a sequencer to the pipeline invoker, the
// playlist store, and the supervisor's notice channel.
func NewPlaylistSequencer(inv Invoker, source PlaylistSource, resolver AssetResolver, notices chan<- Notice, timings Timings, logger zerolog.Logger) *PlaylistSequencer {
	t := timings.withDefaults()
	return &PlaylistSequencer{
		invoker:      inv,
		source:       source,
		resolver:     resolver,
		notices:      notices,
		advanceDelay: t.AdvanceDelay,
		errorDelay:   t.ErrorAdvanceDelay,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logger.With().Str("component", "sequencer").Logger(),
	}
}

// Load fetches and validates the playlist aggregate. An empty rotation,
// a missing background video, or an item with no audio asset rejects
// the whole playlist before any pipeline spawn.
func (s *PlaylistSequencer) Load(ctx context.Context, id string, shuffle, loop bool) error {
	pl, err := s.source.GetPlaylist(ctx, id)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("playlist %s: %v", id, err)}
	}
	if len(pl.Items) == 0 {
		return &ConfigError{Reason: "playlist has no items"}
	}
	if pl.BackgroundVideoID == nil || *pl.BackgroundVideoID == "" {
		return &ConfigError{Reason: "playlist has no background video"}
	}
	for _, item := range pl.Items {
		if item.AudioAssetID == "" {
			return &ConfigError{Reason: fmt.Sprintf("item %q has no audio asset", item.Title)}
		}
	}

	bgPath, err := s.resolver.ResolvePath(ctx, *pl.BackgroundVideoID)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("background video: %v", err)}
	}

	s.mu.Lock()
	s.playlist = pl
	s.bgPath = bgPath
	s.shuffle = shuffle
	s.loop = loop
	s.cursor = 0
	s.order = s.buildOrder(len(pl.Items))
	s.mu.Unlock()
	return nil
}

// Start begins playback at the first slot of the play order. A failure
// bringing up the first item surfaces here synchronously; later item
// failures advance the rotation instead.
func (s *PlaylistSequencer) Start(ctx context.Context, cfg Config, sinkURL string) error {
	s.mu.Lock()
	if s.playlist == nil {
		s.mu.Unlock()
		return &ConfigError{Reason: "no playlist loaded"}
	}
	if s.running {
		s.mu.Unlock()
		return &ConfigError{Reason: "sequencer already running"}
	}
	s.running = true
	s.ctx = ctx
	s.cfg = cfg
	s.sinkURL = sinkURL
	s.mu.Unlock()

	return s.playCurrent(ctx, true)
}

// Stop halts playback and cancels any scheduled handoff.
func (s *PlaylistSequencer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	pending.Cancel()
	if s.invoker.Running() {
		return s.invoker.Stop(ctx)
	}
	return nil
}

// Running reports whether the rotation is active, including the gap
// between items.
func (s *PlaylistSequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next stops the current item and jumps forward in the play order.
func (s *PlaylistSequencer) Next(ctx context.Context) error {
	return s.jump(ctx, 1)
}

// Previous stops the current item and jumps back.
func (s *PlaylistSequencer) Previous(ctx context.Context) error {
	return s.jump(ctx, -1)
}

func (s *PlaylistSequencer) jump(ctx context.Context, delta int) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return &ConfigError{Reason: "sequencer not running"}
	}
	pending := s.pending
	s.pending = nil
	n := len(s.order)
	s.cursor = ((s.cursor+delta)%n + n) % n
	runCtx := s.ctx
	s.mu.Unlock()

	pending.Cancel()
	if s.invoker.Running() {
		if err := s.invoker.Stop(ctx); err != nil {
			return err
		}
	}
	// The new item outlives this call, so it spawns on the run context
	// accepted at Start, not the caller's.
	return s.playCurrent(runCtx, false)
}

// SetShuffle toggles shuffle and rebuilds the play order. The cursor
// keeps its numeric slot in the new order, so the item playing after
// the current pipeline run may jump; that jump is expected.
func (s *PlaylistSequencer) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuffle == on {
		return
	}
	s.shuffle = on
	if s.playlist != nil {
		s.order = s.buildOrder(len(s.playlist.Items))
		if s.cursor >= len(s.order) {
			s.cursor = 0
		}
	}
}

// playCurrent announces the item, then brings up its pipeline. The
// announcement precedes the spawn so status consumers never see a new
// item's progress attributed to the previous one.
func (s *PlaylistSequencer) playCurrent(ctx context.Context, initial bool) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	item := s.playlist.Items[s.order[s.cursor]]
	position := s.cursor
	total := len(s.order)
	spec := pipeline.Spec{
		VideoInput:   s.bgPath,
		LoopVideo:    true,
		AudioInput:   "",
		AudioGain:    item.Gain,
		Resolution:   s.cfg.Resolution(),
		VideoBitrate: s.cfg.Bitrate,
		FrameRate:    s.cfg.FPS,
		SinkURL:      s.sinkURL,
	}
	s.mu.Unlock()

	s.send(Notice{
		Kind:  NoticeItemChanged,
		Item:  &ItemRef{ID: item.ID, Title: item.Title},
		Index: position,
		Total: total,
	})

	audioPath, err := s.resolver.ResolvePath(ctx, item.AudioAssetID)
	if err != nil {
		s.logger.Error().Err(err).Str("item", item.Title).Msg("audio asset unresolvable")
		perr := &PipelineError{Stage: "resolve", Err: err}
		if initial {
			s.markStopped()
			return perr
		}
		s.failCurrent(perr)
		return nil
	}
	spec.AudioInput = audioPath

	events, err := s.invoker.Start(ctx, spec)
	if err != nil {
		perr := &PipelineError{Stage: "spawn", Err: err}
		if initial {
			s.markStopped()
			return perr
		}
		s.failCurrent(perr)
		return nil
	}

	go s.consume(events)
	return nil
}

func (s *PlaylistSequencer) consume(events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Type {
		case pipeline.EventStarted:
			s.send(Notice{Kind: NoticeLive})
		case pipeline.EventProgress:
			if ev.Progress.Bitrate > 0 || ev.Progress.FPS > 0 {
				s.send(Notice{Kind: NoticeHealthy})
			}
		case pipeline.EventEnded:
			if !ev.Interrupted {
				s.scheduleAdvance(s.advanceDelay)
			}
			return
		case pipeline.EventError:
			s.send(Notice{Kind: NoticeError, Err: ev.Err, WillRecover: true})
			s.scheduleAdvance(s.errorDelay)
			return
		}
	}
}

// failCurrent reports an item failure and arms the error advance.
func (s *PlaylistSequencer) failCurrent(err error) {
	s.send(Notice{Kind: NoticeError, Err: err, WillRecover: true})
	s.scheduleAdvance(s.errorDelay)
}

// scheduleAdvance moves the cursor and arms the delayed handoff to the
// next item. At the end of a non-looping rotation it stops instead.
func (s *PlaylistSequencer) scheduleAdvance(delay time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cursor++
	if s.cursor >= len(s.order) {
		if !s.loop {
			s.running = false
			s.mu.Unlock()
			s.logger.Info().Msg("rotation finished")
			s.notices <- Notice{Kind: NoticeStopped}
			return
		}
		s.cursor = 0
	}
	ctx := s.ctx
	s.pending = scheduleTask(delay, func() {
		// Initial=false: a failed handoff advances again on its own.
		_ = s.playCurrent(ctx, false)
	})
	s.mu.Unlock()
}

func (s *PlaylistSequencer) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// buildOrder returns identity order, or a Fisher-Yates permutation when
// shuffling.
func (s *PlaylistSequencer) buildOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if s.shuffle {
		for i := n - 1; i > 0; i-- {
			j := s.rng.Intn(i + 1)
			order[i], order[j] = order[j], order[i]
		}
	}
	return order
}

// send delivers a notice unless the rotation stopped meanwhile.
func (s *PlaylistSequencer) send(n Notice) {
	s.mu.Lock()
	active := s.running
	s.mu.Unlock()
	if !active && n.Kind != NoticeError && n.Kind != NoticeStopped {
		return
	}
	s.notices <- n
}
