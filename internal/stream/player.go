/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/pipeline"
)

// Invoker abstracts the encode pipeline process for the orchestration
// layer. *pipeline.Invoker satisfies it; tests substitute fakes.
type Invoker interface {
	Start(ctx context.Context, spec pipeline.Spec) (<-chan pipeline.Event, error)
	Stop(ctx context.Context) error
	Running() bool
}

// SingleItemPlayer keeps one source on air. The source loops at the
// pipeline level, so a healthy run never ends on its own; when the
// process dies anyway the player restarts it after a backoff, provided
// auto-restart was requested.
type SingleItemPlayer struct {
	invoker Invoker
	notices chan<- Notice
	backoff time.Duration
	logger  zerolog.Logger

	mu          sync.Mutex
	running     bool
	autoRestart bool
	spec        pipeline.Spec
	ctx         context.Context
	retry       *scheduledTask
}

// NewSingleItemPlayer wires a player to the pipeline invoker and the
// supervisor's notice channel.
func NewSingleItemPlayer(inv Invoker, notices chan<- Notice, timings Timings, logger zerolog.Logger) *SingleItemPlayer {
	t := timings.withDefaults()
	return &SingleItemPlayer{
		invoker: inv,
		notices: notices,
		backoff: t.RestartBackoff,
		logger:  logger.With().Str("component", "player").Logger(),
	}
}

// Play validates the source and brings the pipeline up. A missing local
// file is rejected before any spawn; remote URLs pass through and fail
// asynchronously if unreachable.
func (p *SingleItemPlayer) Play(ctx context.Context, spec pipeline.Spec, autoRestart bool) error {
	if err := checkLocalSource(spec.VideoInput); err != nil {
		return &ConfigError{Reason: err.Error()}
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return &ConfigError{Reason: "player already running"}
	}
	p.running = true
	p.autoRestart = autoRestart
	p.spec = spec
	p.ctx = ctx
	p.mu.Unlock()

	events, err := p.invoker.Start(ctx, spec)
	if err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return &PipelineError{Stage: "spawn", Err: err}
	}

	go p.consume(events)
	return nil
}

// Stop tears the player down. The pending retry is cancelled first so a
// scheduled restart can never outlive the stop.
func (p *SingleItemPlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	retry := p.retry
	p.retry = nil
	p.mu.Unlock()

	retry.Cancel()
	if p.invoker.Running() {
		return p.invoker.Stop(ctx)
	}
	return nil
}

// Running reports whether the player considers its run active. True
// during a backoff window between restart attempts.
func (p *SingleItemPlayer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SingleItemPlayer) consume(events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Type {
		case pipeline.EventStarted:
			p.send(Notice{Kind: NoticeLive})
		case pipeline.EventProgress:
			if ev.Progress.Bitrate > 0 || ev.Progress.FPS > 0 {
				p.send(Notice{Kind: NoticeHealthy})
			}
		case pipeline.EventEnded:
			if !ev.Interrupted {
				p.handleExit(nil)
			}
			return
		case pipeline.EventError:
			p.handleExit(ev.Err)
			return
		}
	}
}

// handleExit runs when the process dies without a stop request. It arms
// the backoff retry when auto-restart applies; spacing attempts by the
// backoff keeps a broken source from spinning the process in a tight
// loop.
func (p *SingleItemPlayer) handleExit(cause error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	retrying := p.autoRestart
	if retrying {
		p.retry = scheduleTask(p.backoff, p.restart)
	} else {
		p.running = false
	}
	p.mu.Unlock()

	if cause != nil {
		p.logger.Error().Err(cause).Bool("will_recover", retrying).Msg("pipeline failed")
		p.send(Notice{Kind: NoticeError, Err: cause, WillRecover: retrying})
		return
	}
	p.logger.Warn().Bool("will_recover", retrying).Msg("pipeline ended unexpectedly")
	p.send(Notice{Kind: NoticeEnded, WillRecover: retrying})
}

// restart re-runs the accepted spec after the backoff window.
func (p *SingleItemPlayer) restart() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	spec := p.spec
	p.mu.Unlock()

	events, err := p.invoker.Start(ctx, spec)
	if err != nil {
		p.handleExit(&PipelineError{Stage: "respawn", Err: err})
		return
	}

	p.logger.Info().Msg("pipeline restarted")
	go p.consume(events)
}

// send delivers a notice unless the player was stopped meanwhile. The
// supervisor drains the channel continuously for its whole lifetime.
func (p *SingleItemPlayer) send(n Notice) {
	p.mu.Lock()
	active := p.running
	p.mu.Unlock()
	if !active && n.Kind != NoticeError && n.Kind != NoticeEnded {
		return
	}
	p.notices <- n
}

// checkLocalSource rejects missing local files before any spawn. Remote
// URLs pass through.
func checkLocalSource(input string) error {
	if strings.Contains(input, "://") {
		return nil
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("source not accessible: %s", input)
	}
	return nil
}
