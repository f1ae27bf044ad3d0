/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

// ErrAlreadyRunning is returned when Start is called while a process is still
// active. Exactly one invocation may be in flight per Invoker; a second start
// is a programming error in the caller, not something to queue.
var ErrAlreadyRunning = errors.New("pipeline already running")

// EventType enumerates pipeline lifecycle events.
type EventType string

const (
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventEnded    EventType = "ended"
	EventError    EventType = "error"
)

// Progress carries a periodic encode sample parsed from ffmpeg stderr.
type Progress struct {
	Frames  int64
	FPS     float64
	Bitrate float64 // kbits/s
	Elapsed time.Duration
}

// Event is one pipeline lifecycle notification. Exactly one terminal event
// (ended or error) is sent per invocation, after which the channel is closed.
type Event struct {
	Type     EventType
	Command  []string // started: the fully resolved argv, for audit logging
	Progress Progress // progress
	Err      error    // error

	// Interrupted marks an ended event caused by an explicit Stop rather
	// than the process finishing on its own.
	Interrupted bool
}

// Invoker launches and supervises one ffmpeg process at a time.
type Invoker struct {
	ffmpegBin string
	logger    zerolog.Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	done          chan struct{} // closed when the process has exited
	stopRequested bool
}

// NewInvoker constructs an invoker using the given ffmpeg binary.
func NewInvoker(ffmpegBin string, logger zerolog.Logger) *Invoker {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Invoker{
		ffmpegBin: ffmpegBin,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Start spawns the encode process for spec and returns its event channel.
// It returns once the process has been started; the started event (carrying
// the resolved argv) is already buffered on the returned channel at that
// point, so callers always observe started before any progress or terminal
// event.
func (p *Invoker) Start(ctx context.Context, spec Spec) (<-chan Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.done != nil {
		select {
		case <-p.done:
			// Previous process has exited, ok to start a new one.
		default:
			return nil, ErrAlreadyRunning
		}
	}

	args, err := spec.Args()
	if err != nil {
		return nil, fmt.Errorf("build pipeline args: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegBin, args...)
	cmd.Stdout = nil

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.logMissingInput(spec)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p.cmd = cmd
	p.done = make(chan struct{})
	p.stopRequested = false

	eventCh := make(chan Event, 16)
	eventCh <- Event{Type: EventStarted, Command: append([]string{p.ffmpegBin}, args...)}

	p.logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("spec", spec.String()).
		Msg("encode process started")

	tail := newTailBuffer(stderrTailLines)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanProgress(stderr, tail, func(prog Progress) {
			telemetry.PipelineFPS.Set(prog.FPS)
			telemetry.PipelineBitrateKbps.Set(prog.Bitrate)
			select {
			case eventCh <- Event{Type: EventProgress, Progress: prog}:
			default:
				// Progress is advisory; drop samples rather than block.
			}
		})
	}()

	go func(done chan struct{}, c *exec.Cmd) {
		waitErr := c.Wait()
		<-scanDone
		close(done)

		p.mu.Lock()
		interrupted := p.stopRequested
		p.mu.Unlock()

		telemetry.PipelineFPS.Set(0)
		telemetry.PipelineBitrateKbps.Set(0)

		switch {
		case waitErr == nil:
			p.logger.Info().Str("spec", spec.String()).Msg("encode process ended")
			telemetry.PipelineRunsTotal.WithLabelValues("completed").Inc()
			eventCh <- Event{Type: EventEnded}
		case interrupted:
			p.logger.Debug().Err(waitErr).Msg("encode process stopped")
			telemetry.PipelineRunsTotal.WithLabelValues("interrupted").Inc()
			eventCh <- Event{Type: EventEnded, Interrupted: true}
		default:
			p.logMissingInput(spec)
			err := fmt.Errorf("ffmpeg exited: %w (stderr: %s)", waitErr, tail.String())
			p.logger.Error().Err(waitErr).Str("stderr_tail", tail.String()).Msg("encode process failed")
			telemetry.PipelineRunsTotal.WithLabelValues("failed").Inc()
			eventCh <- Event{Type: EventError, Err: err}
		}
		close(eventCh)
	}(p.done, cmd)

	return eventCh, nil
}

// Stop terminates the running process: interrupt first, kill after a grace
// period. Stopping an already-stopped invoker is a no-op.
func (p *Invoker) Stop(ctx context.Context) error {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	if cmd != nil {
		p.stopRequested = true
	}
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-done:
		// Process exited on the interrupt.
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}

	return nil
}

// Running reports whether a process is currently active.
func (p *Invoker) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// logMissingInput adds a directory listing to the log when a local input file
// has vanished between validation and use, to aid operator debugging.
func (p *Invoker) logMissingInput(spec Spec) {
	for _, input := range []string{spec.VideoInput, spec.AudioInput} {
		if input == "" || strings.Contains(input, "://") {
			continue
		}
		if _, err := os.Stat(input); err == nil {
			continue
		}
		dir := filepath.Dir(input)
		entries, err := os.ReadDir(dir)
		if err != nil {
			p.logger.Error().Str("input", input).Str("dir", dir).Err(err).
				Msg("input file missing and its directory is unreadable")
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		p.logger.Error().Str("input", input).Str("dir", dir).Strs("dir_contents", names).
			Msg("input file missing at spawn time")
	}
}
