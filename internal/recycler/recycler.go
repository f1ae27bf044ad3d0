/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recycler restarts the stream on a recurrence schedule. Encoder
// processes and RTMP ingest sessions degrade over multi-day pushes; a
// planned restart at a quiet hour resets both before they fail on their
// own.
package recycler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/snipersonu/ytstreamm1/internal/stream"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

// Controller is the supervisor surface the recycler drives.
type Controller interface {
	Restart(ctx context.Context) error
	Snapshot() stream.Status
}

// Service fires planned restarts on an RRULE cadence.
type Service struct {
	ctrl   Controller
	rule   *rrule.RRule
	logger zerolog.Logger
}

// New parses the recurrence rule and wires the service. The rule is plain
// RRULE content, e.g. "FREQ=DAILY;BYHOUR=4;BYMINUTE=30", anchored at
// construction time.
func New(ruleStr string, ctrl Controller, logger zerolog.Logger) (*Service, error) {
	rule, err := rrule.StrToRRule(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("parse recycle rule: %w", err)
	}
	rule.DTStart(time.Now().UTC().Truncate(time.Minute))

	return &Service{
		ctrl:   ctrl,
		rule:   rule,
		logger: logger.With().Str("component", "recycler").Logger(),
	}, nil
}

// Start sleeps until each occurrence and fires a planned restart, until
// ctx is cancelled or the rule runs out of occurrences.
func (s *Service) Start(ctx context.Context) {
	for {
		next := s.rule.After(time.Now().UTC(), false)
		if next.IsZero() {
			s.logger.Info().Msg("recycle rule has no further occurrences")
			return
		}

		s.logger.Info().Time("next_restart", next).Msg("planned restart scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("recycler stopped")
			return
		case <-timer.C:
			s.runPlannedRestart(ctx)
		}
	}
}

// runPlannedRestart restarts a live stream. An offline stream is left
// alone; recycling must never start a stream the operator stopped.
func (s *Service) runPlannedRestart(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "recycler", "planned_restart")
	defer span.End()

	st := s.ctrl.Snapshot()
	telemetry.AddSpanAttributes(span, map[string]any{
		"state":     string(st.State),
		"streaming": st.IsStreaming,
	})

	if !st.IsStreaming {
		s.logger.Info().Str("state", string(st.State)).Msg("skipping planned restart: stream not live")
		return
	}

	s.logger.Info().Msg("running planned restart")
	if err := s.ctrl.Restart(ctx); err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error().Err(err).Msg("planned restart failed")
		return
	}
	telemetry.StreamRestartsTotal.WithLabelValues("planned").Inc()
}
