/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package health samples the supervisor's status on a fixed cadence,
// grades delivery quality, raises episodic threshold alerts, and
// captures periodic analytics snapshots.
package health

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/models"
	"github.com/snipersonu/ytstreamm1/internal/stream"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

const (
	alertScoreFloor   = 50
	alertErrorCeiling = 10
)

// StatusSource is the supervisor surface the sampler consumes. The
// sampler grades; it never controls the stream.
type StatusSource interface {
	Snapshot() stream.Status
	SetHealth(h stream.Health)
}

// Options configures the sampler. Zero values fall back to defaults.
type Options struct {
	Interval          time.Duration // health cadence, default 30s
	AnalyticsInterval time.Duration // analytics cadence, default 60s
	Retention         time.Duration // sample retention, default 7 days
	RingSize          int           // alert ring capacity, default 100
}

// Sampler periodically grades the stream and persists analytics.
type Sampler struct {
	source    StatusSource
	db        *gorm.DB
	publisher stream.Publisher
	logger    zerolog.Logger

	interval          time.Duration
	analyticsInterval time.Duration
	retention         time.Duration

	alerts *alertRing

	mu        sync.Mutex
	rng       *rand.Rand
	lastScore int
	inEpisode bool
}

// NewSampler wires a sampler. db may be nil; analytics persistence is
// then skipped while grading and alerting keep working.
func NewSampler(source StatusSource, db *gorm.DB, publisher stream.Publisher, opts Options, logger zerolog.Logger) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.AnalyticsInterval <= 0 {
		opts.AnalyticsInterval = time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 100
	}
	return &Sampler{
		source:            source,
		db:                db,
		publisher:         publisher,
		logger:            logger.With().Str("component", "health").Logger(),
		interval:          opts.Interval,
		analyticsInterval: opts.AnalyticsInterval,
		retention:         opts.Retention,
		alerts:            newAlertRing(opts.RingSize),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start runs the sampling loops until ctx is cancelled.
func (s *Sampler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("analytics_interval", s.analyticsInterval).
		Msg("health sampler started")

	healthTick := time.NewTicker(s.interval)
	analyticsTick := time.NewTicker(s.analyticsInterval)
	defer healthTick.Stop()
	defer analyticsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("health sampler stopped")
			return
		case <-healthTick.C:
			s.sample(ctx)
		case t := <-analyticsTick.C:
			s.captureAnalytics(ctx, t)
			s.pruneOldSamples(ctx, t)
		}
	}
}

// sample grades the current snapshot and handles threshold episodes. An
// alert fires once per breach episode; the episode ends when the
// condition clears or the stream goes offline.
func (s *Sampler) sample(ctx context.Context) {
	st := s.source.Snapshot()
	if !st.IsStreaming {
		s.mu.Lock()
		s.lastScore = 0
		s.inEpisode = false
		s.mu.Unlock()
		telemetry.HealthScore.Set(0)
		return
	}

	score := s.score(st)
	s.source.SetHealth(gradeFor(score))
	telemetry.HealthScore.Set(float64(score))

	s.mu.Lock()
	s.lastScore = score
	breached := score < alertScoreFloor || st.Errors > alertErrorCeiling
	fire := breached && !s.inEpisode
	s.inEpisode = breached
	s.mu.Unlock()

	if fire {
		s.raiseAlert(st, score)
	}
}

// score computes a synthetic quality figure: full marks minus weighted
// error and restart deductions plus bounded jitter, clamped to [0,100].
func (s *Sampler) score(st stream.Status) int {
	score := 100
	score -= int(st.Errors) * 5
	score -= int(st.Restarts) * 3

	s.mu.Lock()
	score += s.rng.Intn(11) - 5
	s.mu.Unlock()

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// gradeFor maps a score to the five-level health enum. Offline is
// handled by the supervisor's own teardown, never by the sampler.
func gradeFor(score int) stream.Health {
	switch {
	case score >= 90:
		return stream.HealthExcellent
	case score >= 75:
		return stream.HealthGood
	case score >= 50:
		return stream.HealthFair
	default:
		return stream.HealthPoor
	}
}

func (s *Sampler) raiseAlert(st stream.Status, score int) {
	alert := Alert{
		ID:       uuid.NewString(),
		Message:  fmt.Sprintf("stream health degraded: score %d with %d pipeline errors", score, st.Errors),
		Score:    score,
		Errors:   st.Errors,
		RaisedAt: time.Now().UTC(),
	}
	s.alerts.add(alert)
	if score < alertScoreFloor {
		telemetry.HealthAlertsTotal.WithLabelValues("low_score").Inc()
	}
	if st.Errors > alertErrorCeiling {
		telemetry.HealthAlertsTotal.WithLabelValues("error_rate").Inc()
	}
	s.logger.Warn().Int("score", score).Int64("errors", st.Errors).Msg("health alert raised")
	s.publisher.Publish(events.EventHealthAlert, events.Payload{
		"id":      alert.ID,
		"message": alert.Message,
		"score":   score,
		"errors":  st.Errors,
	})
}

// captureAnalytics persists a wide snapshot for trend views. Viewer and
// bandwidth figures are synthetic; an RTMP push exposes no real
// delivery metrics to the sender.
func (s *Sampler) captureAnalytics(ctx context.Context, now time.Time) {
	st := s.source.Snapshot()
	if !st.IsStreaming {
		return
	}

	score := s.LastScore()
	if s.db != nil {
		sample := models.HealthSample{
			ID:         models.NewID(),
			State:      string(st.State),
			Score:      score,
			Bitrate:    st.Bitrate,
			FPS:        st.FPS,
			Errors:     st.Errors,
			Restarts:   st.Restarts,
			UptimeSecs: st.Uptime,
			CapturedAt: now.UTC(),
			CreatedAt:  now.UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&sample).Error; err != nil {
			s.logger.Warn().Err(err).Msg("failed to store health sample")
		}
	}

	s.mu.Lock()
	viewers := s.rng.Intn(40) + 5
	bandwidth := st.Bitrate + s.rng.Intn(st.Bitrate/10+1) - st.Bitrate/20
	s.mu.Unlock()

	s.publisher.Publish(events.EventHealthAnalytics, events.Payload{
		"score":         score,
		"state":         string(st.State),
		"uptime":        st.Uptime,
		"errors":        st.Errors,
		"restarts":      st.Restarts,
		"viewers":       viewers,
		"bandwidthKbps": bandwidth,
	})
}

func (s *Sampler) pruneOldSamples(ctx context.Context, now time.Time) {
	if s.db == nil {
		return
	}
	cutoff := now.Add(-s.retention).UTC()
	if err := s.db.WithContext(ctx).Where("captured_at < ?", cutoff).Delete(&models.HealthSample{}).Error; err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune old health samples")
	}
}

// LastScore returns the most recent synthetic score, zero while
// offline.
func (s *Sampler) LastScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScore
}

// Alerts returns a copy of the retained alerts, oldest first.
func (s *Sampler) Alerts() []Alert {
	return s.alerts.list()
}

// Acknowledge flips the acknowledged flag on one alert. Reports whether
// the alert was found.
func (s *Sampler) Acknowledge(id string) bool {
	return s.alerts.acknowledge(id)
}

// RecentSamples returns up to limit stored analytics rows, newest
// first.
func (s *Sampler) RecentSamples(ctx context.Context, limit int) ([]models.HealthSample, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var samples []models.HealthSample
	err := s.db.WithContext(ctx).
		Order("captured_at DESC").
		Limit(limit).
		Find(&samples).Error
	return samples, err
}
