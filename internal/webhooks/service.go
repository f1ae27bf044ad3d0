/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers boundary events to registered HTTP endpoints.
// Each delivery is HMAC-signed with the target's secret and logged, so
// operators can audit what an external automation was told and when.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/models"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

// ErrTargetNotFound is returned when a webhook target does not exist.
var ErrTargetNotFound = errors.New("webhook target not found")

const deliveryTimeout = 10 * time.Second

// relayed maps bus events onto their webhook event names.
var relayed = map[events.EventType]models.WebhookEventType{
	events.EventStreamStarted:   models.WebhookEventStreamStarted,
	events.EventStreamStopped:   models.WebhookEventStreamStopped,
	events.EventStreamRestarted: models.WebhookEventStreamRestarted,
	events.EventHealthAlert:     models.WebhookEventHealthAlert,
}

// Service fans boundary events out to webhook targets.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	client *http.Client
	logger zerolog.Logger

	// static is the environment-configured target, delivered to in
	// addition to the database targets. Nil when unconfigured.
	static *models.WebhookTarget
}

// NewService creates the webhook notifier. staticURL may be empty.
func NewService(db *gorm.DB, bus *events.Bus, staticURL, staticSecret string, logger zerolog.Logger) *Service {
	s := &Service{
		db:     db,
		bus:    bus,
		client: &http.Client{Timeout: deliveryTimeout},
		logger: logger.With().Str("component", "webhooks").Logger(),
	}
	if staticURL != "" {
		s.static = &models.WebhookTarget{
			ID:     uuid.NewString(),
			URL:    staticURL,
			Secret: staticSecret,
			Active: true,
		}
	}
	return s
}

// Start consumes bus events until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	started := s.bus.Subscribe(events.EventStreamStarted)
	stopped := s.bus.Subscribe(events.EventStreamStopped)
	restarted := s.bus.Subscribe(events.EventStreamRestarted)
	alerts := s.bus.Subscribe(events.EventHealthAlert)

	defer func() {
		s.bus.Unsubscribe(events.EventStreamStarted, started)
		s.bus.Unsubscribe(events.EventStreamStopped, stopped)
		s.bus.Unsubscribe(events.EventStreamRestarted, restarted)
		s.bus.Unsubscribe(events.EventHealthAlert, alerts)
	}()

	s.logger.Info().Msg("webhook notifier started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook notifier stopped")
			return
		case payload := <-started:
			s.deliver(ctx, relayed[events.EventStreamStarted], payload)
		case payload := <-stopped:
			s.deliver(ctx, relayed[events.EventStreamStopped], payload)
		case payload := <-restarted:
			s.deliver(ctx, relayed[events.EventStreamRestarted], payload)
		case payload := <-alerts:
			s.deliver(ctx, relayed[events.EventHealthAlert], payload)
		}
	}
}

// deliver posts the event to every subscribed target.
func (s *Service) deliver(ctx context.Context, event models.WebhookEventType, payload events.Payload) {
	targets := s.subscribedTargets(ctx, event)
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":   string(event),
		"sent_at": time.Now().UTC().Format(time.RFC3339),
		"data":    payload,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	for _, target := range targets {
		s.notifyTarget(ctx, target, event, body)
	}
}

// subscribedTargets loads active targets matching the event, plus the
// static target when configured.
func (s *Service) subscribedTargets(ctx context.Context, event models.WebhookEventType) []*models.WebhookTarget {
	var out []*models.WebhookTarget

	if s.db != nil {
		var stored []models.WebhookTarget
		if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&stored).Error; err != nil {
			s.logger.Error().Err(err).Msg("failed to fetch webhook targets")
		}
		for i := range stored {
			if stored[i].Matches(event) {
				out = append(out, &stored[i])
			}
		}
	}

	if s.static != nil && s.static.Matches(event) {
		out = append(out, s.static)
	}
	return out
}

// notifyTarget posts one signed delivery and records the outcome.
func (s *Service) notifyTarget(ctx context.Context, target *models.WebhookTarget, event models.WebhookEventType, body []byte) {
	statusCode, err := s.post(ctx, target, string(event), body)

	entry := models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      string(event),
		StatusCode: statusCode,
		CreatedAt:  time.Now().UTC(),
	}

	outcome := "delivered"
	if err != nil {
		entry.Error = err.Error()
		outcome = "failed"
		s.logger.Warn().
			Str("url", target.URL).
			Str("event", entry.Event).
			Int("status", statusCode).
			Err(err).
			Msg("webhook delivery failed")
	} else {
		s.logger.Debug().
			Str("url", target.URL).
			Str("event", entry.Event).
			Int("status", statusCode).
			Msg("webhook delivered")
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()

	if s.db == nil {
		return
	}
	if dbErr := s.db.WithContext(ctx).Create(&entry).Error; dbErr != nil {
		s.logger.Warn().Err(dbErr).Msg("failed to record webhook delivery")
	}
}

// post sends one signed request and returns the response status.
func (s *Service) post(ctx context.Context, target *models.WebhookTarget, event string, body []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ytstream-webhook/1.0")
	req.Header.Set("X-YTStream-Event", event)
	req.Header.Set("X-YTStream-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if target.Secret != "" {
		req.Header.Set("X-YTStream-Signature", Signature(target.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Signature computes the hex HMAC-SHA256 header value receivers verify.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// CreateTarget registers a webhook endpoint. eventFilter is
// comma-separated; empty subscribes to everything.
func (s *Service) CreateTarget(ctx context.Context, rawURL, eventFilter string) (*models.WebhookTarget, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", rawURL)
	}

	target := models.NewWebhookTarget(u.String(), strings.TrimSpace(eventFilter))
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return nil, fmt.Errorf("create webhook target: %w", err)
	}

	s.logger.Info().Str("id", target.ID).Str("url", target.URL).Msg("webhook target created")
	return target, nil
}

// ListTargets returns all registered targets.
func (s *Service) ListTargets(ctx context.Context) ([]models.WebhookTarget, error) {
	var targets []models.WebhookTarget
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list webhook targets: %w", err)
	}
	return targets, nil
}

// DeleteTarget removes a target and its delivery log.
func (s *Service) DeleteTarget(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_id = ?", id).Delete(&models.WebhookLog{}).Error; err != nil {
			return fmt.Errorf("delete webhook logs: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.WebhookTarget{})
		if res.Error != nil {
			return fmt.Errorf("delete webhook target: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTargetNotFound
		}
		return nil
	})
}

// RecentLogs returns up to limit delivery records for one target, newest
// first.
func (s *Service) RecentLogs(ctx context.Context, targetID string, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var logs []models.WebhookLog
	err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	return logs, nil
}

// TestTarget sends a synthetic delivery so an endpoint can be verified
// before real traffic depends on it. The result is not logged.
func (s *Service) TestTarget(ctx context.Context, id string) error {
	var target models.WebhookTarget
	if err := s.db.WithContext(ctx).First(&target, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		return fmt.Errorf("load webhook target: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"event":   "test",
		"sent_at": time.Now().UTC().Format(time.RFC3339),
		"data":    events.Payload{"message": "test delivery"},
	})
	if err != nil {
		return fmt.Errorf("marshal test payload: %w", err)
	}

	if _, err := s.post(ctx, &target, "test", body); err != nil {
		return fmt.Errorf("test delivery: %w", err)
	}
	return nil
}
