/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookEventType defines types of webhook events.
type WebhookEventType string

const (
	WebhookEventStreamStarted   WebhookEventType = "stream_started"
	WebhookEventStreamStopped   WebhookEventType = "stream_stopped"
	WebhookEventStreamRestarted WebhookEventType = "stream_restarted"
	WebhookEventHealthAlert     WebhookEventType = "health_alert"
)

// WebhookTarget stores an outbound notification endpoint.
type WebhookTarget struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	URL    string `gorm:"type:varchar(512);not null" json:"url"`
	Events string `gorm:"type:varchar(255)" json:"events"` // comma-separated: stream_started,health_alert
	Secret string `gorm:"type:varchar(255)" json:"-"`      // for HMAC signing
	Active bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WebhookTarget) TableName() string {
	return "webhook_targets"
}

// NewWebhookTarget creates a new webhook target with a random secret.
func NewWebhookTarget(url, events string) *WebhookTarget {
	return &WebhookTarget{
		ID:     uuid.NewString(),
		URL:    url,
		Events: events,
		Secret: uuid.NewString(),
		Active: true,
	}
}

// Matches reports whether the target subscribes to the given event.
// An empty Events filter subscribes to everything.
func (w *WebhookTarget) Matches(event WebhookEventType) bool {
	if !w.Active {
		return false
	}
	if strings.TrimSpace(w.Events) == "" {
		return true
	}
	for _, e := range strings.Split(w.Events, ",") {
		if strings.TrimSpace(e) == string(event) {
			return true
		}
	}
	return false
}

// WebhookLog records webhook delivery attempts.
type WebhookLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID   string    `gorm:"type:uuid;index;not null" json:"target_id"`
	Event      string    `gorm:"type:varchar(64);not null" json:"event"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
