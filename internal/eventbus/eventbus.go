/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors boundary events to external brokers. The
// orchestration core publishes to the in-process bus; these relays hand a
// read-only copy to dashboards and fleet controllers over NATS or Redis.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/snipersonu/ytstreamm1/internal/events"
)

// relayedTypes is every event type mirrored out of process.
var relayedTypes = []events.EventType{
	events.EventStatus,
	events.EventError,
	events.EventLog,
	events.EventStreamStarted,
	events.EventStreamStopped,
	events.EventStreamRestarted,
	events.EventItemChanged,
	events.EventHealthAlert,
	events.EventHealthAnalytics,
	events.EventPlaylistUpdated,
	events.EventPlaylistDeleted,
	events.EventMediaUploaded,
	events.EventMediaDeleted,
}

// envelope is the wire format shared by both relays.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

// marshalEnvelope wraps a payload with provenance for the wire.
func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}
