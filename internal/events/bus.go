/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events implements the in-process pubsub used at the service boundary.
// The orchestration core itself communicates over typed channels; this bus only
// fans events out to the WebSocket push, the external relays, and the webhook
// notifier.
package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventStatus          EventType = "status"
	EventError           EventType = "error"
	EventLog             EventType = "log"
	EventStreamStarted   EventType = "stream.started"
	EventStreamStopped   EventType = "stream.stopped"
	EventStreamRestarted EventType = "stream.restarted"
	EventItemChanged     EventType = "playlist.item_changed"
	EventHealthAlert     EventType = "health.alert"
	EventHealthAnalytics EventType = "health.analytics"

	// Persistence-side notifications consumed by dashboards and relays.
	EventPlaylistUpdated EventType = "playlist.updated"
	EventPlaylistDeleted EventType = "playlist.deleted"
	EventMediaUploaded   EventType = "media.uploaded"
	EventMediaDeleted    EventType = "media.deleted"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers are skipped rather
// than blocking the publisher. The read lock is held across the sends so
// Unsubscribe cannot close a channel mid-send.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
