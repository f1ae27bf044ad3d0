/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
)

// natsSubjectPrefix namespaces the mirror subjects.
const natsSubjectPrefix = "ytstream.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSRelay mirrors bus events onto NATS subjects. The client buffers
// publishes across reconnects, so no breaker is needed here.
type NATSRelay struct {
	conn   *nats.Conn
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   map[events.EventType]events.Subscriber
}

// NewNATSRelay connects to NATS and starts mirroring bus events.
func NewNATSRelay(cfg NATSConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) (*NATSRelay, error) {
	log := logger.With().Str("component", "nats_relay").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("ytstream-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &NATSRelay{
		conn:   conn,
		bus:    bus,
		nodeID: nodeID,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[events.EventType]events.Subscriber),
	}

	for _, eventType := range relayedTypes {
		sub := bus.Subscribe(eventType)
		r.subs[eventType] = sub
		r.wg.Add(1)
		go r.forward(eventType, sub)
	}

	r.logger.Info().Str("url", cfg.URL).Msg("NATS event relay started")
	return r, nil
}

// forward drains one local subscription onto its NATS subject.
func (r *NATSRelay) forward(eventType events.EventType, sub events.Subscriber) {
	defer r.wg.Done()

	subject := subjectFor(eventType)
	for {
		select {
		case <-r.ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}

			data, err := marshalEnvelope(eventType, payload, r.nodeID)
			if err != nil {
				r.logger.Error().Err(err).Msg("failed to marshal relay message")
				continue
			}
			if err := r.conn.Publish(subject, data); err != nil {
				r.logger.Error().Err(err).Str("subject", subject).Msg("failed to publish to NATS")
			}
		}
	}
}

// Close stops the forwarders and drains the NATS connection.
func (r *NATSRelay) Close() error {
	r.cancel()
	for eventType, sub := range r.subs {
		r.bus.Unsubscribe(eventType, sub)
	}
	r.wg.Wait()

	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return err
	}
	return nil
}

// subjectFor maps an event type onto its NATS subject.
func subjectFor(eventType events.EventType) string {
	return natsSubjectPrefix + string(eventType)
}
