/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
)

// redisChannelPrefix namespaces the mirror channels.
const redisChannelPrefix = "ytstream:events:"

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// RedisRelay mirrors bus events to Redis pub/sub. When Redis becomes
// unreachable the relay stops publishing after MaxFailures consecutive
// errors and probes again every CheckInterval; local delivery is never
// affected.
type RedisRelay struct {
	client *redis.Client
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   map[events.EventType]events.Subscriber

	// Circuit breaker state
	mu         sync.Mutex
	paused     bool
	failCount  int
	maxFails   int
	checkEvery time.Duration
	lastCheck  time.Time
}

// NewRedisRelay connects to Redis and starts mirroring bus events.
func NewRedisRelay(cfg RedisConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisRelay{
		client:     client,
		bus:        bus,
		nodeID:     nodeID,
		logger:     logger.With().Str("component", "redis_relay").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[events.EventType]events.Subscriber),
		maxFails:   cfg.MaxFailures,
		checkEvery: cfg.CheckInterval,
	}

	for _, eventType := range relayedTypes {
		sub := bus.Subscribe(eventType)
		r.subs[eventType] = sub
		r.wg.Add(1)
		go r.forward(eventType, sub)
	}

	r.logger.Info().Str("addr", cfg.Addr).Msg("Redis event relay started")
	return r, nil
}

// forward drains one local subscription into Redis.
func (r *RedisRelay) forward(eventType events.EventType, sub events.Subscriber) {
	defer r.wg.Done()

	channel := redisChannelPrefix + string(eventType)
	for {
		select {
		case <-r.ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if !r.allowPublish() {
				continue
			}

			data, err := marshalEnvelope(eventType, payload, r.nodeID)
			if err != nil {
				r.logger.Error().Err(err).Msg("failed to marshal relay message")
				continue
			}

			ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
			err = r.client.Publish(ctx, channel, data).Err()
			cancel()
			r.notePublish(err)
			if err != nil {
				r.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
			}
		}
	}
}

// allowPublish reports whether the breaker permits an attempt. While paused,
// one attempt per CheckInterval is let through as a probe.
func (r *RedisRelay) allowPublish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.paused {
		return true
	}
	if time.Since(r.lastCheck) < r.checkEvery {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

// notePublish feeds a publish result into the breaker.
func (r *RedisRelay) notePublish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		if r.paused {
			r.logger.Info().Msg("Redis reachable again, resuming event mirroring")
		}
		r.paused = false
		r.failCount = 0
		return
	}

	r.failCount++
	if r.failCount >= r.maxFails && !r.paused {
		r.logger.Warn().
			Int("fail_count", r.failCount).
			Msg("Redis failure threshold reached, pausing event mirroring")
		r.paused = true
		r.lastCheck = time.Now()
	}
}

// Close stops the forwarders and closes the Redis connection.
func (r *RedisRelay) Close() error {
	r.cancel()
	for eventType, sub := range r.subs {
		r.bus.Unsubscribe(eventType, sub)
	}
	r.wg.Wait()
	return r.client.Close()
}
