/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leaselock serializes use of a stream sink credential. Two
// processes pushing to the same ingest endpoint corrupt the broadcast, so
// a run may only start while holding the credential's lease.
package leaselock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/telemetry"
)

const (
	// Lease key prefix in Redis
	keyPrefix = "ytstream:sink:"

	// Default lease duration - holder must renew before this expires
	defaultLeaseDuration = 15 * time.Second

	// Default renewal interval - how often the holder renews its lease
	defaultRenewalInterval = 5 * time.Second
)

// renewScript extends the lease only while we still own it.
const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// releaseScript deletes the lease only while we still own it.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Config configures the Redis-backed guard.
type Config struct {
	// RedisAddr is the Redis server address
	RedisAddr string

	// RedisPassword is the Redis password (optional)
	RedisPassword string

	// RedisDB is the Redis database number
	RedisDB int

	// InstanceID uniquely identifies this instance
	InstanceID string

	// LeaseDuration is how long the lease is valid without renewal
	LeaseDuration time.Duration

	// RenewalInterval is how often a held lease is renewed
	RenewalInterval time.Duration
}

// RedisGuard serializes sink usage across instances with a Redis lease.
type RedisGuard struct {
	client     *redis.Client
	instanceID string
	lease      time.Duration
	renewal    time.Duration
	logger     zerolog.Logger
}

// NewRedisGuard connects to Redis and returns a distributed sink guard.
func NewRedisGuard(cfg Config, logger zerolog.Logger) (*RedisGuard, error) {
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RenewalInterval == 0 {
		cfg.RenewalInterval = defaultRenewalInterval
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("instance_id", cfg.InstanceID).
		Msg("connected to Redis for sink leasing")

	return &RedisGuard{
		client:     client,
		instanceID: cfg.InstanceID,
		lease:      cfg.LeaseDuration,
		renewal:    cfg.RenewalInterval,
		logger:     logger.With().Str("component", "sink_lease").Logger(),
	}, nil
}

// Acquire claims the lease for a sink credential. The returned release
// function is idempotent. Acquire fails when another instance holds the
// lease.
func (g *RedisGuard) Acquire(ctx context.Context, credential string) (func(), error) {
	key := sinkKey(credential)

	ok, err := g.client.SetNX(ctx, key, g.instanceID, g.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sink lease: %w", err)
	}
	if !ok {
		holder, err := g.client.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("inspect sink lease: %w", err)
		}
		if holder != g.instanceID {
			return nil, fmt.Errorf("sink is in use by another instance")
		}
		// Stale lease from our own earlier run; renew and take it over.
		if err := g.client.Expire(ctx, key, g.lease).Err(); err != nil {
			return nil, fmt.Errorf("renew sink lease: %w", err)
		}
	}

	telemetry.SinkLeaseHeld.WithLabelValues(g.instanceID).Set(1)
	g.logger.Info().Str("key", key).Msg("sink lease acquired")

	stop := make(chan struct{})
	go g.renewLoop(key, stop)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.client.Eval(ctx, releaseScript, []string{key}, g.instanceID).Err(); err != nil {
				g.logger.Error().Err(err).Msg("failed to release sink lease")
			}
			telemetry.SinkLeaseHeld.WithLabelValues(g.instanceID).Set(0)
			g.logger.Info().Str("key", key).Msg("sink lease released")
		})
	}
	return release, nil
}

// Close closes the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

func (g *RedisGuard) renewLoop(key string, stop <-chan struct{}) {
	ticker := time.NewTicker(g.renewal)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			res, err := g.client.Eval(ctx, renewScript, []string{key}, g.instanceID, g.lease.Milliseconds()).Int()
			cancel()
			if err != nil {
				g.logger.Warn().Err(err).Msg("sink lease renewal failed")
				continue
			}
			if res == 0 {
				g.logger.Error().Str("key", key).Msg("sink lease lost to another holder")
			}
		}
	}
}

// LocalGuard serializes sink usage within a single process. It is the
// fallback when no Redis is configured.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalGuard creates a process-local sink guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]bool)}
}

// Acquire claims the credential within this process.
func (g *LocalGuard) Acquire(ctx context.Context, credential string) (func(), error) {
	key := sinkKey(credential)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, fmt.Errorf("sink is in use by another stream")
	}
	g.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// sinkKey hashes the credential so the stream key itself never lands in
// Redis or in logs.
func sinkKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return keyPrefix + hex.EncodeToString(sum[:])
}
