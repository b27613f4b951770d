// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/accessguard/internal/cache"
)

// EscalationGate decides whether an escalation for key may fire now.
// Allow returns true at most once per key per cooldown.
type EscalationGate interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func escalationKey(orgID, userID string) string {
	return orgID + "/" + userID
}

// MemoryGate is a process-local gate backed by a bounded window counter.
// Keys beyond the counter's capacity evict the oldest window first.
type MemoryGate struct {
	counter *cache.WindowCounter
}

// NewMemoryGate creates a gate whose cooldown is the counter's window.
func NewMemoryGate(counter *cache.WindowCounter) *MemoryGate {
	return &MemoryGate{counter: counter}
}

// Allow reports true for the first call in each window.
func (g *MemoryGate) Allow(_ context.Context, key string) (bool, error) {
	return g.counter.Increment(key) == 1, nil
}

// RedisGate shares the cooldown across instances with SET NX PX.
type RedisGate struct {
	client   redis.Cmdable
	prefix   string
	cooldown time.Duration
}

// NewRedisGate creates a distributed gate. prefix namespaces the keys.
func NewRedisGate(client redis.Cmdable, prefix string, cooldown time.Duration) *RedisGate {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &RedisGate{client: client, prefix: prefix, cooldown: cooldown}
}

func (g *RedisGate) key(key string) string {
	if g.prefix == "" {
		return "escalation:" + key
	}
	return g.prefix + ":escalation:" + key
}

// Allow claims the key for one cooldown. Only the instance whose SET
// succeeds is allowed through.
func (g *RedisGate) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339), g.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("escalation gate: %w", err)
	}
	return ok, nil
}
