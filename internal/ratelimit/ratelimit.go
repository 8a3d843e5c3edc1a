// Package ratelimit implements a sliding-window request limiter with a
// pluggable store: Redis when several API instances share the budget, memory
// for a single process.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter admits at most a fixed number of hits per key within a window.
// A hit counts while it is strictly newer than now minus the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type redisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter keeps one sorted set per key, scored by hit time.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	return &redisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (r *redisLimiter) key(k string) string {
	return fmt.Sprintf("%s:ratelimit:%s", r.prefix, k)
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	k := r.key(key)
	cutoff := now.Add(-r.window).UnixNano()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		// a hit scored exactly at the cutoff has left the window
		p.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%d", cutoff))
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = p.ZCard(ctx, k)
		p.PExpire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis pipeline: %w", err)
	}

	if card.Val() > int64(r.limit) {
		// rejected hits do not consume budget
		if err := r.client.ZRem(ctx, k, member).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: redis zrem: %w", err)
		}
		return false, nil
	}
	return true, nil
}

type memoryLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter keeps hit timestamps in process memory.
func NewMemoryLimiter(limit int, window time.Duration) Limiter {
	return newMemoryLimiter(limit, window, time.Now)
}

func newMemoryLimiter(limit int, window time.Duration, now func() time.Time) *memoryLimiter {
	return &memoryLimiter{hits: make(map[string][]time.Time), limit: limit, window: window, now: now}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= m.limit {
		m.hits[key] = kept
		return false, nil
	}
	m.hits[key] = append(kept, now)

	if len(m.hits) > 10_000 {
		m.sweep(cutoff)
	}
	return true, nil
}

// sweep drops keys whose hits have all expired.
func (m *memoryLimiter) sweep(cutoff time.Time) {
	for k, ts := range m.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(m.hits, k)
		}
	}
}
