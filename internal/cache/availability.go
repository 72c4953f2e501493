// Package cache keeps expanded availability in Redis.
//
// Entries are keyed by a per-service generation number. Every write bumps
// the generation, which orphans all entries computed before it; orphans
// expire on their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/metrics"
	"slotbook/internal/slots"
)

// Availability is the cache contract used by the booking service.
type Availability interface {
	// Lookup returns cached days and the generation they were read under.
	Lookup(ctx context.Context, serviceID int64, from, to string) ([]slots.DayInfo, int64, bool)
	// Store saves days computed while generation gen was current.
	Store(ctx context.Context, serviceID, gen int64, from, to string, days []slots.DayInfo)
	// Invalidate orphans every entry of serviceID.
	Invalidate(ctx context.Context, serviceID int64)
}

// Noop is used when caching is disabled.
type Noop struct{}

func (Noop) Lookup(context.Context, int64, string, string) ([]slots.DayInfo, int64, bool) {
	return nil, 0, false
}

func (Noop) Store(context.Context, int64, int64, string, string, []slots.DayInfo) {}

func (Noop) Invalidate(context.Context, int64) {}

// RedisAvailability is the Redis-backed implementation.
type RedisAvailability struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	degraded map[int64]time.Time // service -> bypass until
}

// NewRedisAvailability creates a cache with entries living ttl.
func NewRedisAvailability(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RedisAvailability {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisAvailability{
		client:   client,
		ttl:      ttl,
		logger:   logger.With().Str("component", "availability_cache").Logger(),
		now:      time.Now,
		degraded: make(map[int64]time.Time),
	}
}

func genKey(serviceID int64) string {
	return fmt.Sprintf("slotbook:avail:gen:%d", serviceID)
}

func dataKey(serviceID, gen int64, from, to string) string {
	return fmt.Sprintf("slotbook:avail:%d:%d:%s:%s", serviceID, gen, from, to)
}

// Lookup implements Availability. On any error it reports a miss.
func (c *RedisAvailability) Lookup(ctx context.Context, serviceID int64, from, to string) ([]slots.DayInfo, int64, bool) {
	if c.bypassed(serviceID) {
		metrics.IncCacheLookup("bypass")
		return nil, 0, false
	}

	gen, err := c.client.Get(ctx, genKey(serviceID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Int64("service_id", serviceID).Msg("read cache generation")
		metrics.IncCacheLookup("error")
		return nil, 0, false
	}

	data, err := c.client.Get(ctx, dataKey(serviceID, gen, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheLookup("miss")
		return nil, gen, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Int64("service_id", serviceID).Msg("read cache entry")
		metrics.IncCacheLookup("error")
		return nil, 0, false
	}

	var days []slots.DayInfo
	if err := json.Unmarshal(data, &days); err != nil {
		metrics.IncCacheLookup("error")
		return nil, gen, false
	}

	metrics.IncCacheLookup("hit")
	return days, gen, true
}

// Store implements Availability.
func (c *RedisAvailability) Store(ctx context.Context, serviceID, gen int64, from, to string, days []slots.DayInfo) {
	if c.bypassed(serviceID) {
		return
	}

	data, err := json.Marshal(days)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, dataKey(serviceID, gen, from, to), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("service_id", serviceID).Msg("write cache entry")
	}
}

// Invalidate implements Availability. When Redis cannot be reached the
// service is bypassed locally for one TTL, so entries that could not be
// orphaned are never served by this process.
func (c *RedisAvailability) Invalidate(ctx context.Context, serviceID int64) {
	if err := c.client.Incr(ctx, genKey(serviceID)).Err(); err != nil {
		c.logger.Error().Err(err).Int64("service_id", serviceID).Msg("invalidate availability; bypassing cache")
		c.mu.Lock()
		c.degraded[serviceID] = c.now().Add(c.ttl)
		c.mu.Unlock()
	}
}

func (c *RedisAvailability) bypassed(serviceID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.degraded[serviceID]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.degraded, serviceID)
		return false
	}
	return true
}
