/*
Package cache keeps rendered plan-charge months in Redis.

PURPOSE:
  The plan-charge projection joins four staged tables for every request.
  The month view only changes when a sync or a forecast write lands, so
  the rendered JSON is cached per (year, month) with a short TTL.

BEHAVIOR:
  A nil client disables caching entirely: every call becomes a no-op and
  Get always misses. Cache failures are logged and degrade to a miss,
  never to a request failure.

SEE ALSO:
  - forecast: the projection being cached
  - api: invalidates months on forecast writes
*/
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plancharge/engine/forecast"
)

// DefaultTTL bounds staleness between syncs.
const DefaultTTL = 5 * time.Minute

// PlanChargeCache is a month-keyed cache of rendered projections.
type PlanChargeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps the client. A nil client yields a disabled cache; a zero ttl
// falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *PlanChargeCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PlanChargeCache{client: client, ttl: ttl}
}

// Enabled reports whether a backing client is configured.
func (c *PlanChargeCache) Enabled() bool {
	return c != nil && c.client != nil
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("plancharge:%04d-%02d", year, int(month))
}

// Get returns the cached month, or ok=false on a miss, a disabled cache,
// or any Redis failure.
func (c *PlanChargeCache) Get(ctx context.Context, year int, month time.Month) (forecast.PlanCharge, bool) {
	if !c.Enabled() {
		return forecast.PlanCharge{}, false
	}
	raw, err := c.client.Get(ctx, monthKey(year, month)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Cache] Get %04d-%02d failed: %v", year, int(month), err)
		}
		return forecast.PlanCharge{}, false
	}
	var pc forecast.PlanCharge
	if err := json.Unmarshal(raw, &pc); err != nil {
		log.Printf("[Cache] Corrupt entry for %04d-%02d dropped: %v", year, int(month), err)
		c.Invalidate(ctx, year, month)
		return forecast.PlanCharge{}, false
	}
	return pc, true
}

// Set stores the month for the configured TTL.
func (c *PlanChargeCache) Set(ctx context.Context, pc forecast.PlanCharge) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(pc)
	if err != nil {
		log.Printf("[Cache] Marshal %04d-%02d failed: %v", pc.Year, pc.Month, err)
		return
	}
	if err := c.client.Set(ctx, monthKey(pc.Year, time.Month(pc.Month)), raw, c.ttl).Err(); err != nil {
		log.Printf("[Cache] Set %04d-%02d failed: %v", pc.Year, pc.Month, err)
	}
}

// Invalidate drops one cached month, typically after a forecast write.
func (c *PlanChargeCache) Invalidate(ctx context.Context, year int, month time.Month) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, monthKey(year, month)).Err(); err != nil {
		log.Printf("[Cache] Invalidate %04d-%02d failed: %v", year, int(month), err)
	}
}
