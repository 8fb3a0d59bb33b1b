// Package adevents owns the ad event history: a bounded in-memory cache used
// for fast permission-rule checks and a durable Postgres table used for
// reporting and cross-session rules.
package adevents

import (
	"errors"
	"sync"
	"time"

	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// nowFn is used to get the current time. In production it's time.Now,
// but in tests we can replace it to simulate the passage of time.
var nowFn = time.Now

// DefaultCacheRetention is the window the in-memory cache answers for.
// Anything older is answered by the durable table instead.
const DefaultCacheRetention = 24 * time.Hour

var (
	ErrEmptyInstanceID           = errors.New("empty instance id")
	ErrUndefinedAdType           = errors.New("undefined ad type")
	ErrUndefinedConfirmationType = errors.New("undefined confirmation type")
)

// typeID builds the composite grouping key for a history sequence. The ":"
// separator keeps distinct type pairs from colliding under concatenation.
func typeID(adType models.AdType, confirmationType models.ConfirmationType) string {
	return adType.String() + ":" + confirmationType.String()
}

// Cache is a per-instance, per-type history of event timestamps bounded by a
// retention window. Every add purges entries older than the window from the
// touched sequence, so the cache shrinks without a separate eviction loop.
type Cache struct {
	mu        sync.Mutex
	retention time.Duration
	metrics   observability.MetricsRegistry

	// instance id -> type id -> timestamps in insertion order
	history map[string]map[string][]time.Time
}

// NewCache constructs a Cache with the given retention window. A zero
// retention falls back to DefaultCacheRetention.
func NewCache(retention time.Duration, metrics observability.MetricsRegistry) *Cache {
	if retention <= 0 {
		retention = DefaultCacheRetention
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Cache{
		retention: retention,
		metrics:   metrics,
		history:   make(map[string]map[string][]time.Time),
	}
}

// AddEntryForInstanceID appends a timestamp to the history for the given
// instance and type pair, then drops entries older than the retention window
// from that same sequence. The id must be non-empty and both types defined;
// callers are internal and controlled, so violations are reported as errors
// rather than coerced.
func (c *Cache) AddEntryForInstanceID(instanceID string, adType models.AdType, confirmationType models.ConfirmationType, createdAt time.Time) error {
	if instanceID == "" {
		return ErrEmptyInstanceID
	}
	if !adType.IsDefined() {
		return ErrUndefinedAdType
	}
	if !confirmationType.IsDefined() {
		return ErrUndefinedConfirmationType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	types, ok := c.history[instanceID]
	if !ok {
		types = make(map[string][]time.Time)
		c.history[instanceID] = types
	}

	key := typeID(adType, confirmationType)
	seq := append(types[key], createdAt)

	cutoff := nowFn().Add(-c.retention)
	fresh := seq[:0]
	purged := 0
	for _, ts := range seq {
		if ts.Before(cutoff) {
			purged++
			continue
		}
		fresh = append(fresh, ts)
	}
	types[key] = fresh

	if purged > 0 {
		c.metrics.AddCachePurgedEntries(purged)
	}
	return nil
}

// Get returns the union of all instances' histories for the given type pair.
// Timestamps keep their per-instance insertion order; the order across
// instances is unspecified and callers must not rely on it.
func (c *Cache) Get(adType models.AdType, confirmationType models.ConfirmationType) []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := typeID(adType, confirmationType)
	var out []time.Time
	for _, types := range c.history {
		out = append(out, types[key]...)
	}
	return out
}

// ResetForInstanceID clears every type history for the given instance. Used
// when a fresh ad-serving instance starts.
func (c *Cache) ResetForInstanceID(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, instanceID)
}
