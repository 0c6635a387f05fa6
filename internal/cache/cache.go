// Package cache provides a process-wide TTL cache for read query results.
// Entries are addressed by a deterministic key derived from the logical
// query and its parameters, and carry structured tags so writers can
// invalidate whole families of entries without knowing individual keys.
// Over-invalidation is acceptable; serving stale data is not.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
)

// Well-known tags applied by the read services. A writer invalidates the
// tags its change may affect.
const (
	TagCatalog   = "catalog"
	TagOwnership = "ownership"
	TagGroups    = "groups"
)

// TagCoin scopes an entry to a single catalog coin.
func TagCoin(coinID string) string {
	return "coin:" + coinID
}

// TagOwner scopes an entry to a single owner name.
func TagOwner(name string) string {
	return "owner:" + name
}

// TagGroup scopes an entry to a single group.
func TagGroup(groupID string) string {
	return "group:" + groupID
}

// Spec identifies one cacheable read. Two specs with the same query and the
// same parameter set produce the same key regardless of map iteration order.
type Spec struct {
	Query  string
	Params map[string]string
	Tags   []string
}

// Key derives the deterministic cache key for this spec.
func (s Spec) Key() string {
	if len(s.Params) == 0 {
		return s.Query
	}
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Query)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.Params[k])
	}
	return b.String()
}

type entry struct {
	value     any
	tags      []string
	expiresAt time.Time
}

// Service is a thread-safe in-process TTL cache. All read services in the
// process share one instance so that invalidation by any writer is seen by
// every reader.
type Service struct {
	clock adapter.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a cache service with the given entry lifetime. A zero or
// negative ttl disables caching entirely: every lookup recomputes.
func New(clock adapter.Clock, ttl time.Duration) *Service {
	return &Service{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// GetOrCompute returns the cached value for the spec, computing and storing
// it on a miss or after expiry. Compute errors are returned to the caller
// and never cached. The second return reports whether the value was served
// from cache.
func (c *Service) GetOrCompute(ctx context.Context, spec Spec, compute func(ctx context.Context) (any, error)) (any, bool, error) {
	key := spec.Key()

	if c.ttl > 0 {
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.clock.Now().Before(e.expiresAt) {
			return e.value, true, nil
		}
	}

	// The lock is not held across compute. Concurrent misses on the same
	// key may compute twice; last write wins, which is harmless for
	// idempotent reads.
	value, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[key] = entry{
			value:     value,
			tags:      spec.Tags,
			expiresAt: c.clock.Now().Add(c.ttl),
		}
		c.mu.Unlock()
	}

	return value, false, nil
}

// Invalidate drops every entry carrying at least one of the given tags.
func (c *Service) Invalidate(tags ...string) {
	if len(tags) == 0 {
		return
	}
	match := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		match[t] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		for _, t := range e.tags {
			if _, ok := match[t]; ok {
				delete(c.entries, key)
				break
			}
		}
	}
}

// InvalidateMatching drops every entry whose key satisfies pred. Coarse
// fallback for callers without tag knowledge.
func (c *Service) InvalidateMatching(pred func(key string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if pred(key) {
			delete(c.entries, key)
		}
	}
}

// Clear drops every entry.
func (c *Service) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of entries currently held, expired or not.
func (c *Service) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetch is the typed wrapper around GetOrCompute. A cached value of an
// unexpected type is treated as a miss and recomputed.
func Fetch[T any](ctx context.Context, c *Service, spec Spec, compute func(ctx context.Context) (T, error)) (T, error) {
	value, cached, err := c.GetOrCompute(ctx, spec, func(ctx context.Context) (any, error) {
		return compute(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		if cached {
			// Stale entry from an older code path. Drop it and recompute.
			key := spec.Key()
			c.InvalidateMatching(func(k string) bool { return k == key })
			return compute(ctx)
		}
		var zero T
		return zero, fmt.Errorf("cache: unexpected value type %T for query %q", value, spec.Query)
	}
	return typed, nil
}
