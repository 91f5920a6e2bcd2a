package cache

import (
	"context"
	"sync"
	"time"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/sentinel"
)

// InMemoryCache keeps the enrolled set in process. Used when Redis is not configured.
type InMemoryCache struct {
	mu       sync.RWMutex
	entries  map[id.EmployeeID]models.Entry
	indexed  bool
	lastSync time.Time
	ttl      time.Duration
	now      func() time.Time
}

type MemoryOption func(*InMemoryCache)

// WithMemoryClock overrides the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

func NewInMemory(ttl time.Duration, opts ...MemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[id.EmployeeID]models.Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Backend() string { return "memory" }

func (c *InMemoryCache) expiredLocked() bool {
	return c.ttl > 0 && c.now().Sub(c.lastSync) >= c.ttl
}

func (c *InMemoryCache) GetAll(_ context.Context) ([]models.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.indexed || len(c.entries) == 0 || c.expiredLocked() {
		return nil, sentinel.ErrCacheMiss
	}
	out := make([]models.Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (c *InMemoryCache) Populate(_ context.Context, entries []models.Entry) error {
	fresh := make(map[id.EmployeeID]models.Entry, len(entries))
	for _, e := range entries {
		fresh[e.EmployeeID] = e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = fresh
	c.indexed = true
	c.lastSync = c.now()
	return nil
}

func (c *InMemoryCache) UpsertOne(_ context.Context, entry models.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.indexed {
		return nil
	}
	c.entries[entry.EmployeeID] = entry
	return nil
}

func (c *InMemoryCache) RemoveOne(_ context.Context, employeeID id.EmployeeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, employeeID)
	return nil
}

func (c *InMemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[id.EmployeeID]models.Entry)
	c.indexed = false
	c.lastSync = time.Time{}
	return nil
}

func (c *InMemoryCache) Stats(_ context.Context) models.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := models.CacheStats{Available: true, Backend: c.Backend()}
	if c.indexed && !c.expiredLocked() {
		stats.EnrolledCount = len(c.entries)
		lastSync := c.lastSync
		stats.LastSync = &lastSync
	}
	return stats
}
