package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"punchclock/internal/biometric/metrics"
	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/circuit"
	"punchclock/pkg/platform/sentinel"
)

const (
	entryKeyPrefix = "faces:entry:"
	indexKey       = "faces:index"
	lastSyncKey    = "faces:last_sync"
)

func entryKey(employeeID string) string {
	return entryKeyPrefix + employeeID
}

// upsertScript writes one entry only while the index exists.
// KEYS[1]=index KEYS[2]=entry key, ARGV[1]=payload ARGV[2]=ttl ms ARGV[3]=member
var upsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[1], ARGV[3])
return 1
`)

// RedisCache stores each entry as JSON under its own key with a TTL, a set
// of member ids as the index, and a last-sync timestamp.
// Every call is bounded by opTimeout and guarded by a circuit breaker.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type RedisOption func(*RedisCache)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) RedisOption {
	return func(c *RedisCache) {
		c.metrics = m
	}
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *circuit.Breaker) RedisOption {
	return func(c *RedisCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithOpTimeout bounds each Redis round trip.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:    client,
		ttl:       ttl,
		opTimeout: 300 * time.Millisecond,
		breaker:   circuit.New("template-cache"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Backend() string { return "redis" }

// do runs fn under the breaker and the per-operation timeout.
// Backend errors are reported as sentinel.ErrUnavailable.
func (c *RedisCache) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("template cache %s: breaker open: %w", op, sentinel.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && !errors.Is(err, sentinel.ErrCacheMiss) {
		_, change := c.breaker.RecordFailure()
		if change.Opened {
			c.metrics.SetBreakerOpen(true)
			c.logger.WarnContext(ctx, "template cache breaker opened", "op", op, "error", err)
		}
		return fmt.Errorf("template cache %s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "template cache breaker closed", "op", op)
	}
	return err
}

func (c *RedisCache) GetAll(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	err := c.do(ctx, "get_all", func(ctx context.Context) error {
		members, err := c.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return sentinel.ErrCacheMiss
		}
		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = entryKey(m)
		}
		values, err := c.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		entries = make([]models.Entry, 0, len(values))
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				// an expired entry means the set is no longer complete
				return sentinel.ErrCacheMiss
			}
			var entry models.Entry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				c.logger.WarnContext(ctx, "dropping undecodable template cache entry",
					"key", keys[i],
					"error", err,
				)
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Populate replaces the cached set. Readers may observe a partial set while it runs.
// Entries with malformed templates are logged and left out.
func (c *RedisCache) Populate(ctx context.Context, entries []models.Entry) error {
	payloads := make(map[string][]byte, len(entries))
	for _, e := range entries {
		body, err := encodeEntry(e)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed template cache entry",
				"employee_id", e.EmployeeID,
				"error", err,
			)
			continue
		}
		payloads[e.EmployeeID.String()] = body
	}

	return c.do(ctx, "populate", func(ctx context.Context) error {
		previous, err := c.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return err
		}

		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, member := range previous {
				if _, keep := payloads[member]; !keep {
					pipe.Del(ctx, entryKey(member))
				}
			}
			pipe.Del(ctx, indexKey)
			members := make([]any, 0, len(payloads))
			for member, body := range payloads {
				pipe.Set(ctx, entryKey(member), body, c.ttl)
				members = append(members, member)
			}
			if len(members) > 0 {
				pipe.SAdd(ctx, indexKey, members...)
				pipe.Expire(ctx, indexKey, c.ttl)
			}
			pipe.Set(ctx, lastSyncKey, c.now().UTC().Format(time.RFC3339Nano), c.ttl)
			return nil
		})
		return err
	})
}

func (c *RedisCache) UpsertOne(ctx context.Context, entry models.Entry) error {
	body, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	member := entry.EmployeeID.String()
	return c.do(ctx, "upsert_one", func(ctx context.Context) error {
		return upsertScript.Run(ctx, c.client,
			[]string{indexKey, entryKey(member)},
			body, c.ttl.Milliseconds(), member,
		).Err()
	})
}

func encodeEntry(e models.Entry) ([]byte, error) {
	if err := e.Template.Validate(); err != nil {
		return nil, fmt.Errorf("template cache entry %s: %w", e.EmployeeID, err)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode template cache entry %s: %w", e.EmployeeID, err)
	}
	return body, nil
}

func (c *RedisCache) RemoveOne(ctx context.Context, employeeID id.EmployeeID) error {
	member := employeeID.String()
	return c.do(ctx, "remove_one", func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, indexKey, member)
			pipe.Del(ctx, entryKey(member))
			return nil
		})
		return err
	})
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.do(ctx, "invalidate_all", func(ctx context.Context) error {
		members, err := c.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return err
		}
		keys := []string{indexKey, lastSyncKey}
		for _, m := range members {
			keys = append(keys, entryKey(m))
		}
		return c.client.Del(ctx, keys...).Err()
	})
}

func (c *RedisCache) Stats(ctx context.Context) models.CacheStats {
	stats := models.CacheStats{Backend: c.Backend()}
	err := c.do(ctx, "stats", func(ctx context.Context) error {
		count, err := c.client.SCard(ctx, indexKey).Result()
		if err != nil {
			return err
		}
		stats.EnrolledCount = int(count)
		raw, err := c.client.Get(ctx, lastSyncKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			stats.LastSync = &ts
		}
		return nil
	})
	stats.Available = err == nil
	if !stats.Available {
		stats.EnrolledCount = 0
		stats.LastSync = nil
	}
	return stats
}
