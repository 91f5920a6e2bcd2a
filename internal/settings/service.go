// Package settings exposes the runtime settings the punch path depends on.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"punchclock/pkg/platform/readcache"
	"punchclock/pkg/platform/sentinel"
)

// KeyToleranceMinutes holds the punch tolerance window in whole minutes.
const KeyToleranceMinutes = "punch.tolerance_minutes"

// Store reads raw setting values.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Service reads typed settings through a short-lived read-through cache.
// Missing, malformed or unreadable values fall back to configured defaults.
type Service struct {
	store            Store
	cache            *readcache.Cache[int]
	defaultTolerance int
	logger           *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = readcache.New[int](ttl)
		}
	}
}

func New(store Store, defaultTolerance int, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if defaultTolerance < 0 {
		return nil, fmt.Errorf("default tolerance must not be negative")
	}
	svc := &Service{
		store:            store,
		cache:            readcache.New[int](time.Minute),
		defaultTolerance: defaultTolerance,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ToleranceMinutes returns the current punch tolerance. It never fails; read
// errors are logged and the configured default is used without caching it.
func (s *Service) ToleranceMinutes(ctx context.Context) int {
	v, err := s.cache.GetOrLoad(ctx, KeyToleranceMinutes, s.loadTolerance)
	if err != nil {
		s.logger.WarnContext(ctx, "tolerance setting unreadable, using default",
			"default", s.defaultTolerance,
			"error", err,
		)
		return s.defaultTolerance
	}
	return v
}

func (s *Service) loadTolerance(ctx context.Context) (int, error) {
	raw, err := s.store.Get(ctx, KeyToleranceMinutes)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.defaultTolerance, nil
	}
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 0 {
		s.logger.WarnContext(ctx, "malformed tolerance setting, using default",
			"value", raw,
			"default", s.defaultTolerance,
		)
		return s.defaultTolerance, nil
	}
	return minutes, nil
}

// Invalidate forgets cached values so the next read hits the store.
func (s *Service) Invalidate() int {
	return s.cache.InvalidatePrefix("")
}

func (s *Service) CacheStats() readcache.Stats {
	return s.cache.Stats()
}
