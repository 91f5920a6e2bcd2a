package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"punchclock/internal/biometric/engine"
	"punchclock/internal/biometric/metrics"
	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/sentinel"
	"punchclock/pkg/requestcontext"
)

// Store is the source of truth for enrolled templates.
type Store interface {
	ListEnrolled(ctx context.Context) ([]models.Entry, error)
	GetEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Identity, error)
	SaveTemplate(ctx context.Context, employeeID id.EmployeeID, template models.Template, at time.Time) (*models.Identity, error)
	ClearTemplate(ctx context.Context, employeeID id.EmployeeID) (*models.Identity, error)
}

// Cache is the best-effort enrolled-set cache. Errors never reach end users.
type Cache interface {
	Backend() string
	GetAll(ctx context.Context) ([]models.Entry, error)
	Populate(ctx context.Context, entries []models.Entry) error
	UpsertOne(ctx context.Context, entry models.Entry) error
	RemoveOne(ctx context.Context, employeeID id.EmployeeID) error
	InvalidateAll(ctx context.Context) error
	Stats(ctx context.Context) models.CacheStats
}

const (
	SourceCache = "cache"
	SourceStore = "store"

	populateKey = "populate"

	maxWarmAttempts = 3
)

// errStaleSnapshot reports a repopulation whose entries predate a later write.
var errStaleSnapshot = errors.New("enrolled set changed while repopulating")

// Identification is the result of matching a probe against the enrolled set.
type Identification struct {
	engine.Result
	Source string
}

// Service resolves faces to employees and keeps the template cache in step with the store.
type Service struct {
	store   Store
	cache   Cache
	engine  *engine.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	storeTimeout   time.Duration
	refreshTimeout time.Duration
	refreshGroup   singleflight.Group
	refreshes      sync.WaitGroup

	// generation advances on every write a stale populate could undo.
	generation atomic.Uint64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEngine(e *engine.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithRefreshTimeout bounds each background repopulation.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithStoreTimeout bounds each read and write against the template store.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(store Store, cache Cache, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("template cache is required")
	}
	svc := &Service{
		store:          store,
		cache:          cache,
		engine:         engine.New(),
		logger:         slog.Default(),
		tracer:         otel.Tracer("punchclock/biometric"),
		storeTimeout:   3 * time.Second,
		refreshTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Identify finds the enrolled employee nearest to probe.
// A malformed probe is rejected before any I/O.
func (s *Service) Identify(ctx context.Context, probe models.Template) (*Identification, error) {
	if err := probe.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "biometric.Identify")
	defer span.End()

	snapshot := s.generation.Load()
	entries, refreshNeeded, err := s.readThrough(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "template store unavailable")
		return nil, storeError(err, "failed to load enrolled templates")
	}
	source := SourceCache
	if refreshNeeded {
		source = SourceStore
		s.scheduleAsyncRefresh(ctx, entries, snapshot, "read_miss")
	}

	start := time.Now()
	res, err := s.engine.FindBestMatchParallel(ctx, probe, entries)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMatch(time.Since(start), res.Compared, res.Match != nil)

	span.SetAttributes(
		attribute.String("biometric.source", source),
		attribute.Int("biometric.candidates", res.Compared),
		attribute.Bool("biometric.matched", res.Match != nil),
	)
	if res.Skipped > 0 {
		s.logger.WarnContext(ctx, "malformed templates skipped during match",
			"skipped", res.Skipped,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	return &Identification{Result: res, Source: source}, nil
}

// readThrough returns the enrolled set from the cache, or from the store with
// refreshNeeded set when the cache missed or was unreachable.
func (s *Service) readThrough(ctx context.Context) ([]models.Entry, bool, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.readThrough")
	defer span.End()

	entries, err := s.cache.GetAll(ctx)
	if err == nil {
		s.metrics.IncCacheRead("hit")
		return entries, false, nil
	}
	if errors.Is(err, sentinel.ErrCacheMiss) {
		s.metrics.IncCacheRead("miss")
	} else {
		s.metrics.IncCacheRead("unavailable")
		s.logger.WarnContext(ctx, "template cache unavailable, reading store",
			"backend", s.cache.Backend(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	span.SetAttributes(attribute.Bool("biometric.cache_fallback", true))

	entries, err = s.listEnrolled(ctx)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (s *Service) listEnrolled(ctx context.Context) ([]models.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.ListEnrolled(ctx)
}

// populateSnapshot writes entries read at generation snapshot. A write that
// lands before or during the populate discards the snapshot instead.
func (s *Service) populateSnapshot(ctx context.Context, entries []models.Entry, snapshot uint64) error {
	if s.generation.Load() != snapshot {
		return errStaleSnapshot
	}
	if err := s.cache.Populate(ctx, entries); err != nil {
		return err
	}
	if s.generation.Load() != snapshot {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			return fmt.Errorf("dropping stale populate: %w", err)
		}
		return errStaleSnapshot
	}
	return nil
}

// scheduleAsyncRefresh populates the cache in the background and returns immediately.
// Concurrent refreshes collapse into one. Failures are logged, not retried:
// the next cold read schedules another.
func (s *Service) scheduleAsyncRefresh(ctx context.Context, entries []models.Entry, snapshot uint64, trigger string) {
	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		_, err, shared := s.refreshGroup.Do(populateKey, func() (any, error) {
			return nil, s.populateSnapshot(ctx, entries, snapshot)
		})
		if shared {
			return
		}
		if errors.Is(err, errStaleSnapshot) {
			s.metrics.IncRepopulation(trigger, "stale")
			s.logger.InfoContext(ctx, "template cache repopulation discarded, enrolled set changed",
				"trigger", trigger,
			)
			return
		}
		if err != nil {
			s.metrics.IncRepopulation(trigger, "error")
			s.logger.WarnContext(ctx, "template cache repopulation failed",
				"trigger", trigger,
				"entries", len(entries),
				"error", err,
			)
			return
		}
		s.metrics.IncRepopulation(trigger, "ok")
		s.logger.InfoContext(ctx, "template cache repopulated",
			"trigger", trigger,
			"entries", len(entries),
		)
	}()
}

// Wait blocks until background repopulations finish. Used on shutdown and in tests.
func (s *Service) Wait() {
	s.refreshes.Wait()
}

// RegisterFaceTemplate stores a new template for the employee, replacing any prior one,
// and refreshes that employee's cache entry.
func (s *Service) RegisterFaceTemplate(ctx context.Context, employeeID id.EmployeeID, template models.Template) (*models.Enrollment, error) {
	if employeeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "employee_id is required")
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.saveTemplate(ctx, employeeID, template)
	if err != nil {
		return nil, storeError(err, "failed to save face template")
	}
	s.generation.Add(1)

	if err := s.cache.UpsertOne(ctx, models.EntryFrom(identity, template)); err != nil {
		s.logger.WarnContext(ctx, "template cache upsert failed, invalidating",
			"employee_id", employeeID,
			"error", err,
		)
		s.invalidateBestEffort(ctx)
	}

	s.logger.InfoContext(ctx, "face template registered",
		"employee_id", employeeID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.EnrollmentFrom(identity), nil
}

// RemoveFaceTemplate deletes the employee's template and their cache entry.
func (s *Service) RemoveFaceTemplate(ctx context.Context, employeeID id.EmployeeID) error {
	if employeeID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "employee_id is required")
	}
	if err := s.clearTemplate(ctx, employeeID); err != nil {
		return storeError(err, "failed to remove face template")
	}
	s.generation.Add(1)
	if err := s.cache.RemoveOne(ctx, employeeID); err != nil {
		s.logger.WarnContext(ctx, "template cache remove failed, invalidating",
			"employee_id", employeeID,
			"error", err,
		)
		s.invalidateBestEffort(ctx)
	}
	s.logger.InfoContext(ctx, "face template removed", "employee_id", employeeID)
	return nil
}

func (s *Service) saveTemplate(ctx context.Context, employeeID id.EmployeeID, template models.Template) (*models.Identity, error) {
	at := requestcontext.Now(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.SaveTemplate(ctx, employeeID, template, at)
}

func (s *Service) clearTemplate(ctx context.Context, employeeID id.EmployeeID) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	_, err := s.store.ClearTemplate(ctx, employeeID)
	return err
}

func (s *Service) invalidateBestEffort(ctx context.Context) {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "template cache invalidation failed; entries may be stale until TTL",
			"error", err,
		)
	}
}

// CacheStats reports cache availability, size and last full sync.
func (s *Service) CacheStats(ctx context.Context) models.CacheStats {
	return s.cache.Stats(ctx)
}

// WarmCache synchronously repopulates the cache from the store. A write that
// races the populate forces a fresh read, up to maxWarmAttempts times.
func (s *Service) WarmCache(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.WarmCache")
	defer span.End()

	var entries []models.Entry
	var err error
	for attempt := 1; ; attempt++ {
		snapshot := s.generation.Load()
		entries, err = s.listEnrolled(ctx)
		if err != nil {
			return 0, storeError(err, "failed to load enrolled templates")
		}
		_, err, _ = s.refreshGroup.Do(populateKey, func() (any, error) {
			return nil, s.populateSnapshot(ctx, entries, snapshot)
		})
		if !errors.Is(err, errStaleSnapshot) || attempt == maxWarmAttempts {
			break
		}
		s.metrics.IncRepopulation("warm", "stale")
	}
	if err != nil {
		s.metrics.IncRepopulation("warm", "error")
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "template cache unavailable")
	}
	s.metrics.IncRepopulation("warm", "ok")
	s.logger.InfoContext(ctx, "template cache warmed", "entries", len(entries))
	return len(entries), nil
}

// InvalidateCache drops the whole cached set; the next read repopulates it.
func (s *Service) InvalidateCache(ctx context.Context) error {
	s.generation.Add(1)
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "template cache unavailable")
	}
	s.logger.InfoContext(ctx, "template cache invalidated")
	return nil
}

// storeError maps store failures onto domain codes. Anything that is not a
// known fact about the data is treated as retryable.
func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "employee not found")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}
