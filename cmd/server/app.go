package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"punchclock/internal/biometric/cache"
	"punchclock/internal/biometric/engine"
	biometricmetrics "punchclock/internal/biometric/metrics"
	biometricservice "punchclock/internal/biometric/service"
	biometricstore "punchclock/internal/biometric/store"
	"punchclock/internal/platform/config"
	"punchclock/internal/platform/kafka"
	"punchclock/internal/platform/logger"
	"punchclock/internal/platform/postgres"
	"punchclock/internal/platform/redis"
	"punchclock/internal/punch/events"
	punchmetrics "punchclock/internal/punch/metrics"
	punchservice "punchclock/internal/punch/service"
	punchstore "punchclock/internal/punch/store"
	"punchclock/internal/schedule/resolver"
	schedulestore "punchclock/internal/schedule/store"
	"punchclock/internal/settings"
	"punchclock/pkg/platform/circuit"
)

const (
	topicPartitions  = 6
	topicReplication = 1
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client
	kafka  *kafka.Producer

	biometric *biometricservice.Service
	schedules *resolver.Resolver
	settings  *settings.Service
	punch     *punchservice.Service
}

// loadConfig reads the environment and builds the process logger.
func loadConfig(envFile string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}

// newApp connects infrastructure and wires services. withEvents enables the
// Kafka producer; one-shot commands skip it.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, withEvents bool) (*app, error) {
	loc, err := cfg.Server.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Server.Timezone, err)
	}

	db, err := postgres.Open(ctx, postgres.OptionsFrom(cfg.Database))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, db: db}

	bMetrics := biometricmetrics.New()
	templateCache, err := a.templateCache(ctx, bMetrics)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	bStore := biometricstore.NewPostgres(db)
	a.biometric, err = biometricservice.New(bStore, templateCache,
		biometricservice.WithLogger(log),
		biometricservice.WithMetrics(bMetrics),
		biometricservice.WithRefreshTimeout(cfg.Biometric.RefreshTimeout),
		biometricservice.WithStoreTimeout(cfg.Biometric.StoreTimeout),
		biometricservice.WithEngine(engine.New(
			engine.WithThreshold(cfg.Biometric.MatchThreshold),
			engine.WithShardSize(cfg.Biometric.ShardSize),
			engine.WithLogger(log),
		)),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.schedules, err = resolver.New(schedulestore.NewPostgres(db),
		resolver.WithLogger(log),
		resolver.WithCacheTTL(cfg.Punch.ScheduleCacheTTL),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.settings, err = settings.New(settings.NewPostgresStore(db), cfg.Punch.ToleranceMinutes,
		settings.WithLogger(log),
		settings.WithCacheTTL(cfg.Punch.SettingsCacheTTL),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	pMetrics := punchmetrics.New()
	var publisher punchservice.EventPublisher = events.NopPublisher{}
	if withEvents {
		publisher, err = a.eventPublisher(ctx, pMetrics)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	a.punch, err = punchservice.New(punchstore.NewPostgres(db, loc), a.biometric, bStore, a.schedules, a.settings,
		punchservice.WithLogger(log),
		punchservice.WithMetrics(pMetrics),
		punchservice.WithPublisher(publisher),
		punchservice.WithLocation(loc),
		punchservice.WithDuplicateCooldown(cfg.Punch.DuplicateCooldown),
		punchservice.WithStoreTimeout(cfg.Punch.StoreTimeout),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// templateCache prefers Redis and falls back to an in-process cache when
// Redis is not configured. An unreachable Redis is still used: the breaker
// and the store fallback keep identification working until it recovers.
func (a *app) templateCache(ctx context.Context, m *biometricmetrics.Metrics) (biometricservice.Cache, error) {
	client, err := redis.New(a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.logger.InfoContext(ctx, "redis not configured, using in-memory template cache")
		return cache.NewInMemory(a.cfg.Biometric.CacheTTL), nil
	}
	a.redis = client
	if err := client.Connect(ctx); err != nil {
		a.logger.WarnContext(ctx, "redis unreachable at startup, identification will read from the store",
			"error", err,
		)
	}
	breaker := circuit.New("template-cache",
		circuit.WithFailureThreshold(a.cfg.Biometric.BreakerThreshold),
		circuit.WithCooldown(a.cfg.Biometric.BreakerCooldown),
	)
	return cache.NewRedis(client.Client, a.cfg.Biometric.CacheTTL,
		cache.WithLogger(a.logger),
		cache.WithMetrics(m),
		cache.WithBreaker(breaker),
		cache.WithOpTimeout(a.cfg.Biometric.CacheOpTimeout),
	), nil
}

// eventPublisher returns a Kafka-backed publisher, or a no-op one when no
// brokers are configured.
func (a *app) eventPublisher(ctx context.Context, m *punchmetrics.Metrics) (punchservice.EventPublisher, error) {
	producer, err := kafka.NewProducer(a.cfg.Kafka, kafka.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if producer == nil {
		a.logger.InfoContext(ctx, "kafka not configured, punch events disabled")
		return events.NopPublisher{}, nil
	}
	a.kafka = producer
	if err := producer.EnsureTopic(ctx, topicPartitions, topicReplication); err != nil {
		a.logger.WarnContext(ctx, "could not ensure punch topic",
			"topic", producer.Topic(),
			"error", err,
		)
	}
	return events.NewKafkaPublisher(producer,
		events.WithLogger(a.logger),
		events.WithDeliveryHook(m.ObserveDelivery),
	), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	if a.biometric != nil {
		a.biometric.Wait()
	}
	var errs []error
	if a.kafka != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.kafka.Close(flushCtx))
		cancel()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.WarnContext(ctx, "error releasing resources", "error", err)
	}
}
