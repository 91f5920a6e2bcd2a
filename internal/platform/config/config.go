package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration assembled from the environment.
type Config struct {
	Server    Server
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Biometric BiometricConfig
	Punch     PunchConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	Timezone        string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the template cache backend. An empty URL disables Redis
// and the service falls back to an in-process cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures punch event publishing. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// BiometricConfig tunes matching and the template cache.
type BiometricConfig struct {
	MatchThreshold   float64
	ShardSize        int
	CacheTTL         time.Duration
	CacheOpTimeout   time.Duration
	WarmUpInterval   time.Duration
	RefreshTimeout   time.Duration
	StoreTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// PunchConfig tunes punch validation.
type PunchConfig struct {
	ToleranceMinutes  int
	DuplicateCooldown time.Duration
	SettingsCacheTTL  time.Duration
	ScheduleCacheTTL  time.Duration
	StoreTimeout      time.Duration
}

const (
	DefaultMatchThreshold    = 0.6
	DefaultToleranceMinutes  = 5
	DefaultDuplicateCooldown = time.Minute
)

// Load reads an optional .env file then builds the configuration from the environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Server: Server{
			Addr:            p.str("PUNCHCLOCK_ADDR", ":8080"),
			JWTSigningKey:   p.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Timezone:        p.str("PUNCHCLOCK_TIMEZONE", "UTC"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             p.str("DATABASE_URL", ""),
			MaxOpenConns:    p.integer("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    p.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Kafka: KafkaConfig{
			Brokers: p.list("KAFKA_BROKERS"),
			Topic:   p.str("KAFKA_PUNCH_TOPIC", "punch.recorded"),
		},
		Biometric: BiometricConfig{
			MatchThreshold:   p.float("BIOMETRIC_MATCH_THRESHOLD", DefaultMatchThreshold),
			ShardSize:        p.integer("BIOMETRIC_SHARD_SIZE", 2048),
			CacheTTL:         p.duration("BIOMETRIC_CACHE_TTL", time.Hour),
			CacheOpTimeout:   p.duration("BIOMETRIC_CACHE_OP_TIMEOUT", 300*time.Millisecond),
			WarmUpInterval:   p.duration("BIOMETRIC_WARMUP_INTERVAL", 0),
			RefreshTimeout:   p.duration("BIOMETRIC_REFRESH_TIMEOUT", 10*time.Second),
			StoreTimeout:     p.duration("BIOMETRIC_STORE_TIMEOUT", 3*time.Second),
			BreakerThreshold: p.integer("BIOMETRIC_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  p.duration("BIOMETRIC_BREAKER_COOLDOWN", 30*time.Second),
		},
		Punch: PunchConfig{
			ToleranceMinutes:  p.integer("PUNCH_TOLERANCE_MINUTES", DefaultToleranceMinutes),
			DuplicateCooldown: p.duration("PUNCH_DUPLICATE_COOLDOWN", DefaultDuplicateCooldown),
			SettingsCacheTTL:  p.duration("PUNCH_SETTINGS_CACHE_TTL", time.Minute),
			ScheduleCacheTTL:  p.duration("PUNCH_SCHEDULE_CACHE_TTL", time.Minute),
			StoreTimeout:      p.duration("PUNCH_STORE_TIMEOUT", 3*time.Second),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves the configured timezone used to compute punch dates.
func (s Server) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (c Config) validate() error {
	if c.Biometric.MatchThreshold <= 0 {
		return fmt.Errorf("BIOMETRIC_MATCH_THRESHOLD must be positive, got %v", c.Biometric.MatchThreshold)
	}
	if c.Biometric.ShardSize <= 0 {
		return fmt.Errorf("BIOMETRIC_SHARD_SIZE must be positive, got %d", c.Biometric.ShardSize)
	}
	if c.Biometric.CacheTTL <= 0 {
		return fmt.Errorf("BIOMETRIC_CACHE_TTL must be positive, got %s", c.Biometric.CacheTTL)
	}
	if c.Punch.ToleranceMinutes < 0 {
		return fmt.Errorf("PUNCH_TOLERANCE_MINUTES must not be negative, got %d", c.Punch.ToleranceMinutes)
	}
	if c.Punch.DuplicateCooldown < 0 {
		return fmt.Errorf("PUNCH_DUPLICATE_COOLDOWN must not be negative, got %s", c.Punch.DuplicateCooldown)
	}
	if _, err := c.Server.Location(); err != nil {
		return fmt.Errorf("PUNCHCLOCK_TIMEZONE: %w", err)
	}
	return nil
}

// parser keeps the first conversion error so FromEnv reads as a flat list.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) list(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
