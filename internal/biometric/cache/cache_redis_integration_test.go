//go:build integration

package cache_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"punchclock/internal/biometric/cache"
	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/circuit"
	"punchclock/pkg/platform/sentinel"
	"punchclock/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = cache.NewRedis(s.redis.Client.Client, time.Hour, cache.WithOpTimeout(2*time.Second))
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func entry(name string, v float64) models.Entry {
	tpl := make(models.Template, models.TemplateSize)
	for i := range tpl {
		tpl[i] = v
	}
	return models.Entry{EmployeeID: id.EmployeeID(uuid.New()), Name: name, NationalID: name + "-id", Active: true, Template: tpl}
}

func (s *RedisCacheSuite) TestPopulateAndGetAll() {
	ctx := context.Background()
	set := []models.Entry{entry("a", 0.1), entry("b", 0.2), entry("c", 0.3)}

	_, err := s.cache.GetAll(ctx)
	s.ErrorIs(err, sentinel.ErrCacheMiss)

	s.Require().NoError(s.cache.Populate(ctx, set))
	s.Require().NoError(s.cache.Populate(ctx, set))

	got, err := s.cache.GetAll(ctx)
	s.Require().NoError(err)
	s.ElementsMatch(set, got)

	keys, err := s.redis.Keys(ctx, "faces:entry:*")
	s.Require().NoError(err)
	s.Len(keys, 3)

	stats := s.cache.Stats(ctx)
	s.True(stats.Available)
	s.Equal(3, stats.EnrolledCount)
	s.NotNil(stats.LastSync)
}

func (s *RedisCacheSuite) TestPopulatePrunesRemovedMembers() {
	ctx := context.Background()
	a, b := entry("a", 0.1), entry("b", 0.2)
	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{a, b}))
	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{a}))

	got, err := s.cache.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(a.EmployeeID, got[0].EmployeeID)

	keys, err := s.redis.Keys(ctx, "faces:entry:*")
	s.Require().NoError(err)
	s.Len(keys, 1, "stale entry keys are deleted")
}

func (s *RedisCacheSuite) TestPopulateSkipsMalformedEntries() {
	ctx := context.Background()
	good := entry("good", 0.1)
	nan := entry("nan", 0.2)
	nan.Template[7] = math.NaN()
	inf := entry("inf", 0.3)
	inf.Template[0] = math.Inf(1)

	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{good, nan, inf}))

	got, err := s.cache.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(good.EmployeeID, got[0].EmployeeID)
	s.Equal(1, s.cache.Stats(ctx).EnrolledCount)

	s.Error(s.cache.UpsertOne(ctx, nan), "a malformed single entry is still reported")
}

func (s *RedisCacheSuite) TestUpsertRequiresIndex() {
	ctx := context.Background()
	lone := entry("lone", 0.4)
	s.Require().NoError(s.cache.UpsertOne(ctx, lone))
	_, err := s.cache.GetAll(ctx)
	s.ErrorIs(err, sentinel.ErrCacheMiss, "a single upsert must not look like a full enrolled set")

	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{entry("a", 0.1)}))
	s.Require().NoError(s.cache.UpsertOne(ctx, lone))
	got, err := s.cache.GetAll(ctx)
	s.Require().NoError(err)
	s.Len(got, 2)

	s.Require().NoError(s.cache.RemoveOne(ctx, lone.EmployeeID))
	got, err = s.cache.GetAll(ctx)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *RedisCacheSuite) TestExpiredEntryTurnsReadIntoMiss() {
	ctx := context.Background()
	a, b := entry("a", 0.1), entry("b", 0.2)
	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{a, b}))
	s.Require().NoError(s.redis.Client.Del(ctx, "faces:entry:"+b.EmployeeID.String()).Err())

	_, err := s.cache.GetAll(ctx)
	s.ErrorIs(err, sentinel.ErrCacheMiss)
}

func (s *RedisCacheSuite) TestInvalidateAll() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Populate(ctx, []models.Entry{entry("a", 0.1)}))
	s.Require().NoError(s.cache.InvalidateAll(ctx))

	keys, err := s.redis.Keys(ctx, "faces:*")
	s.Require().NoError(err)
	s.Empty(keys)
	s.Nil(s.cache.Stats(ctx).LastSync)
}

func (s *RedisCacheSuite) TestUnreachableBackendIsUnavailable() {
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer dead.Close()
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := cache.NewRedis(dead, time.Hour, cache.WithBreaker(breaker), cache.WithOpTimeout(100*time.Millisecond))

	ctx := context.Background()
	for range 2 {
		_, err := c.GetAll(ctx)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	}
	s.True(breaker.IsOpen())

	_, err := c.GetAll(ctx)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.False(c.Stats(ctx).Available)
}

func (s *RedisCacheSuite) TestClientAvailability() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Health(ctx))
	s.True(s.redis.Client.IsAvailable())
	s.True(s.cache.Stats(ctx).Available)
}
