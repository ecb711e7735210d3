//go:build integration

package counter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eventpass/internal/ratelimit/store/counter"
	"eventpass/pkg/testutil/containers"
)

type RedisCounterSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *counter.Redis
}

func TestRedisCounterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCounterSuite))
}

func (s *RedisCounterSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = counter.NewRedis(s.redis.Client)
}

func (s *RedisCounterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCounterSuite) TestIncrementSetsExpiryOnce() {
	ctx := context.Background()

	got, err := s.store.Increment(ctx, "rl:test", time.Minute)
	s.Require().NoError(err)
	s.Equal(1, got)

	ttl, err := s.redis.Client.TTL(ctx, "rl:test").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)

	s.Require().NoError(s.redis.Client.Expire(ctx, "rl:test", 10*time.Second).Err())
	got, err = s.store.Increment(ctx, "rl:test", time.Minute)
	s.Require().NoError(err)
	s.Equal(2, got)

	ttl, err = s.redis.Client.TTL(ctx, "rl:test").Result()
	s.Require().NoError(err)
	s.LessOrEqual(ttl, 10*time.Second, "later increments must not extend the window")
}

func (s *RedisCounterSuite) TestConcurrentIncrements() {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Increment(ctx, "rl:concurrent", time.Minute)
			s.NoError(err)
		}()
	}
	wg.Wait()

	n, err := s.redis.Client.Get(ctx, "rl:concurrent").Int()
	s.Require().NoError(err)
	s.Equal(workers, n)
}
