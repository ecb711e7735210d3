package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a counter shared across replicas. INCR and EXPIRE NX run in one
// MULTI/EXEC so a key never outlives its window.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return int(incr.Val()), nil
}
