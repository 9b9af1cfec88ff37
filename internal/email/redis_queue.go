package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisQueueKey is the list holding pending email jobs
	DefaultRedisQueueKey = "email:jobs"

	// redisPollInterval bounds how long a worker blocks in BRPOP, so Close
	// and ctx cancellation are noticed promptly
	redisPollInterval = time.Second

	// redisJobTTL matches the lifetime of the single-use tokens the jobs
	// carry. Each push extends it for the whole list.
	redisJobTTL = 24 * time.Hour
)

// RedisQueue keeps jobs in a Redis list (LPUSH / BRPOP). Jobs survive
// restarts and may be consumed by any instance sharing the key. Jobs hold
// plaintext tokens, so the list expires once they would be useless.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.key, payload)
		pipe.Expire(ctx, q.key, redisJobTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue email job: %w", err)
	}

	return nil
}

// Dequeue pops the oldest job. After Close it stops without draining; the
// remaining jobs stay in Redis for the next consumer.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		result, err := q.client.BRPop(ctx, redisPollInterval, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to dequeue email job: %w", err)
		}

		// result is [key, value]
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return Job{}, fmt.Errorf("failed to decode email job: %w", err)
		}
		return job, nil
	}
}

// Close stops the queue. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// Len returns the number of jobs waiting in Redis
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
