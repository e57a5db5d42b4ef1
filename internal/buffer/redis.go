package buffer

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Capacity int
	Policy   string
}

// RedisQueue keeps items in a Redis list: LPUSH on enqueue, RPOP (fifo) or
// LPOP (freshness) on dequeue. Capacity is checked with LLEN before the push,
// so concurrent writers can overshoot it by at most their number.
type RedisQueue struct {
	client   *redis.Client
	key      string
	capacity int
	policy   string
}

func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if opts.Key == "" {
		opts.Key = "actorlearner:trajectories"
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFIFO
	}
	if err := validPolicy(opts.Policy); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisQueue{client: client, key: opts.Key, capacity: opts.Capacity, policy: opts.Policy}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, item Item) error {
	if q.capacity > 0 {
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return err
		}
		if n >= int64(q.capacity) {
			return ErrBufferFull
		}
	}
	data, err := marshalItem(item)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Item, error) {
	var cmd *redis.StringCmd
	if q.policy == PolicyFreshness {
		cmd = q.client.LPop(ctx, q.key)
	} else {
		cmd = q.client.RPop(ctx, q.key)
	}
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, ErrBufferEmpty
	}
	if err != nil {
		return Item{}, err
	}
	return unmarshalItem(data)
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
