package buffer

import (
	"context"
	"fmt"
)

type Config struct {
	Kind     string
	Capacity int
	Policy   string
	Redis    RedisOptions
	DSN      string
}

func New(ctx context.Context, cfg Config) (Queue, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFIFO
	}
	switch cfg.Kind {
	case "", "memory":
		q, err := NewMemoryQueue(cfg.Capacity, cfg.Policy)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "redis":
		opts := cfg.Redis
		opts.Capacity = cfg.Capacity
		opts.Policy = cfg.Policy
		q, err := NewRedisQueue(ctx, opts)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "postgres":
		q, err := NewPostgresQueue(ctx, cfg.DSN, cfg.Capacity, cfg.Policy)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.Kind)
	}
}

// PolicySetter is implemented by backends whose dequeue order can change at
// runtime.
type PolicySetter interface {
	Policy() string
	SetPolicy(policy string) error
}
