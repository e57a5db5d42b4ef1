package buffer

import (
	"context"
	"errors"
	"sync"
)

type MemoryQueue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	policy   string // "fifo" or "freshness"
}

func NewMemoryQueue(capacity int, policy string) (*MemoryQueue, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than zero")
	}
	if err := validPolicy(policy); err != nil {
		return nil, err
	}
	return &MemoryQueue{
		items:    make([]Item, 0, min(capacity, 1024)),
		capacity: capacity,
		policy:   policy,
	}, nil
}

func (q *MemoryQueue) Enqueue(_ context.Context, item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return ErrBufferFull
	}
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, ErrBufferEmpty
	}

	switch q.policy {
	case PolicyFreshness:
		item := q.items[len(q.items)-1]
		q.items[len(q.items)-1] = Item{}
		q.items = q.items[:len(q.items)-1]
		return item, nil
	default:
		item := q.items[0]
		q.items[0] = Item{}
		q.items = q.items[1:]
		return item, nil
	}
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	return q.Len(), nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *MemoryQueue) Capacity() int {
	return q.capacity
}

func (q *MemoryQueue) Policy() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.policy
}

func (q *MemoryQueue) SetPolicy(policy string) error {
	if err := validPolicy(policy); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.policy = policy
	return nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
