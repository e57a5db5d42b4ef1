// Package buffer holds the learner's trajectory ingestion queue. Actors push
// through the trajectory sink; the learner drains at its own pace.
package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/nest"
)

var (
	ErrBufferFull  = errors.New("buffer is full")
	ErrBufferEmpty = errors.New("buffer is empty")
	// ErrCorruptItem is returned by Dequeue when a stored entry no longer
	// decodes. The entry has already been removed.
	ErrCorruptItem = errors.New("corrupt queue entry")
)

const (
	PolicyFIFO      = "fifo"
	PolicyFreshness = "freshness"
)

type Item struct {
	ActorID    string
	FrameCount int64
	Trajectory nest.Map
	Payload    []byte
	EnqueuedAt time.Time
}

// Queue never blocks: Enqueue fails with ErrBufferFull and Dequeue with
// ErrBufferEmpty instead of waiting.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

func validPolicy(policy string) error {
	if policy != PolicyFIFO && policy != PolicyFreshness {
		return errors.New("policy must be 'fifo' or 'freshness'")
	}
	return nil
}

// envelope is the at-rest form used by the external backends.
type envelope struct {
	ActorID      string          `json:"actor_id,omitempty"`
	FrameCount   int64           `json:"frame_count"`
	EnqueuedAtMs int64           `json:"enqueued_at_ms"`
	Trajectory   json.RawMessage `json:"trajectory"`
}

func marshalItem(item Item) ([]byte, error) {
	payload := item.Payload
	if len(payload) == 0 {
		var err error
		if payload, err = codec.EncodeTrajectory(item.Trajectory); err != nil {
			return nil, err
		}
	}
	return json.Marshal(envelope{
		ActorID:      item.ActorID,
		FrameCount:   item.FrameCount,
		EnqueuedAtMs: item.EnqueuedAt.UnixMilli(),
		Trajectory:   payload,
	})
}

func unmarshalItem(data []byte) (Item, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Item{}, fmt.Errorf("%w: decode envelope: %w", ErrCorruptItem, err)
	}
	traj, err := codec.DecodeTrajectory(env.Trajectory)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %w", ErrCorruptItem, err)
	}
	return Item{
		ActorID:    env.ActorID,
		FrameCount: env.FrameCount,
		Trajectory: traj,
		Payload:    []byte(env.Trajectory),
		EnqueuedAt: time.UnixMilli(env.EnqueuedAtMs),
	}, nil
}
