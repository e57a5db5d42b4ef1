package learner

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/nest"
)

var (
	ErrNoSnapshot          = errors.New("no parameters published yet")
	ErrFrameCountRegressed = errors.New("frame count went backwards")
	ErrFrameCountConflict  = errors.New("frame count already published with different parameters")
)

type Snapshot struct {
	FrameCount int64
	Params     nest.Map
}

type published struct {
	frameCount int64
	payload    []byte
}

// ParamStore holds the latest published snapshot in encoded form. Readers
// load a pointer to an immutable record and never take a lock.
type ParamStore struct {
	mu      sync.Mutex // serializes publishers only
	current atomic.Pointer[published]
}

func NewParamStore() *ParamStore {
	return &ParamStore{}
}

func (s *ParamStore) Publish(snap Snapshot) error {
	payload, err := codec.EncodeSnapshot(snap.Params)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil {
		switch {
		case snap.FrameCount < cur.frameCount:
			return fmt.Errorf("%w: %d < %d", ErrFrameCountRegressed, snap.FrameCount, cur.frameCount)
		case snap.FrameCount == cur.frameCount:
			if bytes.Equal(payload, cur.payload) {
				return nil
			}
			return fmt.Errorf("%w: %d", ErrFrameCountConflict, snap.FrameCount)
		}
	}
	s.current.Store(&published{frameCount: snap.FrameCount, payload: payload})
	metrics.LearnerFrameCount.Set(float64(snap.FrameCount))
	return nil
}

// Current returns the latest frame count and encoded parameters. The payload
// is shared and must not be modified.
func (s *ParamStore) Current() (int64, []byte, error) {
	cur := s.current.Load()
	if cur == nil {
		return 0, nil, ErrNoSnapshot
	}
	return cur.frameCount, cur.payload, nil
}

func (s *ParamStore) FrameCount() int64 {
	if cur := s.current.Load(); cur != nil {
		return cur.frameCount
	}
	return 0
}

// Snapshot decodes the current payload into a fresh tree.
func (s *ParamStore) Snapshot() (Snapshot, error) {
	frameCount, payload, err := s.Current()
	if err != nil {
		return Snapshot{}, err
	}
	params, err := codec.DecodeSnapshot(payload)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{FrameCount: frameCount, Params: params}, nil
}
