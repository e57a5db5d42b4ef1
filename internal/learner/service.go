package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/metrics"
)

// Submission is one encoded trajectory handed to the sink. ActorID and
// FrameCount are informational and may be empty.
type Submission struct {
	ActorID    string
	FrameCount int64
	Trajectory []byte
}

type Stats struct {
	FrameCount  int64 `json:"frame_count"`
	QueueLength int   `json:"queue_length"`
	Inserted    int64 `json:"inserted"`
	Rejected    int64 `json:"rejected"`
}

// Service is the learner-side half of the actor/learner protocol: the
// parameter service and the trajectory sink. Transports wrap it.
type Service struct {
	params   *ParamStore
	queue    buffer.Queue
	logger   *slog.Logger
	inserted atomic.Int64
	rejected atomic.Int64
}

func NewService(params *ParamStore, queue buffer.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{params: params, queue: queue, logger: logger}
}

func (s *Service) Params() *ParamStore {
	return s.params
}

func (s *Service) Queue() buffer.Queue {
	return s.queue
}

func (s *Service) GetParams(_ context.Context) (int64, []byte, error) {
	metrics.ParamsRequests.Inc()
	return s.params.Current()
}

// InsertTrajectory decodes the payload and enqueues it. A payload that does
// not decode leaves the queue untouched.
func (s *Service) InsertTrajectory(ctx context.Context, sub Submission) error {
	traj, err := codec.DecodeTrajectory(sub.Trajectory)
	if err != nil {
		s.reject("malformed")
		s.logger.Warn("rejected trajectory", "actor_id", sub.ActorID, "error", err)
		return err
	}

	item := buffer.Item{
		ActorID:    sub.ActorID,
		FrameCount: sub.FrameCount,
		Trajectory: traj,
		Payload:    sub.Trajectory,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		if errors.Is(err, buffer.ErrBufferFull) {
			s.reject("full")
		} else {
			s.reject("error")
		}
		return fmt.Errorf("enqueue trajectory: %w", err)
	}

	s.inserted.Add(1)
	metrics.TrajectoriesInserted.Inc()
	if n, err := s.queue.Size(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
	return nil
}

func (s *Service) reject(reason string) {
	s.rejected.Add(1)
	metrics.TrajectoriesRejected.WithLabelValues(reason).Inc()
}

func (s *Service) Stats(ctx context.Context) Stats {
	n, err := s.queue.Size(ctx)
	if err != nil {
		n = -1
	}
	return Stats{
		FrameCount:  s.params.FrameCount(),
		QueueLength: n,
		Inserted:    s.inserted.Load(),
		Rejected:    s.rejected.Load(),
	}
}
