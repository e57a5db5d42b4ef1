// Package worker runs one actor: fetch parameters, roll out, submit, repeat.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/nest"
	"distributed-actor-learner/internal/tracing"
	"distributed-actor-learner/internal/transport"
)

var ErrRolloutFailure = errors.New("rollout failed")

type State int32

const (
	Idle State = iota
	Fetching
	RollingOut
	Submitting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case RollingOut:
		return "rolling_out"
	case Submitting:
		return "submitting"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StopSignal is shared by every runner of a pool. It is written once and
// polled at the top of each fetch.
type StopSignal struct {
	stopped atomic.Bool
}

func (s *StopSignal) Stop() {
	s.stopped.Store(true)
}

func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}

// Client is the learner as seen by a runner. Both the in-process
// learner.Service and the transport clients satisfy it.
type Client interface {
	GetParams(ctx context.Context) (int64, []byte, error)
	InsertTrajectory(ctx context.Context, sub learner.Submission) error
}

// RolloutGenerator produces one trajectory from a parameter snapshot.
type RolloutGenerator interface {
	Unroll(ctx context.Context, frameCount int64, params nest.Map) (nest.Map, error)
}

type Runner struct {
	ID        string
	Client    Client
	Generator RolloutGenerator
	Stop      *StopSignal

	// RPCTimeout bounds each GetParams and InsertTrajectory call. Zero means
	// the call is bounded only by ctx.
	RPCTimeout time.Duration
	// Limiter, when set, throttles iterations.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Sink    logging.Sink

	state      atomic.Int32
	iterations atomic.Int64
	lastFrame  int64
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

// Iterations is the number of trajectories this runner submitted.
func (r *Runner) Iterations() int64 {
	return r.iterations.Load()
}

// Run loops until the stop signal or ctx is observed at the top of a fetch.
// Any failure ends the loop and is returned wrapped with the step that
// failed; nothing is retried.
func (r *Runner) Run(ctx context.Context) error {
	if r.Client == nil || r.Generator == nil || r.Stop == nil {
		return errors.New("worker: client, generator and stop signal are required")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("actor_id", r.ID)
	sink := r.Sink
	if sink == nil {
		sink = logging.Discard
	}
	defer r.state.Store(int32(Stopped))

	logger.Info("actor started")
	for {
		r.state.Store(int32(Fetching))
		if r.Stop.Stopped() || ctx.Err() != nil {
			logger.Info("actor stopped", "iterations", r.iterations.Load())
			return nil
		}
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return r.fail(logger, "throttle", err)
			}
		}
		if err := r.iterate(ctx, logger, sink); err != nil {
			return err
		}
	}
}

func (r *Runner) iterate(ctx context.Context, logger *slog.Logger, sink logging.Sink) error {
	iteration := r.iterations.Load()
	ctx, span := tracing.StartIterationSpan(ctx, r.ID, iteration)
	defer span.End()

	frameCount, payload, err := r.fetch(ctx)
	if err != nil {
		return r.fail(logger, "fetch", err)
	}
	params, err := codec.DecodeSnapshot(payload)
	if err != nil {
		return r.fail(logger, "fetch", err)
	}
	if iteration > 0 && frameCount < r.lastFrame {
		metrics.ParamsRegressions.Inc()
		logger.Warn("frame count regressed", "previous", r.lastFrame, "frame_count", frameCount)
	}
	r.lastFrame = frameCount

	r.state.Store(int32(RollingOut))
	start := time.Now()
	traj, err := r.Generator.Unroll(ctx, frameCount, params)
	metrics.RolloutDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return r.fail(logger, "rollout", fmt.Errorf("%w: %w", ErrRolloutFailure, err))
	}

	r.state.Store(int32(Submitting))
	encoded, err := codec.EncodeTrajectory(traj)
	if err != nil {
		return r.fail(logger, "submit", err)
	}
	if err := r.submit(ctx, learner.Submission{ActorID: r.ID, FrameCount: frameCount, Trajectory: encoded}); err != nil {
		return r.fail(logger, "submit", err)
	}

	r.iterations.Add(1)
	metrics.ActorIterations.WithLabelValues(r.ID).Inc()
	steps, _ := codec.UnrollLength(traj)
	sink.Write(ctx, map[string]any{
		"actor_id":    r.ID,
		"frame_count": frameCount,
		"iteration":   iteration,
		"steps":       steps,
	})
	return nil
}

func (r *Runner) fetch(ctx context.Context) (int64, []byte, error) {
	if r.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.RPCTimeout)
		defer cancel()
	}
	return r.Client.GetParams(ctx)
}

func (r *Runner) submit(ctx context.Context, sub learner.Submission) error {
	if r.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.RPCTimeout)
		defer cancel()
	}
	return r.Client.InsertTrajectory(ctx, sub)
}

func (r *Runner) fail(logger *slog.Logger, step string, err error) error {
	kind := failureKind(err)
	metrics.ActorFailures.WithLabelValues(kind).Inc()
	logger.Error("actor failed", "step", step, "kind", kind, "error", err)
	return fmt.Errorf("%s: %w", step, err)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, transport.ErrTransportUnavailable):
		return "transport"
	case errors.Is(err, transport.ErrMessageTooLarge):
		return "message_size"
	case errors.Is(err, codec.ErrMalformedSnapshot):
		return "snapshot"
	case errors.Is(err, codec.ErrMalformedTrajectory):
		return "trajectory"
	case errors.Is(err, ErrRolloutFailure):
		return "rollout"
	}
	return "other"
}
