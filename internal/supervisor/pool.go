// Package supervisor runs a pool of actors next to a learner and drains the
// pool when the learner is done.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/worker"
)

// RunnerFactory builds the i-th actor. Every runner must use stop as its
// stop signal.
type RunnerFactory func(i int, stop *worker.StopSignal) (*worker.Runner, error)

type Pool struct {
	NumActors  int
	NewRunner  RunnerFactory
	Learner    learner.Learner
	NumUpdates int
	Logger     *slog.Logger
}

type ActorReport struct {
	ID         string
	Iterations int64
	Err        error
}

type Report struct {
	Actors   []ActorReport
	Duration time.Duration
}

// Failed returns the reports of actors that ended with an error.
func (r Report) Failed() []ActorReport {
	var out []ActorReport
	for _, a := range r.Actors {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Run starts the actors, runs the learner on the calling goroutine, then
// raises the stop signal and waits for every actor to return. Actor errors
// are reported but never stop the learner or other actors; the returned
// error is the learner's.
func (p *Pool) Run(ctx context.Context) (Report, error) {
	if p.Learner == nil {
		return Report{}, errors.New("supervisor: learner is required")
	}
	return p.run(ctx, func(ctx context.Context) error {
		p.logger().Info("learner started", "num_updates", p.NumUpdates)
		err := p.Learner.Run(ctx, p.NumUpdates)
		if err != nil {
			p.logger().Error("learner failed", "error", err)
		} else {
			p.logger().Info("learner finished", "num_updates", p.NumUpdates)
		}
		return err
	})
}

// RunActors starts the actors and stops them once ctx is cancelled. It is
// used when the learner lives in another process.
func (p *Pool) RunActors(ctx context.Context) (Report, error) {
	return p.run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
}

func (p *Pool) run(ctx context.Context, main func(context.Context) error) (Report, error) {
	if p.NumActors < 1 {
		return Report{}, fmt.Errorf("supervisor: num actors must be >= 1, got %d", p.NumActors)
	}
	if p.NewRunner == nil {
		return Report{}, errors.New("supervisor: runner factory is required")
	}
	logger := p.logger()

	stop := &worker.StopSignal{}
	runners := make([]*worker.Runner, p.NumActors)
	for i := range runners {
		r, err := p.NewRunner(i, stop)
		if err != nil {
			return Report{}, fmt.Errorf("build actor %d: %w", i, err)
		}
		if r.Stop != stop {
			return Report{}, fmt.Errorf("build actor %d: runner does not use the pool stop signal", i)
		}
		runners[i] = r
	}

	start := time.Now()
	report := Report{Actors: make([]ActorReport, len(runners))}
	// Actors stop through the signal only; cancelling ctx must not cut an
	// RPC or rollout short.
	actorCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(i int, r *worker.Runner) {
			defer wg.Done()
			err := r.Run(actorCtx)
			if err != nil {
				logger.Error("actor exited with error", "actor_id", r.ID, "error", err)
			}
			report.Actors[i] = ActorReport{ID: r.ID, Iterations: r.Iterations(), Err: err}
		}(i, r)
	}
	logger.Info("actors started", "num_actors", len(runners))

	err := main(ctx)

	stop.Stop()
	wg.Wait()
	report.Duration = time.Since(start)
	logger.Info("actors stopped", "num_actors", len(runners), "failed", len(report.Failed()))
	return report, err
}

func (p *Pool) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
