package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/policy"
	"distributed-actor-learner/internal/tracing"
)

// Learner consumes trajectories and publishes parameters. Run blocks until
// numUpdates updates have been published or ctx ends.
type Learner interface {
	Run(ctx context.Context, numUpdates int) error
}

type Func func(ctx context.Context, numUpdates int) error

func (f Func) Run(ctx context.Context, numUpdates int) error {
	return f(ctx, numUpdates)
}

type Config struct {
	BatchSize    int
	UnrollLength int
	ActionRepeat int
	Discount     float64
	LearningRate float64
	BaselineRate float64
	MaxAbsReward float64
	PollInterval time.Duration
}

func (c Config) FramesPerIter() int64 {
	return int64(c.ActionRepeat * c.BatchSize * c.UnrollLength)
}

// MaxUpdates is how many updates fit in a budget of environment frames.
func (c Config) MaxUpdates(maxEnvFrames int64) int {
	per := c.FramesPerIter()
	if per <= 0 {
		return 0
	}
	return int(maxEnvFrames / per)
}

func (c *Config) applyDefaults() {
	if c.ActionRepeat <= 0 {
		c.ActionRepeat = 1
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.01
	}
	if c.BaselineRate == 0 {
		c.BaselineRate = c.LearningRate
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Millisecond
	}
}

// PolicyGradient is the built-in learner for the CartPole demo: REINFORCE
// with a linear baseline over batches drained from the ingestion queue.
type PolicyGradient struct {
	cfg        Config
	store      *ParamStore
	queue      buffer.Queue
	weights    policy.Weights
	frameCount int64
	logger     *slog.Logger
	sink       logging.Sink
}

func NewPolicyGradient(cfg Config, store *ParamStore, queue buffer.Queue, initial policy.Weights, logger *slog.Logger, sink logging.Sink) (*PolicyGradient, error) {
	cfg.applyDefaults()
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if cfg.UnrollLength <= 0 {
		return nil, errors.New("unroll length must be > 0")
	}
	if cfg.Discount < 0 || cfg.Discount > 1 {
		return nil, errors.New("discount must be in [0, 1]")
	}
	if _, err := policy.New(initial); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = logging.Discard
	}

	l := &PolicyGradient{
		cfg:        cfg,
		store:      store,
		queue:      queue,
		weights:    initial.Clone(),
		frameCount: store.FrameCount(),
		logger:     logger,
		sink:       sink,
	}
	if err := l.publish(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PolicyGradient) Weights() policy.Weights {
	return l.weights.Clone()
}

func (l *PolicyGradient) publish() error {
	params, err := l.weights.Params()
	if err != nil {
		return err
	}
	return l.store.Publish(Snapshot{FrameCount: l.frameCount, Params: params})
}

func (l *PolicyGradient) Run(ctx context.Context, numUpdates int) error {
	for u := 1; u <= numUpdates; u++ {
		batch, err := l.collect(ctx)
		if err != nil {
			return fmt.Errorf("update %d: %w", u, err)
		}

		_, span := tracing.StartUpdateSpan(ctx, u, l.frameCount)
		result := l.step(batch)
		l.frameCount += l.cfg.FramesPerIter()
		err = l.publish()
		span.End()
		if err != nil {
			return fmt.Errorf("update %d: publish: %w", u, err)
		}

		metrics.LearnerUpdates.Inc()
		l.sink.Write(ctx, map[string]any{
			"update":      u,
			"frame_count": l.frameCount,
			"steps":       result.steps,
			"skipped":     result.skipped,
			"mean_return": result.meanReturn,
			"policy_lag":  result.policyLag,
		})
	}
	return nil
}

// collect polls the queue until a full batch is available.
func (l *PolicyGradient) collect(ctx context.Context) ([]buffer.Item, error) {
	batch := make([]buffer.Item, 0, l.cfg.BatchSize)
	for len(batch) < l.cfg.BatchSize {
		item, err := l.queue.Dequeue(ctx)
		if err == nil {
			batch = append(batch, item)
			continue
		}
		if errors.Is(err, buffer.ErrCorruptItem) {
			metrics.TrajectoriesRejected.WithLabelValues("corrupt").Inc()
			l.logger.Warn("dropping undecodable queue entry", "error", err)
			continue
		}
		if !errors.Is(err, buffer.ErrBufferEmpty) {
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}
	if n, err := l.queue.Size(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
	return batch, nil
}

type stepResult struct {
	steps      int
	skipped    int
	meanReturn float64
	policyLag  float64
}

func (l *PolicyGradient) step(batch []buffer.Item) stepResult {
	p := &policy.Policy{Weights: l.weights}
	actions, obsDim := l.weights.NumActions(), l.weights.ObsDim()

	gradW := make([][]float64, actions)
	for i := range gradW {
		gradW[i] = make([]float64, obsDim)
	}
	gradB := make([]float64, actions)
	gradVW := make([]float64, obsDim)
	var gradVB float64

	var res stepResult
	var returnSum, lagSum float64
	used := 0
	for _, item := range batch {
		steps, err := policy.ParseSteps(item.Trajectory, obsDim, actions)
		if err != nil || steps.Len() == 0 {
			res.skipped++
			l.logger.Warn("skipping trajectory", "actor_id", item.ActorID, "error", err)
			continue
		}
		used++
		lagSum += float64(l.frameCount - item.FrameCount)

		T := steps.Len()
		returns := make([]float64, T)
		// Bootstrap from the value of the last observation.
		next := p.Value(steps.Observations[T-1])
		for t := T - 1; t >= 0; t-- {
			next = l.clip(steps.Rewards[t]) + l.cfg.Discount*steps.Discounts[t]*next
			returns[t] = next
		}
		returnSum += returns[0]

		for t := 0; t < T; t++ {
			s := steps.Observations[t]
			probs := p.Probs(s)
			adv := returns[t] - p.Value(s)
			for k := 0; k < actions; k++ {
				indicator := 0.0
				if k == steps.Actions[t] {
					indicator = 1
				}
				g := (indicator - probs[k]) * adv
				gradB[k] += g
				for j := 0; j < obsDim; j++ {
					gradW[k][j] += g * s[j]
				}
			}
			gradVB += adv
			for j := 0; j < obsDim; j++ {
				gradVW[j] += adv * s[j]
			}
			res.steps++
		}
	}
	if res.steps == 0 {
		return res
	}

	n := float64(res.steps)
	for k := 0; k < actions; k++ {
		l.weights.B[k] += l.cfg.LearningRate * gradB[k] / n
		for j := 0; j < obsDim; j++ {
			l.weights.W[k][j] += l.cfg.LearningRate * gradW[k][j] / n
		}
	}
	l.weights.VB += l.cfg.BaselineRate * gradVB / n
	for j := 0; j < obsDim; j++ {
		l.weights.VW[j] += l.cfg.BaselineRate * gradVW[j] / n
	}

	res.meanReturn = returnSum / float64(used)
	res.policyLag = lagSum / float64(used)
	return res
}

func (l *PolicyGradient) clip(r float64) float64 {
	if l.cfg.MaxAbsReward <= 0 {
		return r
	}
	return math.Max(-l.cfg.MaxAbsReward, math.Min(l.cfg.MaxAbsReward, r))
}
