package worker

import (
	"context"
	"fmt"
	"math/rand"

	"distributed-actor-learner/internal/cartpole"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/nest"
	"distributed-actor-learner/internal/policy"
)

type GeneratorConfig struct {
	ActorID         string
	Index           int
	UnrollLength    int
	ActionRepeat    int
	MaxEpisodeSteps int
	Seed            int64
	Sink            logging.Sink
}

// CartPoleGenerator rolls a linear softmax policy through CartPole. The
// environment carries over between unrolls, so an episode can span several
// trajectories; discount 0 marks the step that ended one.
type CartPoleGenerator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	env *cartpole.Env

	episodeReturn float64
	episodeSteps  int
	episodes      int
}

func NewCartPoleGenerator(cfg GeneratorConfig) (*CartPoleGenerator, error) {
	if cfg.UnrollLength <= 0 {
		return nil, fmt.Errorf("unroll length must be > 0, got %d", cfg.UnrollLength)
	}
	if cfg.ActionRepeat <= 0 {
		cfg.ActionRepeat = 1
	}
	if cfg.Sink == nil {
		cfg.Sink = logging.Discard
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &CartPoleGenerator{
		cfg: cfg,
		rng: rng,
		env: cartpole.NewEnv(rng, cfg.MaxEpisodeSteps),
	}, nil
}

// Episodes is the number of episodes finished so far.
func (g *CartPoleGenerator) Episodes() int {
	return g.episodes
}

func (g *CartPoleGenerator) Unroll(ctx context.Context, frameCount int64, params nest.Map) (nest.Map, error) {
	weights, err := policy.FromParams(params)
	if err != nil {
		return nil, err
	}
	if weights.ObsDim() != cartpole.ObsDim || weights.NumActions() != cartpole.NumActions {
		return nil, fmt.Errorf("policy shape [%d,%d] does not fit cartpole [%d,%d]",
			weights.NumActions(), weights.ObsDim(), cartpole.NumActions, cartpole.ObsDim)
	}
	pi, err := policy.New(weights)
	if err != nil {
		return nil, err
	}

	var steps policy.Steps
	for t := 0; t < g.cfg.UnrollLength; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs := g.env.State().Observation()
		action, logProb, value := pi.Action(obs, g.rng)

		reward, done := 0.0, false
		for k := 0; k < g.cfg.ActionRepeat && !done; k++ {
			tr := g.env.Step(action)
			reward += tr.Reward
			done = tr.Done
		}
		discount := 1.0
		if done {
			discount = 0
		}
		steps.Append(obs, action, reward, discount, logProb, value)

		g.episodeReturn += reward
		g.episodeSteps++
		if done {
			g.episodes++
			g.cfg.Sink.Write(ctx, map[string]any{
				"actor_id":       g.cfg.ActorID,
				"frame_count":    frameCount,
				"episode_return": g.episodeReturn,
				"steps":          g.episodeSteps,
			})
			g.episodeReturn, g.episodeSteps = 0, 0
			g.env.Reset()
		}
	}
	return steps.Trajectory(g.cfg.Index, frameCount)
}
