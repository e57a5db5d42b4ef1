package policy

import (
	"fmt"

	"distributed-actor-learner/internal/nest"
)

// Trajectory field names produced by the CartPole rollout generator.
const (
	FieldObservation = "observation"
	FieldAction      = "action"
	FieldReward      = "reward"
	FieldDiscount    = "discount"
	FieldLogProb     = "log_prob"
	FieldValue       = "value"
	FieldActorIndex  = "actor_index"
	FieldFrameCount  = "frame_count"
)

// Steps is the column-wise form of one unroll. Discount is 0 on the step that
// ended an episode and 1 otherwise.
type Steps struct {
	Observations [][]float64
	Actions      []int
	Rewards      []float64
	Discounts    []float64
	LogProbs     []float64
	Values       []float64
}

func (s *Steps) Append(obs []float64, action int, reward, discount, logProb, value float64) {
	s.Observations = append(s.Observations, obs)
	s.Actions = append(s.Actions, action)
	s.Rewards = append(s.Rewards, reward)
	s.Discounts = append(s.Discounts, discount)
	s.LogProbs = append(s.LogProbs, logProb)
	s.Values = append(s.Values, value)
}

func (s *Steps) Len() int {
	return len(s.Actions)
}

// Trajectory packs the steps plus per-unroll metadata into a tree.
func (s *Steps) Trajectory(actorIndex int, frameCount int64) (nest.Map, error) {
	obs, err := nest.Matrix(s.Observations)
	if err != nil {
		return nil, err
	}
	actions := make([]float64, len(s.Actions))
	for i, a := range s.Actions {
		actions[i] = float64(a)
	}
	act, err := nest.NewTensor(nest.Int64, []int{len(actions)}, actions)
	if err != nil {
		return nil, err
	}
	return nest.Map{
		FieldObservation: obs,
		FieldAction:      act,
		FieldReward:      nest.Vector(s.Rewards...),
		FieldDiscount:    nest.Vector(s.Discounts...),
		FieldLogProb:     nest.Vector(s.LogProbs...),
		FieldValue:       nest.Vector(s.Values...),
		FieldActorIndex:  nest.IntScalar(int64(actorIndex)),
		FieldFrameCount:  nest.IntScalar(frameCount),
	}, nil
}

// ParseSteps extracts the fields the learner needs. Log-probs and values are
// optional.
func ParseSteps(traj nest.Map, obsDim, numActions int) (Steps, error) {
	obs, ok := traj.Tensor(FieldObservation)
	if !ok || obs.Rank() != 2 || obs.Shape[1] != obsDim {
		return Steps{}, fmt.Errorf("%s must be [T,%d]", FieldObservation, obsDim)
	}
	T := obs.Shape[0]
	vec := func(name string) ([]float64, error) {
		t, ok := traj.Tensor(name)
		if !ok || t.Rank() != 1 || t.Shape[0] != T {
			return nil, fmt.Errorf("%s must be [%d]", name, T)
		}
		return t.Data, nil
	}

	actions, err := vec(FieldAction)
	if err != nil {
		return Steps{}, err
	}
	rewards, err := vec(FieldReward)
	if err != nil {
		return Steps{}, err
	}
	discounts, err := vec(FieldDiscount)
	if err != nil {
		return Steps{}, err
	}

	steps := Steps{
		Observations: make([][]float64, T),
		Actions:      make([]int, T),
		Rewards:      rewards,
		Discounts:    discounts,
	}
	for i := 0; i < T; i++ {
		steps.Observations[i] = obs.Row(i)
		a := int(actions[i])
		if a < 0 || a >= numActions {
			return Steps{}, fmt.Errorf("action %d out of range at step %d", a, i)
		}
		steps.Actions[i] = a
	}
	if lp, err := vec(FieldLogProb); err == nil {
		steps.LogProbs = lp
	}
	if v, err := vec(FieldValue); err == nil {
		steps.Values = v
	}
	return steps, nil
}
