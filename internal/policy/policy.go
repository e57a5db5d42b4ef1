package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"distributed-actor-learner/internal/nest"
)

// Weights of a linear softmax policy with a linear value baseline.
type Weights struct {
	W  [][]float64 // shape: [actions][obs]
	B  []float64   // shape: [actions]
	VW []float64   // shape: [obs]
	VB float64
}

func DefaultWeights() Weights {
	return Weights{
		W: [][]float64{
			{0.01, 0.01, 0.01, 0.01},
			{-0.01, -0.01, -0.01, -0.01},
		},
		B:  []float64{0, 0},
		VW: []float64{0, 0, 0, 0},
		VB: 0,
	}
}

func (w Weights) NumActions() int {
	return len(w.W)
}

func (w Weights) ObsDim() int {
	return len(w.VW)
}

func (w Weights) Clone() Weights {
	out := Weights{
		W:  make([][]float64, len(w.W)),
		B:  append([]float64(nil), w.B...),
		VW: append([]float64(nil), w.VW...),
		VB: w.VB,
	}
	for i, row := range w.W {
		out.W[i] = append([]float64(nil), row...)
	}
	return out
}

// Params lays the weights out as the parameter tree served to actors:
// {"policy": {"w", "b"}, "baseline": {"w", "b"}}.
func (w Weights) Params() (nest.Map, error) {
	pw, err := nest.Matrix(w.W)
	if err != nil {
		return nil, err
	}
	return nest.Map{
		"policy": nest.Map{
			"w": pw,
			"b": nest.Vector(w.B...),
		},
		"baseline": nest.Map{
			"w": nest.Vector(w.VW...),
			"b": nest.Scalar(w.VB),
		},
	}, nil
}

func FromParams(params nest.Map) (Weights, error) {
	pw, err := tensorAt(params, 2, "policy", "w")
	if err != nil {
		return Weights{}, err
	}
	pb, err := tensorAt(params, 1, "policy", "b")
	if err != nil {
		return Weights{}, err
	}
	vw, err := tensorAt(params, 1, "baseline", "w")
	if err != nil {
		return Weights{}, err
	}
	vb, err := tensorAt(params, 0, "baseline", "b")
	if err != nil {
		return Weights{}, err
	}

	actions, obs := pw.Shape[0], pw.Shape[1]
	if actions == 0 || pb.Shape[0] != actions || vw.Shape[0] != obs {
		return Weights{}, fmt.Errorf("inconsistent shapes: policy.w %v policy.b %v baseline.w %v", pw.Shape, pb.Shape, vw.Shape)
	}

	w := Weights{
		W:  make([][]float64, actions),
		B:  append([]float64(nil), pb.Data...),
		VW: append([]float64(nil), vw.Data...),
		VB: vb.Data[0],
	}
	for i := range w.W {
		w.W[i] = append([]float64(nil), pw.Row(i)...)
	}
	return w, nil
}

func tensorAt(params nest.Map, rank int, path ...string) (*nest.Tensor, error) {
	v, ok := params.Lookup(path...)
	if !ok {
		return nil, fmt.Errorf("missing parameter %v", path)
	}
	t, ok := v.(*nest.Tensor)
	if !ok {
		return nil, fmt.Errorf("parameter %v is not an array", path)
	}
	if t.Rank() != rank {
		return nil, fmt.Errorf("parameter %v has rank %d, want %d", path, t.Rank(), rank)
	}
	return t, nil
}

type Policy struct {
	Weights Weights
}

func New(weights Weights) (*Policy, error) {
	if weights.NumActions() == 0 {
		return nil, errors.New("policy needs at least one action")
	}
	if len(weights.B) != weights.NumActions() {
		return nil, fmt.Errorf("policy has %d biases for %d actions", len(weights.B), weights.NumActions())
	}
	for i, row := range weights.W {
		if len(row) != weights.ObsDim() {
			return nil, fmt.Errorf("policy row %d has %d inputs, baseline has %d", i, len(row), weights.ObsDim())
		}
	}
	return &Policy{Weights: weights}, nil
}

// Action returns chosen action, log-probability, and value estimate
func (p *Policy) Action(state []float64, rng *rand.Rand) (int, float64, float64) {
	probs := p.Probs(state)
	choice := sampleCategorical(probs, rng)
	logProb := math.Log(probs[choice] + 1e-8)
	return choice, logProb, p.Value(state)
}

func (p *Policy) Probs(state []float64) []float64 {
	logits := make([]float64, p.Weights.NumActions())
	for i := range logits {
		logits[i] = p.Weights.B[i]
		for j := 0; j < len(state); j++ {
			logits[i] += p.Weights.W[i][j] * state[j]
		}
	}
	return softmax(logits)
}

func (p *Policy) Value(state []float64) float64 {
	value := p.Weights.VB
	for j := 0; j < len(state); j++ {
		value += p.Weights.VW[j] * state[j]
	}
	return value
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	values := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulativeProb float64
	for i, prob := range probs {
		cumulativeProb += prob
		if threshold <= cumulativeProb {
			return i
		}
	}
	return len(probs) - 1
}
