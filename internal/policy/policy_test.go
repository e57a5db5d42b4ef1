package policy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-learner/internal/nest"
)

func TestParamsRoundTrip(t *testing.T) {
	w := DefaultWeights()
	w.VB = 0.5
	w.VW[2] = -1

	params, err := w.Params()
	require.NoError(t, err)

	back, err := FromParams(params)
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

func TestFromParamsRejectsBadTrees(t *testing.T) {
	params, err := DefaultWeights().Params()
	require.NoError(t, err)

	missing := params.Clone()
	delete(missing, "baseline")
	_, err = FromParams(missing)
	assert.Error(t, err)

	wrongRank := params.Clone()
	wrongRank["policy"].(nest.Map)["b"] = nest.Scalar(1)
	_, err = FromParams(wrongRank)
	assert.Error(t, err)

	wrongShape := params.Clone()
	wrongShape["baseline"].(nest.Map)["w"] = nest.Vector(1, 2)
	_, err = FromParams(wrongShape)
	assert.Error(t, err)
}

func TestProbsSumToOne(t *testing.T) {
	p, err := New(DefaultWeights())
	require.NoError(t, err)

	probs := p.Probs([]float64{0.3, -2, 1, 0.1})
	var sum float64
	for _, v := range probs {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestActionIsDeterministicForSeed(t *testing.T) {
	p, err := New(DefaultWeights())
	require.NoError(t, err)
	state := []float64{0.01, 0.02, -0.03, 0.04}

	a1, lp1, v1 := p.Action(state, rand.New(rand.NewSource(7)))
	a2, lp2, v2 := p.Action(state, rand.New(rand.NewSource(7)))
	assert.Equal(t, a1, a2)
	assert.Equal(t, lp1, lp2)
	assert.Equal(t, v1, v2)
	assert.True(t, lp1 <= 0 && !math.IsNaN(lp1))
}

func TestNewValidatesShapes(t *testing.T) {
	_, err := New(Weights{})
	assert.Error(t, err)

	w := DefaultWeights()
	w.W[1] = w.W[1][:2]
	_, err = New(w)
	assert.Error(t, err)
}
