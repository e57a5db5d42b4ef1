package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/nest"
	"distributed-actor-learner/internal/policy"
)

type recordingSink struct {
	mu     sync.Mutex
	events []map[string]any
}

func (s *recordingSink) Write(_ context.Context, event map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func defaultParams(t *testing.T) nest.Map {
	t.Helper()
	params, err := policy.DefaultWeights().Params()
	require.NoError(t, err)
	return params
}

func TestCartPoleGeneratorShapes(t *testing.T) {
	gen, err := NewCartPoleGenerator(GeneratorConfig{Index: 1, UnrollLength: 20, Seed: 7})
	require.NoError(t, err)

	traj, err := gen.Unroll(context.Background(), 120, defaultParams(t))
	require.NoError(t, err)

	n, err := codec.UnrollLength(traj)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	obs := mustTensor(t, traj, policy.FieldObservation)
	assert.Equal(t, []int{20, 4}, obs.Shape)
	act := mustTensor(t, traj, policy.FieldAction)
	assert.Equal(t, nest.Int64, act.DType)
	assert.Equal(t, []float64{1}, mustTensor(t, traj, policy.FieldActorIndex).Data)
	assert.Equal(t, []float64{120}, mustTensor(t, traj, policy.FieldFrameCount).Data)

	payload, err := codec.EncodeTrajectory(traj)
	require.NoError(t, err)
	decoded, err := codec.DecodeTrajectory(payload)
	require.NoError(t, err)
	assert.True(t, nest.Equal(traj, decoded))
}

func TestCartPoleGeneratorReportsEpisodes(t *testing.T) {
	sink := &recordingSink{}
	gen, err := NewCartPoleGenerator(GeneratorConfig{
		ActorID:         "a1",
		UnrollLength:    25,
		MaxEpisodeSteps: 10,
		Seed:            1,
		Sink:            sink,
	})
	require.NoError(t, err)

	traj, err := gen.Unroll(context.Background(), 0, defaultParams(t))
	require.NoError(t, err)

	// Episodes are capped at 10 steps, so 25 steps end at least two.
	assert.GreaterOrEqual(t, gen.Episodes(), 2)
	require.Len(t, sink.events, gen.Episodes())
	assert.Equal(t, "a1", sink.events[0]["actor_id"])

	discounts := mustTensor(t, traj, policy.FieldDiscount).Data
	zeros := 0
	for _, d := range discounts {
		if d == 0 {
			zeros++
		}
	}
	assert.Equal(t, gen.Episodes(), zeros)
}

func TestCartPoleGeneratorRejectsBadParams(t *testing.T) {
	gen, err := NewCartPoleGenerator(GeneratorConfig{UnrollLength: 5})
	require.NoError(t, err)

	_, err = gen.Unroll(context.Background(), 0, nest.Map{"policy": nest.Map{}})
	assert.Error(t, err)

	w := policy.DefaultWeights()
	w.VW = w.VW[:3]
	for i := range w.W {
		w.W[i] = w.W[i][:3]
	}
	params, err := w.Params()
	require.NoError(t, err)
	_, err = gen.Unroll(context.Background(), 0, params)
	assert.Error(t, err)

	_, err = NewCartPoleGenerator(GeneratorConfig{})
	assert.Error(t, err)
}
