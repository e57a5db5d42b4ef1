package cartpole

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetStartsNearUpright(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(1)), 0)
	s := env.Reset()
	for _, v := range s.Observation() {
		assert.InDelta(t, 0, v, 0.05)
	}
	assert.Len(t, s.Observation(), ObsDim)
}

func TestConstantPushFails(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(2)), 0)
	var tr Transition
	for i := 0; i < DefaultMaxSteps; i++ {
		tr = env.Step(1)
		if tr.Done {
			break
		}
	}
	assert.True(t, tr.Done)
	assert.False(t, tr.Truncated)
	assert.Equal(t, 0.0, tr.Reward)
}

func TestStepLimitTruncates(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(3)), 3)
	action := 0
	var tr Transition
	for i := 0; i < 3; i++ {
		tr = env.Step(action)
		action = 1 - action
	}
	assert.True(t, tr.Done)
	assert.True(t, tr.Truncated)
	assert.Equal(t, 1.0, tr.Reward)
}
