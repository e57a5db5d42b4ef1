package learner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/nest"
)

func paramsAt(v float64) nest.Map {
	return nest.Map{
		"a": nest.Vector(v, v, v),
		"b": nest.Map{"c": nest.Scalar(v)},
	}
}

func TestParamStoreBeforePublish(t *testing.T) {
	store := NewParamStore()
	_, _, err := store.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, int64(0), store.FrameCount())
}

func TestParamStorePublish(t *testing.T) {
	store := NewParamStore()
	require.NoError(t, store.Publish(Snapshot{FrameCount: 0, Params: paramsAt(0)}))
	require.NoError(t, store.Publish(Snapshot{FrameCount: 40, Params: paramsAt(1)}))

	fc, payload, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, int64(40), fc)

	params, err := codec.DecodeSnapshot(payload)
	require.NoError(t, err)
	assert.True(t, nest.Equal(paramsAt(1), params))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(40), snap.FrameCount)
}

func TestParamStoreRejectsRegression(t *testing.T) {
	store := NewParamStore()
	require.NoError(t, store.Publish(Snapshot{FrameCount: 40, Params: paramsAt(1)}))

	err := store.Publish(Snapshot{FrameCount: 20, Params: paramsAt(2)})
	assert.ErrorIs(t, err, ErrFrameCountRegressed)
	assert.Equal(t, int64(40), store.FrameCount())
}

func TestParamStoreSameFrameCountMustMatch(t *testing.T) {
	store := NewParamStore()
	require.NoError(t, store.Publish(Snapshot{FrameCount: 40, Params: paramsAt(1)}))

	assert.NoError(t, store.Publish(Snapshot{FrameCount: 40, Params: paramsAt(1)}))
	assert.ErrorIs(t, store.Publish(Snapshot{FrameCount: 40, Params: paramsAt(9)}), ErrFrameCountConflict)
}

func TestParamStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := NewParamStore()
	require.NoError(t, store.Publish(Snapshot{FrameCount: 0, Params: paramsAt(0)}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			assert.NoError(t, store.Publish(Snapshot{FrameCount: int64(i), Params: paramsAt(float64(i))}))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := int64(-1)
			for i := 0; i < 200; i++ {
				fc, payload, err := store.Current()
				if !assert.NoError(t, err) {
					return
				}
				assert.GreaterOrEqual(t, fc, last)
				last = fc

				params, err := codec.DecodeSnapshot(payload)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, nest.Equal(paramsAt(float64(fc)), params), "frame %d carried foreign parameters", fc)
			}
		}()
	}
	wg.Wait()
}
