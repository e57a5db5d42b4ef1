package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/nest"
	"distributed-actor-learner/internal/policy"
	"distributed-actor-learner/internal/transport"
)

type fakeClient struct {
	mu        sync.Mutex
	frames    []int64
	params    []byte
	fetchErr  error
	submitErr error
	fetches   atomic.Int64
	submitted []learner.Submission
	onSubmit  func()
}

func newFakeClient(t *testing.T, frames ...int64) *fakeClient {
	t.Helper()
	params, err := policy.DefaultWeights().Params()
	require.NoError(t, err)
	payload, err := codec.EncodeSnapshot(params)
	require.NoError(t, err)
	return &fakeClient{frames: frames, params: payload}
}

func (c *fakeClient) GetParams(context.Context) (int64, []byte, error) {
	n := c.fetches.Add(1)
	if c.fetchErr != nil {
		return 0, nil, c.fetchErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := int64(0)
	if len(c.frames) > 0 {
		idx := int(n - 1)
		if idx >= len(c.frames) {
			idx = len(c.frames) - 1
		}
		frame = c.frames[idx]
	}
	return frame, c.params, nil
}

func (c *fakeClient) InsertTrajectory(_ context.Context, sub learner.Submission) error {
	if c.submitErr != nil {
		return c.submitErr
	}
	c.mu.Lock()
	c.submitted = append(c.submitted, sub)
	c.mu.Unlock()
	if c.onSubmit != nil {
		c.onSubmit()
	}
	return nil
}

func (c *fakeClient) submissions() []learner.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]learner.Submission(nil), c.submitted...)
}

type generatorFunc func(ctx context.Context, frameCount int64, params nest.Map) (nest.Map, error)

func (f generatorFunc) Unroll(ctx context.Context, frameCount int64, params nest.Map) (nest.Map, error) {
	return f(ctx, frameCount, params)
}

func constantGenerator() RolloutGenerator {
	return generatorFunc(func(_ context.Context, frameCount int64, _ nest.Map) (nest.Map, error) {
		return nest.Map{
			"reward":      nest.Vector(1, 1, 1),
			"frame_count": nest.IntScalar(frameCount),
		}, nil
	})
}

func newRunner(client Client, gen RolloutGenerator, stop *StopSignal) *Runner {
	return &Runner{
		ID:        "actor-test",
		Client:    client,
		Generator: gen,
		Stop:      stop,
		Logger:    logging.NopLogger(),
	}
}

func TestRunnerStopsBeforeFirstFetch(t *testing.T) {
	stop := &StopSignal{}
	stop.Stop()
	client := newFakeClient(t)
	r := newRunner(client, constantGenerator(), stop)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, Stopped, r.State())
	assert.Equal(t, int64(0), client.fetches.Load())
}

func TestRunnerStopsWithinOneIteration(t *testing.T) {
	stop := &StopSignal{}
	client := newFakeClient(t, 0)
	client.onSubmit = stop.Stop
	r := newRunner(client, constantGenerator(), stop)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, Stopped, r.State())
	assert.Equal(t, int64(1), r.Iterations())
	require.Len(t, client.submissions(), 1)

	sub := client.submissions()[0]
	assert.Equal(t, "actor-test", sub.ActorID)
	traj, err := codec.DecodeTrajectory(sub.Trajectory)
	require.NoError(t, err)
	assert.True(t, nest.Vector(1, 1, 1).Equal(mustTensor(t, traj, "reward")))
}

func TestRunnerObservesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newFakeClient(t, 0)
	client.onSubmit = cancel
	r := newRunner(client, constantGenerator(), &StopSignal{})

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int64(1), r.Iterations())
}

func TestRunnerFetchFailureIsFatal(t *testing.T) {
	client := newFakeClient(t)
	client.fetchErr = transport.ErrTransportUnavailable
	r := newRunner(client, constantGenerator(), &StopSignal{})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.Contains(t, err.Error(), "fetch")
	assert.Equal(t, int64(1), client.fetches.Load())
	assert.Equal(t, Stopped, r.State())
}

func TestRunnerMalformedSnapshotIsFatal(t *testing.T) {
	client := newFakeClient(t)
	client.params = []byte("not json")
	r := newRunner(client, constantGenerator(), &StopSignal{})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, codec.ErrMalformedSnapshot)
	assert.Empty(t, client.submissions())
}

func TestRunnerRolloutFailureIsFatal(t *testing.T) {
	boom := errors.New("env crashed")
	client := newFakeClient(t)
	gen := generatorFunc(func(context.Context, int64, nest.Map) (nest.Map, error) {
		return nil, boom
	})
	r := newRunner(client, gen, &StopSignal{})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRolloutFailure)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, client.submissions())
}

func TestRunnerSubmitFailureIsNotRetried(t *testing.T) {
	client := newFakeClient(t)
	client.submitErr = codec.ErrMalformedTrajectory
	r := newRunner(client, constantGenerator(), &StopSignal{})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, codec.ErrMalformedTrajectory)
	assert.Contains(t, err.Error(), "submit")
	assert.Equal(t, int64(1), client.fetches.Load())
	assert.Equal(t, int64(0), r.Iterations())
}

func TestRunnerRejectsRaggedTrajectory(t *testing.T) {
	client := newFakeClient(t)
	gen := generatorFunc(func(context.Context, int64, nest.Map) (nest.Map, error) {
		return nest.Map{"reward": nest.Vector(1, 2), "action": nest.Vector(0)}, nil
	})
	r := newRunner(client, gen, &StopSignal{})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, codec.ErrMalformedTrajectory)
	assert.Empty(t, client.submissions())
}

func TestRunnerToleratesFrameCountRegression(t *testing.T) {
	stop := &StopSignal{}
	client := newFakeClient(t, 40, 20, 60)
	client.onSubmit = func() {
		if len(client.submitted) == 3 {
			stop.Stop()
		}
	}
	r := newRunner(client, constantGenerator(), stop)

	require.NoError(t, r.Run(context.Background()))
	subs := client.submissions()
	require.Len(t, subs, 3)
	assert.Equal(t, []int64{40, 20, 60}, []int64{subs[0].FrameCount, subs[1].FrameCount, subs[2].FrameCount})
}

func TestRunnerRequiresCollaborators(t *testing.T) {
	r := &Runner{}
	assert.Error(t, r.Run(context.Background()))
}

func TestRunnerAgainstService(t *testing.T) {
	queue, err := buffer.NewMemoryQueue(16, buffer.PolicyFIFO)
	require.NoError(t, err)
	store := learner.NewParamStore()
	params, err := policy.DefaultWeights().Params()
	require.NoError(t, err)
	require.NoError(t, store.Publish(learner.Snapshot{FrameCount: 0, Params: params}))
	svc := learner.NewService(store, queue, logging.NopLogger())

	gen, err := NewCartPoleGenerator(GeneratorConfig{ActorID: "a0", UnrollLength: 20, Seed: 3})
	require.NoError(t, err)

	stop := &StopSignal{}
	r := newRunner(&stoppingClient{Client: svc, stop: stop, after: 3}, gen, stop)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, int64(3), r.Iterations())
	assert.Equal(t, 3, queue.Len())

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	steps, err := policy.ParseSteps(item.Trajectory, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 20, steps.Len())
}

// stoppingClient raises the stop signal once after submissions have gone through.
type stoppingClient struct {
	Client
	stop  *StopSignal
	after int
	n     int
}

func (c *stoppingClient) InsertTrajectory(ctx context.Context, sub learner.Submission) error {
	if err := c.Client.InsertTrajectory(ctx, sub); err != nil {
		return err
	}
	c.n++
	if c.n == c.after {
		c.stop.Stop()
	}
	return nil
}

func mustTensor(t *testing.T, m nest.Map, key string) *nest.Tensor {
	t.Helper()
	v, ok := m.Tensor(key)
	require.True(t, ok, "missing %s", key)
	return v
}
