package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func(mutate func(*Config)) Config {
		c := Defaults()
		mutate(&c)
		return c
	}

	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "defaults",
			config: Defaults(),
		},
		{
			name:    "invalid transport",
			config:  valid(func(c *Config) { c.Transport.Kind = "udp" }),
			wantErr: true,
			errMsg:  "invalid transport",
		},
		{
			name:    "negative message limit",
			config:  valid(func(c *Config) { c.Transport.MaxMessageBytes = -1 }),
			wantErr: true,
			errMsg:  "max_message_bytes",
		},
		{
			name:    "zero actors",
			config:  valid(func(c *Config) { c.Actor.NumActors = 0 }),
			wantErr: true,
			errMsg:  "num_actors",
		},
		{
			name:    "zero unroll length",
			config:  valid(func(c *Config) { c.Actor.UnrollLength = 0 }),
			wantErr: true,
			errMsg:  "unroll_length",
		},
		{
			name:    "negative throttle",
			config:  valid(func(c *Config) { c.Actor.MaxRolloutsPerSec = -1 }),
			wantErr: true,
			errMsg:  "max_rollouts_per_sec",
		},
		{
			name:    "discount out of range",
			config:  valid(func(c *Config) { c.Learner.DiscountFactor = 1.5 }),
			wantErr: true,
			errMsg:  "discount_factor",
		},
		{
			name:    "frame budget below one update",
			config:  valid(func(c *Config) { c.Learner.MaxEnvFrames = 10 }),
			wantErr: true,
			errMsg:  "max_env_frames",
		},
		{
			name:    "invalid queue kind",
			config:  valid(func(c *Config) { c.Queue.Kind = "kafka" }),
			wantErr: true,
			errMsg:  "invalid queue kind",
		},
		{
			name:    "invalid queue policy",
			config:  valid(func(c *Config) { c.Queue.Policy = "random" }),
			wantErr: true,
			errMsg:  "invalid queue policy",
		},
		{
			name:    "postgres without dsn",
			config:  valid(func(c *Config) { c.Queue.Kind = "postgres" }),
			wantErr: true,
			errMsg:  "dsn",
		},
		{
			name: "postgres with dsn",
			config: valid(func(c *Config) {
				c.Queue.Kind = "postgres"
				c.Queue.DSN = "postgres://localhost/actorlearner"
			}),
		},
		{
			name:   "tracing without endpoint",
			config: valid(func(c *Config) {
				c.Tracing.Enable = true
				c.Tracing.ExportEndpoint = ""
			}),
			wantErr: true,
			errMsg:  "export_endpoint",
		},
		{
			name:   "http transport",
			config: valid(func(c *Config) { c.Transport.Kind = "http" }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	Setup(v)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:50051", cfg.Transport.Address)
	assert.Equal(t, 256<<20, cfg.Transport.MaxMessageBytes)
	assert.Equal(t, 2, cfg.Actor.NumActors)
	assert.Equal(t, 20, cfg.Actor.UnrollLength)
	assert.Equal(t, 1, cfg.Actor.ActionRepeat)
	assert.Equal(t, 2, cfg.Learner.BatchSize)
	assert.Equal(t, 0.99, cfg.Learner.DiscountFactor)
	assert.Equal(t, int64(20000), cfg.Learner.MaxEnvFrames)
	assert.Equal(t, int64(40), cfg.FramesPerIter())
	assert.Equal(t, 500, cfg.NumUpdates())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GRPC_HOST", "learner.internal:6000")
	t.Setenv("ACTORLEARNER_ACTOR_NUM_ACTORS", "8")
	t.Setenv("ACTORLEARNER_LEARNER_POLL_INTERVAL", "250ms")
	t.Setenv("ACTORLEARNER_QUEUE_POLICY", "freshness")

	v := viper.New()
	Setup(v)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "learner.internal:6000", cfg.Transport.Address)
	assert.Equal(t, 8, cfg.Actor.NumActors)
	assert.Equal(t, 250*time.Millisecond, cfg.Learner.PollInterval)
	assert.Equal(t, "freshness", cfg.Queue.Policy)
}

func TestLoadPrefixedAddressWins(t *testing.T) {
	t.Setenv("GRPC_HOST", "fallback:1")
	t.Setenv("ACTORLEARNER_TRANSPORT_ADDRESS", "primary:2")

	v := viper.New()
	Setup(v)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "primary:2", cfg.Transport.Address)
}

func TestLoadYAML(t *testing.T) {
	v := viper.New()
	Setup(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
actor:
  num_actors: 4
  unroll_length: 50
learner:
  batch_size: 8
queue:
  kind: redis
  redis:
    addr: redis:6379
`)))
	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Actor.NumActors)
	assert.Equal(t, int64(400), cfg.FramesPerIter())
	assert.Equal(t, 50, cfg.NumUpdates())

	q := cfg.QueueSettings()
	assert.Equal(t, "redis", q.Kind)
	assert.Equal(t, "redis:6379", q.Redis.Addr)
	assert.Equal(t, "actorlearner:trajectories", q.Redis.Key)

	l := cfg.LearnerSettings()
	assert.Equal(t, 50, l.UnrollLength)
	assert.Equal(t, 8, l.BatchSize)
}
