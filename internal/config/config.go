package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/tracing"
	"distributed-actor-learner/internal/transport"
)

// EnvPrefix namespaces environment overrides, e.g. ACTORLEARNER_ACTOR_NUM_ACTORS.
const EnvPrefix = "ACTORLEARNER"

// Config is the full actor/learner configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Actor     ActorConfig     `mapstructure:"actor"`
	Learner   LearnerConfig   `mapstructure:"learner"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Log       logging.Config  `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
}

// TransportConfig selects how actors reach the learner
type TransportConfig struct {
	Kind            string        `mapstructure:"kind"`         // grpc | http
	Address         string        `mapstructure:"address"`      // gRPC host:port, also GRPC_HOST
	HTTPAddress     string        `mapstructure:"http_address"` // HTTP host:port
	RPCTimeout      time.Duration `mapstructure:"rpc_timeout"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes"` // gRPC send/receive limit
}

// ActorConfig contains per-actor rollout settings
type ActorConfig struct {
	NumActors         int     `mapstructure:"num_actors"`
	UnrollLength      int     `mapstructure:"unroll_length"`
	ActionRepeat      int     `mapstructure:"action_repeat"`
	MaxEpisodeSteps   int     `mapstructure:"max_episode_steps"`
	Seed              int64   `mapstructure:"seed"`
	MaxRolloutsPerSec float64 `mapstructure:"max_rollouts_per_sec"` // 0 = unlimited
}

// LearnerConfig contains the built-in learner's hyperparameters
type LearnerConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	DiscountFactor float64       `mapstructure:"discount_factor"`
	LearningRate   float64       `mapstructure:"learning_rate"`
	BaselineRate   float64       `mapstructure:"baseline_rate"`
	MaxAbsReward   float64       `mapstructure:"max_abs_reward"`
	MaxEnvFrames   int64         `mapstructure:"max_env_frames"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// QueueConfig selects the ingestion queue backend
type QueueConfig struct {
	Kind     string      `mapstructure:"kind"` // memory | redis | postgres
	Capacity int         `mapstructure:"capacity"`
	Policy   string      `mapstructure:"policy"` // fifo | freshness
	Redis    RedisConfig `mapstructure:"redis"`
	DSN      string      `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// MetricsConfig controls the standalone metrics listener
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			Kind:            "grpc",
			Address:         "localhost:50051",
			HTTPAddress:     "localhost:8080",
			RPCTimeout:      30 * time.Second,
			MaxMessageBytes: transport.DefaultMaxMessageBytes,
		},
		Actor: ActorConfig{
			NumActors:       2,
			UnrollLength:    20,
			ActionRepeat:    1,
			MaxEpisodeSteps: 500,
		},
		Learner: LearnerConfig{
			BatchSize:      2,
			DiscountFactor: 0.99,
			LearningRate:   0.01,
			MaxAbsReward:   1,
			MaxEnvFrames:   20000,
			PollInterval:   10 * time.Millisecond,
		},
		Queue: QueueConfig{
			Kind:     "memory",
			Capacity: 1024,
			Policy:   buffer.PolicyFIFO,
			Redis:    RedisConfig{Addr: "localhost:6379", Key: "actorlearner:trajectories"},
		},
		Log:     logging.Config{Level: "info", Format: "json"},
		Tracing: tracing.Config{ServiceName: "actorlearner", ExportEndpoint: "localhost:4318", Insecure: true},
	}
}

// Setup registers defaults and environment bindings on v. Every key gets a
// default so that AutomaticEnv can see it during Unmarshal.
func Setup(v *viper.Viper) {
	d := Defaults()
	defaults := map[string]any{
		"transport.kind":              d.Transport.Kind,
		"transport.address":           d.Transport.Address,
		"transport.http_address":      d.Transport.HTTPAddress,
		"transport.rpc_timeout":       d.Transport.RPCTimeout,
		"transport.max_message_bytes": d.Transport.MaxMessageBytes,
		"actor.num_actors":            d.Actor.NumActors,
		"actor.unroll_length":         d.Actor.UnrollLength,
		"actor.action_repeat":         d.Actor.ActionRepeat,
		"actor.max_episode_steps":     d.Actor.MaxEpisodeSteps,
		"actor.seed":                  d.Actor.Seed,
		"actor.max_rollouts_per_sec":  d.Actor.MaxRolloutsPerSec,
		"learner.batch_size":          d.Learner.BatchSize,
		"learner.discount_factor":     d.Learner.DiscountFactor,
		"learner.learning_rate":       d.Learner.LearningRate,
		"learner.baseline_rate":       d.Learner.BaselineRate,
		"learner.max_abs_reward":      d.Learner.MaxAbsReward,
		"learner.max_env_frames":      d.Learner.MaxEnvFrames,
		"learner.poll_interval":       d.Learner.PollInterval,
		"queue.kind":                  d.Queue.Kind,
		"queue.capacity":              d.Queue.Capacity,
		"queue.policy":                d.Queue.Policy,
		"queue.redis.addr":            d.Queue.Redis.Addr,
		"queue.redis.password":        d.Queue.Redis.Password,
		"queue.redis.db":              d.Queue.Redis.DB,
		"queue.redis.key":             d.Queue.Redis.Key,
		"queue.dsn":                   d.Queue.DSN,
		"log.level":                   d.Log.Level,
		"log.format":                  d.Log.Format,
		"metrics.addr":                d.Metrics.Addr,
		"tracing.enable":              d.Tracing.Enable,
		"tracing.service_name":        d.Tracing.ServiceName,
		"tracing.export_endpoint":     d.Tracing.ExportEndpoint,
		"tracing.insecure":            d.Tracing.Insecure,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GRPC_HOST is the conventional un-prefixed override for the learner address.
	_ = v.BindEnv("transport.address", EnvPrefix+"_TRANSPORT_ADDRESS", "GRPC_HOST")
}

// Load unmarshals v into a Config and fills in anything left at zero.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = d.Transport.Kind
	}
	if cfg.Transport.Address == "" {
		cfg.Transport.Address = d.Transport.Address
	}
	if cfg.Transport.HTTPAddress == "" {
		cfg.Transport.HTTPAddress = d.Transport.HTTPAddress
	}
	if cfg.Transport.MaxMessageBytes == 0 {
		cfg.Transport.MaxMessageBytes = d.Transport.MaxMessageBytes
	}
	if cfg.Actor.NumActors == 0 {
		cfg.Actor.NumActors = d.Actor.NumActors
	}
	if cfg.Actor.UnrollLength == 0 {
		cfg.Actor.UnrollLength = d.Actor.UnrollLength
	}
	if cfg.Actor.ActionRepeat == 0 {
		cfg.Actor.ActionRepeat = d.Actor.ActionRepeat
	}
	if cfg.Learner.BatchSize == 0 {
		cfg.Learner.BatchSize = d.Learner.BatchSize
	}
	if cfg.Learner.MaxEnvFrames == 0 {
		cfg.Learner.MaxEnvFrames = d.Learner.MaxEnvFrames
	}
	if cfg.Queue.Kind == "" {
		cfg.Queue.Kind = d.Queue.Kind
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = d.Queue.Capacity
	}
	if cfg.Queue.Policy == "" {
		cfg.Queue.Policy = d.Queue.Policy
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validTransports := map[string]bool{"grpc": true, "http": true}
	if !validTransports[c.Transport.Kind] {
		return fmt.Errorf("invalid transport: %s (must be grpc or http)", c.Transport.Kind)
	}
	if c.Transport.MaxMessageBytes < 1 {
		return fmt.Errorf("max_message_bytes must be >= 1")
	}
	if c.Actor.NumActors < 1 {
		return fmt.Errorf("num_actors must be >= 1")
	}
	if c.Actor.UnrollLength < 1 {
		return fmt.Errorf("unroll_length must be >= 1")
	}
	if c.Actor.ActionRepeat < 1 {
		return fmt.Errorf("action_repeat must be >= 1")
	}
	if c.Actor.MaxRolloutsPerSec < 0 {
		return fmt.Errorf("max_rollouts_per_sec must be >= 0")
	}
	if c.Learner.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if c.Learner.DiscountFactor < 0 || c.Learner.DiscountFactor > 1 {
		return fmt.Errorf("discount_factor must be in [0, 1]")
	}
	if c.Learner.MaxEnvFrames < c.FramesPerIter() {
		return fmt.Errorf("max_env_frames %d is below one update (%d frames)", c.Learner.MaxEnvFrames, c.FramesPerIter())
	}

	validQueues := map[string]bool{"memory": true, "redis": true, "postgres": true}
	if !validQueues[c.Queue.Kind] {
		return fmt.Errorf("invalid queue kind: %s (must be memory, redis, or postgres)", c.Queue.Kind)
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be >= 1")
	}
	if c.Queue.Policy != buffer.PolicyFIFO && c.Queue.Policy != buffer.PolicyFreshness {
		return fmt.Errorf("invalid queue policy: %s (must be fifo or freshness)", c.Queue.Policy)
	}
	if c.Queue.Kind == "postgres" && c.Queue.DSN == "" {
		return fmt.Errorf("queue dsn is required for postgres")
	}
	if c.Tracing.Enable && c.Tracing.ExportEndpoint == "" {
		return fmt.Errorf("tracing export_endpoint is required when tracing is enabled")
	}
	return nil
}

func (c *Config) FramesPerIter() int64 {
	return c.LearnerSettings().FramesPerIter()
}

// NumUpdates is the number of learner updates that fit in max_env_frames.
func (c *Config) NumUpdates() int {
	return c.LearnerSettings().MaxUpdates(c.Learner.MaxEnvFrames)
}

func (c *Config) LearnerSettings() learner.Config {
	return learner.Config{
		BatchSize:    c.Learner.BatchSize,
		UnrollLength: c.Actor.UnrollLength,
		ActionRepeat: c.Actor.ActionRepeat,
		Discount:     c.Learner.DiscountFactor,
		LearningRate: c.Learner.LearningRate,
		BaselineRate: c.Learner.BaselineRate,
		MaxAbsReward: c.Learner.MaxAbsReward,
		PollInterval: c.Learner.PollInterval,
	}
}

func (c *Config) QueueSettings() buffer.Config {
	return buffer.Config{
		Kind:     c.Queue.Kind,
		Capacity: c.Queue.Capacity,
		Policy:   c.Queue.Policy,
		Redis: buffer.RedisOptions{
			Addr:     c.Queue.Redis.Addr,
			Password: c.Queue.Redis.Password,
			DB:       c.Queue.Redis.DB,
			Key:      c.Queue.Redis.Key,
		},
		DSN: c.Queue.DSN,
	}
}
