package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distributed-actor-learner/internal/config"
	"distributed-actor-learner/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "actorlearner",
	Short: "Distributed actor-learner training loop",
	Long: `actorlearner runs a pool of actors that fetch parameter snapshots from a
learner, roll out the CartPole policy, and push trajectories back.

The learner and the actors can share one process (run) or be split across
machines (learner, actors) over gRPC or HTTP.

Example:
  actorlearner run --num-actors 4 --max-env-frames 40000
  GRPC_HOST=learner:50051 actorlearner actors`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .actorlearner.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")
	rootCmd.PersistentFlags().String("transport", "", "actor/learner transport (grpc, http)")
	rootCmd.PersistentFlags().String("address", "", "learner gRPC address (default GRPC_HOST or localhost:50051)")
	rootCmd.PersistentFlags().String("http-address", "", "learner HTTP address")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("transport.kind", rootCmd.PersistentFlags().Lookup("transport"))
	_ = viper.BindPFlag("transport.address", rootCmd.PersistentFlags().Lookup("address"))
	_ = viper.BindPFlag("transport.http_address", rootCmd.PersistentFlags().Lookup("http-address"))
}

func initConfig() {
	config.Setup(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".actorlearner")
	}

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}

// addActorFlags registers the actor pool flags shared by run and actors.
func addActorFlags(cmd *cobra.Command) {
	cmd.Flags().Int("num-actors", 0, "number of concurrent actors")
	cmd.Flags().Int("unroll-length", 0, "steps per trajectory")
	cmd.Flags().Int("action-repeat", 0, "environment steps per action")
	cmd.Flags().Int64("seed", 0, "base random seed (actor i uses seed+i)")
	cmd.Flags().Float64("max-rollouts-per-sec", 0, "per-actor rollout rate limit (0 = unlimited)")
}

func bindActorFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("actor.num_actors", cmd.Flags().Lookup("num-actors"))
	_ = viper.BindPFlag("actor.unroll_length", cmd.Flags().Lookup("unroll-length"))
	_ = viper.BindPFlag("actor.action_repeat", cmd.Flags().Lookup("action-repeat"))
	_ = viper.BindPFlag("actor.seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("actor.max_rollouts_per_sec", cmd.Flags().Lookup("max-rollouts-per-sec"))
}

// addLearnerFlags registers the learner flags shared by run and learner.
func addLearnerFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", 0, "trajectories per learner update")
	cmd.Flags().Float64("discount-factor", 0, "reward discount")
	cmd.Flags().Int64("max-env-frames", 0, "environment frames to train for")
	cmd.Flags().String("queue", "", "ingestion queue backend (memory, redis, postgres)")
	cmd.Flags().Int("queue-capacity", 0, "ingestion queue capacity")
	cmd.Flags().String("queue-policy", "", "dequeue order (fifo, freshness)")
}

func bindLearnerFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("learner.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("learner.discount_factor", cmd.Flags().Lookup("discount-factor"))
	_ = viper.BindPFlag("learner.max_env_frames", cmd.Flags().Lookup("max-env-frames"))
	_ = viper.BindPFlag("queue.kind", cmd.Flags().Lookup("queue"))
	_ = viper.BindPFlag("queue.capacity", cmd.Flags().Lookup("queue-capacity"))
	_ = viper.BindPFlag("queue.policy", cmd.Flags().Lookup("queue-policy"))
}
