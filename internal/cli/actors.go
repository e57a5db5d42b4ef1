package cli

import (
	"github.com/spf13/cobra"

	"distributed-actor-learner/internal/supervisor"
)

var actorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "Run an actor pool against a remote learner",
	Long: `Actors connects to the learner at transport.address (GRPC_HOST) and runs
num_actors actor loops until SIGINT/SIGTERM. Each actor fails on the first
transport or decode error; the remaining actors keep going.

Actors do not retry. A learner whose ingestion queue is full rejects the
submission and that actor stops for good, so a learner that drains slower
than the pool produces will lose actors one by one. Size queue.capacity on
the learner for the pool, or cap each actor with --max-rollouts-per-sec.

Example:
  GRPC_HOST=learner:50051 actorlearner actors --num-actors 8`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindActorFlags(cmd)
	},
	RunE: runActors,
}

func init() {
	rootCmd.AddCommand(actorsCmd)
	addActorFlags(actorsCmd)
}

func runActors(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.dial()
	if err != nil {
		return err
	}
	pool := &supervisor.Pool{
		NumActors: a.cfg.Actor.NumActors,
		NewRunner: a.runnerFactory(client),
		Logger:    a.logger,
	}
	rep, err := pool.RunActors(ctx)
	a.report(rep)
	return err
}
