package cli

import (
	"github.com/spf13/cobra"

	"distributed-actor-learner/internal/supervisor"
	"distributed-actor-learner/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the learner and an actor pool in one process",
	Long: `Run starts the learner's gRPC and HTTP endpoints, connects an actor pool
to them, and trains until max_env_frames are consumed. When the learner
finishes, the actors are stopped and drained before the command returns.

With --in-process the actors call the learner directly instead of going
through the network.

Example:
  actorlearner run --num-actors 2 --unroll-length 20 --batch-size 2`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindActorFlags(cmd)
		bindLearnerFlags(cmd)
	},
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addActorFlags(runCmd)
	addLearnerFlags(runCmd)
	runCmd.Flags().Bool("in-process", false, "skip the network between actors and learner")
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	side, err := a.newLearnerSide(ctx)
	if err != nil {
		return err
	}
	if err := a.serve(side.service); err != nil {
		return err
	}

	var client worker.Client = side.service
	if inProcess, _ := cmd.Flags().GetBool("in-process"); !inProcess {
		c, err := a.dial()
		if err != nil {
			return err
		}
		client = c
	}

	pool := &supervisor.Pool{
		NumActors:  a.cfg.Actor.NumActors,
		NewRunner:  a.runnerFactory(client),
		Learner:    side.learner,
		NumUpdates: a.cfg.NumUpdates(),
		Logger:     a.logger,
	}
	a.logger.Info("training",
		"num_actors", pool.NumActors,
		"num_updates", pool.NumUpdates,
		"frames_per_update", a.cfg.FramesPerIter(),
	)
	rep, err := pool.Run(ctx)
	a.report(rep)
	if err != nil {
		return err
	}
	a.logger.Info("training finished", "frame_count", side.store.FrameCount())
	return nil
}
