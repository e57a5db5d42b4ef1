package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var learnerCmd = &cobra.Command{
	Use:   "learner",
	Short: "Serve parameters and train from remote actors",
	Long: `Learner exposes GetParams and InsertTrajectory over gRPC and HTTP and
trains on whatever trajectories remote actors push. It exits once
max_env_frames are consumed or on SIGINT/SIGTERM.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindLearnerFlags(cmd)
		_ = viper.BindPFlag("actor.unroll_length", cmd.Flags().Lookup("unroll-length"))
		_ = viper.BindPFlag("actor.action_repeat", cmd.Flags().Lookup("action-repeat"))
	},
	RunE: runLearner,
}

func init() {
	rootCmd.AddCommand(learnerCmd)
	addLearnerFlags(learnerCmd)
	learnerCmd.Flags().Int("unroll-length", 0, "steps per trajectory expected from actors")
	learnerCmd.Flags().Int("action-repeat", 0, "environment steps per action used by actors")
}

func runLearner(cmd *cobra.Command, args []string) error {
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

	numUpdates := a.cfg.NumUpdates()
	a.logger.Info("learner started", "num_updates", numUpdates, "frames_per_update", a.cfg.FramesPerIter())
	if err := side.learner.Run(ctx, numUpdates); err != nil {
		if ctx.Err() != nil {
			a.logger.Info("learner interrupted", "frame_count", side.store.FrameCount())
			return nil
		}
		return err
	}
	a.logger.Info("learner finished", "frame_count", side.store.FrameCount())
	return nil
}
