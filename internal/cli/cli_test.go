package cli

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-learner/internal/metrics"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--verbose"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "actorlearner")
	assert.Contains(t, out.String(), "Protocol:")
}

func TestRunInProcessSingleUpdate(t *testing.T) {
	rootCmd.SetArgs([]string{
		"run", "--in-process",
		"--address", "127.0.0.1:0",
		"--http-address", "127.0.0.1:0",
		"--log-level", "error",
		"--num-actors", "2",
		"--unroll-length", "20",
		"--batch-size", "2",
		"--max-env-frames", "40",
	})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
}

func TestRunOverLoopbackTransports(t *testing.T) {
	for _, kind := range []string{"grpc", "http"} {
		t.Run(kind, func(t *testing.T) {
			rootCmd.SetArgs([]string{
				"run", "--in-process=false",
				"--transport", kind,
				"--address", "127.0.0.1:0",
				"--http-address", "127.0.0.1:0",
				"--log-level", "error",
				"--num-actors", "2",
				"--unroll-length", "20",
				"--batch-size", "2",
				"--max-env-frames", "40",
			})
			defer rootCmd.SetArgs(nil)

			require.NoError(t, rootCmd.Execute())
		})
	}
	// Only the networked runs go through the gRPC server interceptor.
	assert.Positive(t, testutil.CollectAndCount(metrics.RPCDuration))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--in-process", "--transport", "grpc", "--queue-policy", "random", "--log-level", "error"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
