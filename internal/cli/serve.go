package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/swarmer/internal/dummy"
	"github.com/wesleyorama2/swarmer/internal/logging"
	"github.com/wesleyorama2/swarmer/internal/swarm/output"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local /count/{n} target",
		Long: `Serve GET /count/{n} for n in [1, 100] with a JSON body {"n": n, "count": k},
where k is how often n was requested. Any other n is answered with 400.

Example:
  swarmer serve --addr :8080 &
  swarmer run --host http://localhost:8080 --users 100 --spawn-rate 10 --duration 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			latencyMin, _ := cmd.Flags().GetDuration("latency-min")
			latencyMax, _ := cmd.Flags().GetDuration("latency-max")
			logLevel, _ := cmd.Flags().GetString("log-level")

			stderr := cmd.ErrOrStderr()
			logger, err := logging.New(logging.Options{
				Level:  logLevel,
				Output: stderr,
				Color:  output.IsTerminal(stderr),
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := dummy.NewServer(
				dummy.WithLatency(latencyMin, latencyMax),
				dummy.WithLogger(logger),
			)
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Duration("latency-min", 0, "Shortest artificial reply delay")
	cmd.Flags().Duration("latency-max", 0, "Longest artificial reply delay (0 disables)")
	cmd.Flags().String("log-level", logging.DefaultLevel, "Log level (debug, info, warn, error)")

	return cmd
}
