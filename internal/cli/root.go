// Package cli implements the swarmer command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Output goes to stdout and stderr
// unless the caller redirects them with SetOut and SetErr.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "swarmer",
		Short:   "Swarm an HTTP service with virtual users",
		Version: version,
		Long: `Swarmer simulates a swarm of virtual users against an HTTP service.

Each user repeatedly requests GET /count/{n} with n drawn from [1, 100] and
waits between 1 and 2.5 seconds before its next request. Users are started
at a fixed spawn rate and the run stops after a fixed duration, printing
throughput and latency statistics along the way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(NewRootCmd(), os.Args[1:], os.Stderr)
}

func execute(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, ErrThresholdsFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
