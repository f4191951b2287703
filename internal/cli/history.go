package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/swarmer/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var path string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List the runs recorded by "swarmer run", newest first.

Examples:
  swarmer history
  swarmer history show 3f2a
  swarmer history delete 3f2a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(path)
			if err != nil {
				return err
			}
			defer h.Close()

			records, err := h.List(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.PersistentFlags().StringVar(&path, flagHistory, "", "History database (default ~/.swarmer/history.db)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many runs (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(path)
			if err != nil {
				return err
			}
			defer h.Close()

			rec, err := h.Get(args[0])
			if err != nil {
				return err
			}

			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(path)
			if err != nil {
				return err
			}
			defer h.Close()

			if err := h.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func printRecords(w io.Writer, records []storage.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tNAME\tUSERS\tREQUESTS\tFAILED\tRPS\tP95\tRESULT")

	for _, r := range records {
		result := "PASSED"
		if !r.Passed {
			result = "FAILED"
		}
		if r.Interrupted {
			result += " (interrupted)"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f\t%s\t%s\n",
			shortID(r.ID),
			r.StartTime.Local().Format(time.DateTime),
			r.Name,
			r.Users,
			r.TotalRequests,
			r.FailedRequests,
			r.RPS,
			r.LatencyP95.Round(time.Millisecond),
			result,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
