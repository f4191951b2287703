package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/swarmer/internal/swarm/output"
	"github.com/wesleyorama2/swarmer/internal/swarm/report"
)

func newReportCmd() *cobra.Command {
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "report <file.json>",
		Short: "Print or render a saved JSON report",
		Long: `Print the end-of-run summary of a report written with "swarmer run --output",
or render it as an HTML page with --html.

Examples:
  swarmer run --host http://localhost:8080 -o results/run.json
  swarmer report results/run.json
  swarmer report results/run.json --html results/run.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := output.ReadJSON(args[0])
			if err != nil {
				return err
			}

			if htmlPath != "" {
				if err := report.GenerateHTML(result, htmlPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "HTML report written to %s\n", htmlPath)
				return nil
			}

			console := output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout()})
			console.PrintSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&htmlPath, "html", "", "Render the report as HTML to this file")
	return cmd
}
