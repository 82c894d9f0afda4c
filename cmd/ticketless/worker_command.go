package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ticketless/internal/daemonctl"
	"ticketless/internal/daemonrun"
	"ticketless/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Drive the queue worker",
	}
	workerCmd.AddCommand(newWorkerRunCommand(ctx))
	return workerCmd
}

func newWorkerRunCommand(ctx *commandContext) *cobra.Command {
	var remote bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of queued jobs",
		Long: "Reclaim stalled jobs, sweep abandoned workspaces, then claim and process one batch.\n" +
			"With --remote the running daemon performs the batch through its worker trigger endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var summary worker.Summary
			var err error
			if remote {
				summary, err = runWorkerRemote(cmd, ctx)
			} else {
				summary, err = runWorkerLocal(cmd, ctx)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, summary)
			}
			printWorkerSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running daemon to process the batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run summary as JSON")
	return cmd
}

func runWorkerLocal(cmd *cobra.Command, ctx *commandContext) (worker.Summary, error) {
	var summary worker.Summary
	err := ctx.withComponents(cmd.Context(), func(c *daemonrun.Components) error {
		var runErr error
		summary, runErr = c.Worker.RunOnce(cmd.Context())
		return runErr
	})
	return summary, err
}

func runWorkerRemote(cmd *cobra.Command, ctx *commandContext) (worker.Summary, error) {
	client, err := daemonctl.FromConfig(ctx.configValue())
	if err != nil {
		return worker.Summary{}, err
	}
	summary, err := client.RunWorker(cmd.Context())
	if errors.Is(err, daemonctl.ErrUnavailable) {
		return summary, fmt.Errorf("%w; run without --remote to process locally", err)
	}
	return summary, err
}

func printWorkerSummary(out io.Writer, summary worker.Summary) {
	rows := [][]string{
		{"Workspaces swept", fmt.Sprintf("%d", summary.Swept)},
		{"Reclaimed", fmt.Sprintf("%d", summary.Reclaimed)},
		{"Claimed", fmt.Sprintf("%d", summary.Claimed)},
		{"Completed", fmt.Sprintf("%d", summary.Completed)},
		{"Retried", fmt.Sprintf("%d", summary.Retried)},
		{"Failed", fmt.Sprintf("%d", summary.Failed)},
		{"State errors", fmt.Sprintf("%d", summary.StateErrors)},
	}
	fmt.Fprintf(out, "Worker %s finished in %s\n", summary.WorkerID, summary.Elapsed.Round(1e6))
	fmt.Fprint(out, renderTable([]string{"Step", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}
