package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ticketless/internal/workspace"
)

func newWorkspaceCommand(ctx *commandContext) *cobra.Command {
	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect and clean per-request scratch directories",
	}
	workspaceCmd.AddCommand(newWorkspaceListCommand(ctx))
	workspaceCmd.AddCommand(newWorkspaceCleanCommand(ctx))
	return workspaceCmd
}

func (c *commandContext) workspaces() (*workspace.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, err
	}
	return workspace.NewManager(cfg.Paths.WorkDir, cfg.MinFreeBytes(), logger), nil
}

func newWorkspaceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspace directories with their age and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.workspaces()
			if err != nil {
				return err
			}
			dirs, err := manager.List()
			if err != nil {
				return fmt.Errorf("list workspaces: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No workspaces")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{
					dir.Name,
					now.Sub(dir.ModTime).Round(time.Second).String(),
					strconv.FormatInt(dir.Size, 10),
				})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Age", "Bytes"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			return nil
		},
	}
}

func newWorkspaceCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces older than the configured maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := ctx.workspaces()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.WorkspaceMaxAge()
			}
			if maxAge <= 0 {
				return fmt.Errorf("max age must be positive")
			}
			result := manager.CleanStale(cmd.Context(), maxAge)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d workspace(s) older than %s\n", len(result.Removed), maxAge)
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  failed %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Minimum age of removed workspaces (default from config)")
	return cmd
}
