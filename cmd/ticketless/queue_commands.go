package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ticketless/internal/api"
	"ticketless/internal/daemonrun"
	"ticketless/internal/queue"
	"ticketless/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued video jobs",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var userID, contestID, ticketTime, description, source, quality string
	var noAutoSlice, asJSON bool

	cmd := &cobra.Command{
		Use:   "add <video-file>",
		Short: "Store a video and enqueue it for background processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := parseTicketTime(ticketTime)
			if err != nil {
				return err
			}
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open video: %w", err)
			}
			defer file.Close()

			var job *api.JobView
			err = ctx.withComponents(cmd.Context(), func(c *daemonrun.Components) error {
				var enqueueErr error
				job, enqueueErr = c.Enqueuer.Enqueue(cmd.Context(), api.EnqueueRequest{
					UserID:          userID,
					ContestID:       contestID,
					TicketTimestamp: ticket,
					Description:     description,
					AutoSlice:       !noAutoSlice,
					Source:          source,
					Quality:         quality,
					Filename:        filepath.Base(path),
					Body:            file,
				})
				return enqueueErr
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %d (%s)\n", job.ID, job.OriginalVideoRef)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Submitting user id (required)")
	cmd.Flags().StringVar(&contestID, "contest", "", "Contest id (required)")
	cmd.Flags().StringVar(&ticketTime, "ticket-time", "", "Ticket issue time (RFC3339)")
	cmd.Flags().StringVar(&description, "description", "", "Free text description")
	cmd.Flags().StringVar(&source, "source", "upload", "Capture source (upload, dashcam, phone)")
	cmd.Flags().StringVar(&quality, "quality", "balanced", "Transcode quality (fast, balanced, max-compat)")
	cmd.Flags().BoolVar(&noAutoSlice, "no-auto-slice", false, "Keep the whole clip instead of slicing around the ticket")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the created job as JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("contest")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var userID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{UserID: strings.TrimSpace(userID), Limit: limit}
			for _, raw := range statuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(cmd.Context(), func(store queueaccess.Access) error {
				jobs, err := api.NewQueueService(store).List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []api.JobView{}
					}
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Status", "User", "Contest", "Retries", "Created", "Error"},
					buildJobRows(jobs, shouldColorize(out)),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().StringVar(&userID, "user", "", "Filter by user id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output jobs as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store queueaccess.Access) error {
				job, err := api.NewQueueService(store).Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDetails(jobDetails(job, shouldColorize(cmd.OutOrStdout()))))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the job as JSON")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store queueaccess.Access) error {
				stats, err := api.NewQueueService(store).Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(
					[]string{"Status", "Count"},
					buildStatsRows(stats, shouldColorize(out)),
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output counts as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed jobs to pending with a fresh retry budget",
		Long:  "Reset the given failed jobs, or every failed job when no ids are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseJobID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withStore(cmd.Context(), func(store queueaccess.Access) error {
				updated, err := api.NewQueueService(store).Retry(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if updated == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(out, "Reset %d failed job(s) to pending\n", updated)
				return nil
			})
		},
	}
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Delete completed job rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store queueaccess.Access) error {
				removed, err := api.NewQueueService(store).ClearCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed job(s)\n", removed)
				return nil
			})
		},
	}
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func parseTicketTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket time %q: expected RFC3339", raw)
	}
	return &parsed, nil
}
