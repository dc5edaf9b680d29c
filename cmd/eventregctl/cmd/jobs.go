package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/repo/postgres"
)

var retryLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and repair the notification outbox",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count outbox jobs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			counts, err := postgres.NewJobsRepo(pool, nil).CountByStatus(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range []job.Status{job.StatusPending, job.StatusProcessing, job.StatusDone, job.StatusFailed} {
				fmt.Fprintf(out, "%-10s %d\n", s, counts[s])
			}
			return nil
		})
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Move dead-lettered jobs back to pending with a fresh attempt budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			n, err := postgres.NewJobsRepo(pool, nil).RetryManyFailed(ctx, retryLimit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d jobs\n", n)
			return nil
		})
	},
}

func init() {
	jobsRetryCmd.Flags().IntVar(&retryLimit, "limit", 50, "maximum number of jobs to requeue (max 500)")

	jobsCmd.AddCommand(jobsStatsCmd, jobsRetryCmd)
}
