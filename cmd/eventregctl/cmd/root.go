// Package cmd holds the eventregctl operator commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geocoder89/eventreg/internal/config"
	"github.com/geocoder89/eventreg/internal/db"
)

var (
	// Global flags
	databaseURL string
	timeout     time.Duration

	rootCmd = &cobra.Command{
		Use:   "eventregctl",
		Short: "Operator tooling for the event registration service",
		Long: `eventregctl manages the event registration database: schema migrations,
demo data, users and the notification outbox.

Connection settings come from the same environment (and .env file) as the
api and worker binaries unless --database-url is given.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres connection URL (default: from env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(jobsCmd)
}

func resolveDatabaseURL() string {
	if databaseURL != "" {
		return databaseURL
	}
	return config.Load().DBURL
}

// withPool opens a pool for the duration of fn.
func withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, resolveDatabaseURL(), 2)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool)
}
