package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geocoder89/eventreg/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo users and events (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			if err := db.SeedDemo(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d events\n", len(db.DemoUsers()), len(db.DemoEvents()))
			return nil
		})
	},
}
