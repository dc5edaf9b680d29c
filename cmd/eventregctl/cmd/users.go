package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geocoder89/eventreg/internal/repo/postgres"
)

var (
	userName  string
	userEmail string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users that can register for events",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userName == "" || userEmail == "" {
			return fmt.Errorf("--name and --email are required")
		}

		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			u, err := postgres.NewUsersRepo(pool, nil).Create(ctx, userName, userEmail)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", u.ID, u.Email)
			return nil
		})
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "unique email address")

	usersCmd.AddCommand(usersCreateCmd)
}
