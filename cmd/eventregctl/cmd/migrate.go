package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geocoder89/eventreg/internal/db"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.MigrateUp(resolveDatabaseURL()); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if downSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		if err := db.MigrateDown(resolveDatabaseURL(), downSteps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd)
	},
}

func printVersion(cmd *cobra.Command) error {
	v, dirty, err := db.MigrationVersion(resolveDatabaseURL())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v == 0 {
		fmt.Fprintln(out, "schema version: none")
		return nil
	}
	fmt.Fprintf(out, "schema version: %d (dirty=%t)\n", v, dirty)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
