package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/errors"
)

var rollbackSteps int

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back applied migrations",
	Long: `Runs the down script of the most recently applied migrations, newest
first, and removes them from the history table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.Rollback(ctx, rollbackSteps); err != nil {
			return fmt.Errorf("%s", errors.FormatUserError(err))
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	rootCmd.AddCommand(rollbackCmd)
}
