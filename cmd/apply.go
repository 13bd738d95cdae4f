package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/errors"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Runs the up script of every migration folder not yet recorded in the
__MinfoldMigrations history table, in name order, each under a single
transaction split on GO batch markers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.Apply(ctx); err != nil {
			return fmt.Errorf("%s", errors.FormatUserError(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
