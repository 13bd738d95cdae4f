package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.Status(ctx); err != nil {
			return fmt.Errorf("%s", errors.FormatUserError(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
