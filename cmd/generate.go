package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lofcz/minfold/internal/errors"
)

var generateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a migration from the current schema drift",
	Long: `Introspects the live database, rebuilds the target schema by replaying
the applied migrations on the scratch database, and writes an up.sql/down.sql
pair for the difference. With no drift, nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.Generate(ctx, args[0]); err != nil {
			return fmt.Errorf("%s", errors.FormatUserError(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
