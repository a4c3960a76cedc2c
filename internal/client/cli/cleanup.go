package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/client/repositories/uploads"
	"github.com/spf13/cobra"
)

func newCleanupCommand(withApp runner) *cobra.Command {
	var (
		age        time.Duration
		uploadsToo bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup [flags]",
		Short: "Remove cached resources older than --age",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			if age < 0 {
				return fmt.Errorf("age must not be negative, got %s", age)
			}
			app.svc.CleanupOldResources(age)

			if uploadsToo && app.db != nil {
				removed, err := uploads.Purge(cmd.Context(), app.db, time.Now().Add(-age))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d upload records\n", removed)
			}
			return nil
		}),
	}

	cmd.Flags().DurationVar(&age, "age", 24*time.Hour, "remove entries last modified before now minus age")
	cmd.Flags().BoolVar(&uploadsToo, "uploads", false, "also purge upload records older than age from the index")
	return cmd
}
