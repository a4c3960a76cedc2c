package cli

import (
	"github.com/dmitrijs2005/remotestorage/internal/client/config"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the rsctl command tree. Flags override the values
// already in cfg, which LoadConfig fills from defaults and the JSON file.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "rsctl",
		Short: "Upload to and download from the remote storage",
		Long: `rsctl drives the remote storage subsystem from the command line.

Examples:
  rsctl token --subject alice
  rsctl -t <token> upload --storage media photo.jpg
  rsctl -t <token> fetch --preview 320 http://media.local/8c1f/photo.jpg
  rsctl --index uploads.db find 3b2e6a7c-...
  rsctl cleanup --age 72h`,
		SilenceUsage: true,
	}
	cfg.BindFlags(root.PersistentFlags())

	// withApp builds the service before a command runs and closes it after.
	withApp := func(run action) runE {
		return func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), cfg.Verbose))
			if err != nil {
				return err
			}
			defer app.Close()
			return run(cmd, app, args)
		}
	}

	root.AddCommand(
		newUploadCommand(withApp),
		newFetchCommand(withApp),
		newURLCommand(withApp),
		newMetaCommand(withApp),
		newFindCommand(withApp),
		newListCommand(withApp),
		newCleanupCommand(withApp),
		newTokenCommand(),
	)

	return root
}

// action is a command body that needs the storage service.
type action func(cmd *cobra.Command, app *App, args []string) error

type runE = func(*cobra.Command, []string) error

type runner func(run action) runE
