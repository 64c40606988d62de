package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for shelf.
func NewRootCmd(app *App, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "shelf",
		Short: "Catalog your books and movies as markdown files",
		Long: `Keep a personal catalog of books and movies as plain markdown files.

Each record lives in its own file inside a catalog folder, either a
directory on this machine or a folder in your Drive. Deleted records
move to a .trash folder and can be restored.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newConnectCmd(app))
	root.AddCommand(newDisconnectCmd(app))
	root.AddCommand(newStatusCmd(app))
	root.AddCommand(newListCmd(app))
	root.AddCommand(newShowCmd(app))
	root.AddCommand(newAddCmd(app))
	root.AddCommand(newEditCmd(app))
	root.AddCommand(newSetCmd(app))
	root.AddCommand(newDeleteCmd(app))
	root.AddCommand(newSessionCmd(app))
	root.AddCommand(newWatchCmd(app))
	root.AddCommand(newCacheCmd(app))
	root.AddCommand(newFolderCmd(app))

	return root
}
