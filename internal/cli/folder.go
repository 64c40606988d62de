package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmcdole/shelf/internal/storage/remote"
	"github.com/spf13/cobra"
)

func newFolderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Diagnose the remote catalog folder",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <new-name>",
		Short: "Report what switching to another folder name would leave behind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := remoteAdapter(ctx, app)
			if err != nil {
				return err
			}
			check, err := adapter.CheckFolderRename(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Current: %s (%d items)\n", check.CurrentName, check.CurrentItems)
			if check.TargetExists {
				fmt.Fprintf(out, "Target:  %s (%d items)\n", check.NewName, check.TargetItems)
			} else {
				fmt.Fprintf(out, "Target:  %s %s\n", check.NewName, DimStyle.Render("(will be created)"))
			}
			if check.LeavesItemsBehind() {
				fmt.Fprintln(out, AccentStyle.Render(fmt.Sprintf("%d item(s) stay in %s and will not be shown", check.CurrentItems, check.CurrentName)))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "probe [name]",
		Short: "List every folder with the catalog name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := remoteAdapter(ctx, app)
			if err != nil {
				return err
			}
			name := adapter.DisplayName()
			if len(args) == 1 {
				name = args[0]
			}
			probe, err := adapter.ProbeFolder(ctx, name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(probe.Folders) == 0 {
				fmt.Fprintf(out, "No folder named %q\n", probe.Name)
				return nil
			}
			if len(probe.Folders) > 1 {
				fmt.Fprintln(out, AccentStyle.Render(fmt.Sprintf("%d folders share the name %q", len(probe.Folders), probe.Name)))
			}
			for _, f := range probe.Folders {
				trash := "no trash"
				if f.HasTrash {
					trash = fmt.Sprintf("%d in trash", f.TrashItems)
				}
				fmt.Fprintf(out, "%s  %d items, %s  %s\n", f.ID, f.Items, trash,
					DimStyle.Render("modified "+f.ModifiedTime.Format("2006-01-02 15:04")))
			}
			return nil
		},
	})

	return cmd
}

func remoteAdapter(ctx context.Context, app *App) (*remote.Adapter, error) {
	app.Store.InitializeStorage(ctx, app.preferredStorage())
	adapter, ok := app.Store.Adapter().(*remote.Adapter)
	if !ok || !adapter.IsConnected() {
		return nil, errors.New("not connected to remote storage, run 'shelf connect remote' first")
	}
	return adapter, nil
}
