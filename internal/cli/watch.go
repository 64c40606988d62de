package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/shelf/internal/storage/local"
	"github.com/spf13/cobra"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload the local catalog whenever its files change",
		Long: `Watch the local catalog folder and reload when records are added,
edited or removed by other programs. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			adapter, ok := app.Store.Adapter().(*local.Adapter)
			if !ok {
				return errors.New("watch is only available for local catalogs")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (%d items)\n", TitleStyle.Render(storageName(app)), len(app.Store.Items()))

			return adapter.Watch(ctx, func(change local.Change) {
				items, err := app.Store.LoadItemsFrom(ctx, adapter, nil)
				if err != nil {
					fmt.Fprintln(out, ErrorStyle.Render("✗ Reload failed: "+err.Error()))
					return
				}
				fmt.Fprintf(out, "%s %s %s\n",
					SuccessStyle.Render("↻"),
					DimStyle.Render(strings.Join(change.Names, ", ")),
					fmt.Sprintf("(%d items)", len(items)))
			})
		},
	}
}
