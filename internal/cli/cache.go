package cli

import (
	"fmt"

	"github.com/mmcdole/shelf/internal/config"
	"github.com/spf13/cobra"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the remote item cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if app.Cache == nil {
				fmt.Fprintln(out, DimStyle.Render("Cache disabled"))
				return nil
			}
			stats, err := app.Cache.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d items in %d folders\n", stats.Items, stats.Folders)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Cache == nil {
				if err := config.ClearCache(app.Config.Cache.Dir); err != nil {
					return err
				}
			} else if err := app.Cache.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("✓ Cache cleared"))
			return nil
		},
	})

	return cmd
}
