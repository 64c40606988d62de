package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/spf13/cobra"
)

func newConnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "connect [local|remote]",
		Short:     "Choose the catalog folder or sign in to remote storage",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(domain.StorageTypeLocal), string(domain.StorageTypeRemote)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storageType := app.preferredStorage()
			if len(args) == 1 {
				storageType = domain.StorageType(args[0])
			}
			supported := app.Store.SupportedStorage()
			if !slices.Contains(supported, storageType) {
				return fmt.Errorf("%s storage is not available (available: %v)", storageType, supported)
			}

			if !app.Store.SelectStorage(ctx, storageType) {
				return errors.New("not connected")
			}
			if err := app.Prefs.Set(prefStorageType, string(storageType)); err != nil {
				return fmt.Errorf("failed to save preference: %w", err)
			}

			items, err := app.load(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d items in %s\n", len(items), storageName(app))
			return nil
		},
	}
}

func newDisconnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the catalog folder and any remote session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app.Store.InitializeStorage(ctx, app.preferredStorage())
			app.Store.DisconnectStorage(ctx)
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := app.open(cmd.Context()); err != nil {
				if errors.Is(err, ErrNoStorage) {
					fmt.Fprintln(out, DimStyle.Render("Not connected"))
					return nil
				}
				return err
			}

			items := app.Store.Items()
			var books, movies int
			for _, it := range items {
				if it.Type == domain.ItemTypeMovie {
					movies++
				} else {
					books++
				}
			}
			fmt.Fprintf(out, "%s %s\n", TitleStyle.Render(storageName(app)), DimStyle.Render("("+string(app.Store.StorageType())+")"))
			fmt.Fprintf(out, "%s %d books  %s %d movies\n", BookMarker, books, MovieMarker, movies)
			return nil
		},
	}
}

func storageName(app *App) string {
	if adapter := app.Store.Adapter(); adapter != nil && adapter.DisplayName() != "" {
		return adapter.DisplayName()
	}
	return string(app.Store.StorageType()) + " storage"
}
