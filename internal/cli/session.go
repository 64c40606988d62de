package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/shelf/internal/service"
	"github.com/spf13/cobra"
)

const sessionHelp = `Commands:
  ls [query]      list items
  rm <id>...      move items to trash
  undo            restore the most recent deletion
  reload          re-read the catalog folder
  help            show this help
  quit            leave the session`

func newSessionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Interactive session with undo for deletions",
		Long: `Start an interactive session on the connected catalog.

Deletions made during the session can be undone, most recent first,
until the session ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", TitleStyle.Render(storageName(app)), DimStyle.Render(fmt.Sprintf("(%d items, type 'help')", len(app.Store.Items()))))

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, AccentStyle.Render("shelf> "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				if ctx.Err() != nil {
					return nil
				}

				fields := strings.Fields(scanner.Text())
				if len(fields) == 0 {
					continue
				}
				name, rest := fields[0], fields[1:]

				switch name {
				case "quit", "exit", "q":
					return nil
				case "help", "?":
					fmt.Fprintln(out, sessionHelp)
				case "ls", "list":
					items := app.Store.Filter(strings.Join(rest, " "))
					if len(items) == 0 {
						fmt.Fprintln(out, "No items found.")
						continue
					}
					fmt.Fprintln(out, renderItems(items))
				case "rm", "delete":
					if len(rest) == 0 {
						fmt.Fprintln(out, "usage: rm <id>...")
						continue
					}
					items, err := findItems(app, rest)
					if err != nil {
						fmt.Fprintln(out, ErrorStyle.Render(err.Error()))
						continue
					}
					result, err := app.Store.DeleteItems(ctx, items)
					if err := printBatch(out, "Deleted", result, err); err != nil {
						fmt.Fprintln(out, ErrorStyle.Render(err.Error()))
					}
					fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%d deletion(s) can be undone", app.Store.UndoDepth())))
				case "undo", "u":
					restored, err := app.Store.UndoLastDelete(ctx)
					switch {
					case errors.Is(err, service.ErrNothingToUndo):
						fmt.Fprintln(out, DimStyle.Render("Nothing to undo"))
					case err != nil:
						fmt.Fprintln(out, ErrorStyle.Render("✗ Undo failed: "+err.Error()))
					default:
						fmt.Fprintln(out, SuccessStyle.Render("✓ Restored "+restored))
					}
				case "reload":
					items, err := app.load(ctx)
					if err != nil {
						fmt.Fprintln(out, ErrorStyle.Render(err.Error()))
						continue
					}
					fmt.Fprintf(out, "%d items\n", len(items))
				default:
					fmt.Fprintf(out, "unknown command %q, type 'help'\n", name)
				}
			}
		},
	}
}
