package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mmcdole/shelf/internal/codec"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/prompt"
	"github.com/spf13/cobra"
)

func newListCmd(app *App) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list [query]",
		Short: "List catalog items",
		Long: `List catalog items, newest first.

Examples:
  shelf list                       # Everything
  shelf list dune                  # Fuzzy match on title and author/director
  shelf list type:movie tag:noir   # Qualifiers: type:, tag:, status:
  shelf list --json                # Machine readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}

			items := app.Store.Filter(strings.Join(args, " "))
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "No items found.")
				fmt.Fprintln(out, "Use 'shelf add' to add one.")
				return nil
			}
			fmt.Fprintln(out, renderItems(items))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of items")
	return cmd
}

func renderItems(items []*domain.Item) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(DimStyle).
		Headers("", "ID", "Title", "By", "Year", "Rating", "Status", "Tags").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
	for _, it := range items {
		year := ""
		if it.Year != 0 {
			year = strconv.Itoa(it.Year)
		}
		t.Row(typeMarker(it.Type), it.ID, it.Title, it.Creator(), year,
			prompt.Stars(it.Rating), it.Status, strings.Join(it.Tags, ", "))
	}
	return t.String()
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an item as it is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}
			item, err := findItem(app, args[0])
			if err != nil {
				return err
			}
			content, err := codec.Markdown{}.Generate(item)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, DimStyle.Render(item.Filename))
			_, err = out.Write(content)
			return err
		},
	}
}

// findItem resolves an ID, or a unique ID prefix
func findItem(app *App, id string) (*domain.Item, error) {
	if item, ok := app.Store.Item(id); ok {
		return item.Clone(), nil
	}
	var match *domain.Item
	for _, it := range app.Store.Items() {
		if strings.HasPrefix(it.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("%q matches more than one item", id)
			}
			match = it
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no item with id %q", id)
	}
	return match.Clone(), nil
}

func findItems(app *App, ids []string) ([]*domain.Item, error) {
	items := make([]*domain.Item, 0, len(ids))
	for _, id := range ids {
		item, err := findItem(app, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
