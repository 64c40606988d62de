package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/prompt"
	"github.com/mmcdole/shelf/internal/service"
	"github.com/spf13/cobra"
)

func newAddCmd(app *App) *cobra.Command {
	var (
		title, kind, by, status, review string
		year, rating                    int
		tags                            []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book or movie",
		Long: `Add a book or movie to the catalog.

Without --title an interactive form is shown.

Examples:
  shelf add
  shelf add --title "Dune" --by "Frank Herbert" --year 1965
  shelf add --type movie --title "Alien" --by "Ridley Scott" --rating 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}

			item := &domain.Item{
				Title:  title,
				Type:   domain.ItemType(kind),
				Year:   year,
				Rating: rating,
				Tags:   tags,
				Status: status,
				Review: review,
			}
			if item.Type == domain.ItemTypeMovie {
				item.Director = by
			} else {
				item.Author = by
			}

			if title == "" {
				if err := prompt.EditItem(ctx, item); err != nil {
					return ignoreCancel(err)
				}
			}
			if err := app.Store.SaveItem(ctx, item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", AccentStyle.Render(item.Filename))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title")
	cmd.Flags().StringVar(&kind, "type", string(domain.ItemTypeBook), "book or movie")
	cmd.Flags().StringVar(&by, "by", "", "Author (books) or director (movies)")
	cmd.Flags().IntVar(&year, "year", 0, "Release or publication year")
	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 0 to 5")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags (repeatable)")
	cmd.Flags().StringVar(&status, "status", "", "Reading or watching status")
	cmd.Flags().StringVar(&review, "review", "", "Review text")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an item in a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			item, err := findItem(app, args[0])
			if err != nil {
				return err
			}
			if err := prompt.EditItem(ctx, item); err != nil {
				return ignoreCancel(err)
			}
			if err := app.Store.SaveItem(ctx, item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", AccentStyle.Render(item.Filename))
			return nil
		},
	}
}

func newSetCmd(app *App) *cobra.Command {
	var (
		status, author, director, cover string
		rating, year                    int
		addTags, removeTags             []string
	)

	cmd := &cobra.Command{
		Use:   "set <id>...",
		Short: "Change fields on several items at once",
		Long: `Change fields on several items at once.

Only the flags given are changed.

Examples:
  shelf set dune-1700000000000 --status finished --rating 4
  shelf set a-1 b-2 c-3 --add-tag favorites --remove-tag unsorted`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()

			var changes domain.BatchChanges
			if flags.Changed("status") {
				changes.Status = &status
			}
			if flags.Changed("rating") {
				changes.Rating = &rating
			}
			if flags.Changed("year") {
				changes.Year = &year
			}
			if flags.Changed("author") {
				changes.Author = &author
			}
			if flags.Changed("director") {
				changes.Director = &director
			}
			if flags.Changed("cover") {
				changes.CoverURL = &cover
			}
			changes.AddTags = addTags
			changes.RemoveTags = removeTags
			if changes.IsEmpty() {
				return errors.New("nothing to change, see 'shelf set --help'")
			}

			if err := app.open(ctx); err != nil {
				return err
			}
			items, err := findItems(app, args)
			if err != nil {
				return err
			}
			ids := make([]string, len(items))
			for i, it := range items {
				ids[i] = it.ID
			}

			result, err := app.Store.ApplyBatchEdit(ctx, ids, changes)
			return printBatch(cmd.OutOrStdout(), "Updated", result, err)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Status")
	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 0 to 5")
	cmd.Flags().IntVar(&year, "year", 0, "Year")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	cmd.Flags().StringVar(&director, "director", "", "Director")
	cmd.Flags().StringVar(&cover, "cover", "", "Cover image URL")
	cmd.Flags().StringSliceVar(&addTags, "add-tag", nil, "Tags to add")
	cmd.Flags().StringSliceVar(&removeTags, "remove-tag", nil, "Tags to remove")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Move items to the catalog's .trash folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			items, err := findItems(app, args)
			if err != nil {
				return err
			}

			if !yes {
				ok, err := prompt.Confirm(ctx, fmt.Sprintf("Move %d item(s) to trash?", len(items)))
				if err != nil {
					return ignoreCancel(err)
				}
				if !ok {
					return nil
				}
			}

			result, err := app.Store.DeleteItems(ctx, items)
			return printBatch(cmd.OutOrStdout(), "Deleted", result, err)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

// printBatch reports per-item outcomes of a batch operation and condenses its error
func printBatch(w io.Writer, verb string, result service.BatchResult, err error) error {
	if len(result.Succeeded) > 0 {
		fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf("✓ %s %d item(s)", verb, len(result.Succeeded))))
	}
	for _, id := range slices.Sorted(maps.Keys(result.Failed)) {
		fmt.Fprintln(w, ErrorStyle.Render(fmt.Sprintf("✗ %s: %v", id, result.Failed[id])))
	}
	if n := len(result.Failed); n > 0 {
		return fmt.Errorf("%d item(s) failed", n)
	}
	return err
}

// ignoreCancel treats a dismissed prompt as a successful no-op
func ignoreCancel(err error) error {
	if errors.Is(err, domain.ErrUserCancelled) {
		return nil
	}
	return err
}
