// Package prompt implements the interactive terminal forms used by the CLI.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/storage/remote/drive"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a terminal
var ErrNotInteractive = errors.New("an interactive terminal is required")

// Statuses offered by the item form
var Statuses = []string{"", "want", "in-progress", "finished", "abandoned"}

// Interactive reports whether stdin is attached to a terminal
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func run(ctx context.Context, form *huh.Form) error {
	if !Interactive() {
		return ErrNotInteractive
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return domain.ErrUserCancelled
		}
		return err
	}
	return nil
}

// === Storage selection ===

// DirectoryPicker asks for the catalog directory. Implements domain.DirectoryPicker.
type DirectoryPicker struct{}

func NewDirectoryPicker() *DirectoryPicker { return &DirectoryPicker{} }

func (p *DirectoryPicker) PickDirectory(ctx context.Context, suggested string) (string, error) {
	dir := suggested
	if dir == "" {
		dir, _ = os.Getwd()
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Catalog folder").
			Description("Directory holding your markdown records").
			Value(&dir).
			Validate(ValidateDirectory),
	))
	if err := run(ctx, form); err != nil {
		return "", err
	}
	return ExpandHome(strings.TrimSpace(dir)), nil
}

// ValidateDirectory accepts an existing directory path
func ValidateDirectory(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("a folder is required")
	}
	info, err := os.Stat(ExpandHome(s))
	if err != nil {
		return fmt.Errorf("cannot open %s", s)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a folder", s)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// TokenPrompt reads a pasted bearer token. Implements domain.TokenSource.
type TokenPrompt struct{}

func (TokenPrompt) Token(ctx context.Context) (string, error) {
	var token string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Access token").
			Description("Paste a Drive access token").
			EchoMode(huh.EchoModePassword).
			Value(&token).
			Validate(required("token")),
	))
	if err := run(ctx, form); err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// ShowDeviceCode returns a callback that prints sign-in instructions to w
func ShowDeviceCode(w io.Writer) func(drive.DeviceCode) {
	return func(code drive.DeviceCode) {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "To sign in, visit: %s\n", code.VerificationURL)
		fmt.Fprintf(w, "Enter code: %s\n", code.UserCode)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Waiting for authorization...")
	}
}

// Confirm asks a yes/no question
func Confirm(ctx context.Context, title string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok),
	))
	if err := run(ctx, form); err != nil {
		return false, err
	}
	return ok, nil
}

// === Item form ===

// itemFields holds the string form of an item while it is being edited
type itemFields struct {
	Title   string
	Type    domain.ItemType
	Creator string
	Actors  string
	ISBN    string
	Year    string
	Rating  int
	Tags    string
	Status  string
	Cover   string
	Review  string
}

func fieldsFrom(item *domain.Item) itemFields {
	f := itemFields{
		Title:   item.Title,
		Type:    item.Type,
		Creator: item.Creator(),
		Actors:  strings.Join(item.Actors, ", "),
		ISBN:    item.ISBN,
		Rating:  item.Rating,
		Tags:    strings.Join(item.Tags, ", "),
		Status:  item.Status,
		Cover:   item.CoverURL,
		Review:  item.Review,
	}
	if f.Type == "" {
		f.Type = domain.ItemTypeBook
	}
	if item.Year != 0 {
		f.Year = strconv.Itoa(item.Year)
	}
	return f
}

// apply copies the edited fields onto item, leaving locators untouched
func (f itemFields) apply(item *domain.Item) error {
	year, err := ParseYear(f.Year)
	if err != nil {
		return err
	}
	item.Title = strings.TrimSpace(f.Title)
	item.Type = f.Type
	item.Author, item.Director = "", ""
	if f.Type == domain.ItemTypeMovie {
		item.Director = strings.TrimSpace(f.Creator)
		item.Actors = SplitList(f.Actors)
	} else {
		item.Author = strings.TrimSpace(f.Creator)
		item.Actors = nil
	}
	item.ISBN = strings.TrimSpace(f.ISBN)
	item.Year = year
	item.Rating = f.Rating
	item.Tags = SplitList(f.Tags)
	item.Status = f.Status
	item.CoverURL = strings.TrimSpace(f.Cover)
	item.Review = f.Review
	return item.Validate()
}

// EditItem runs the add/edit form and writes the result into item
func EditItem(ctx context.Context, item *domain.Item) error {
	f := fieldsFrom(item)

	ratings := make([]huh.Option[int], 0, domain.MaxRating+1)
	for r := 0; r <= domain.MaxRating; r++ {
		ratings = append(ratings, huh.NewOption(Stars(r), r))
	}
	statuses := make([]huh.Option[string], 0, len(Statuses))
	for _, s := range Statuses {
		label := s
		if label == "" {
			label = "none"
		}
		statuses = append(statuses, huh.NewOption(label, s))
	}
	if !slices.Contains(Statuses, f.Status) {
		statuses = append(statuses, huh.NewOption(f.Status, f.Status))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&f.Title).Validate(required("title")),
			huh.NewSelect[domain.ItemType]().
				Title("Type").
				Options(
					huh.NewOption("Book", domain.ItemTypeBook),
					huh.NewOption("Movie", domain.ItemTypeMovie),
				).
				Value(&f.Type),
			huh.NewInput().Title("Author / Director").Value(&f.Creator),
			huh.NewInput().Title("Year").Value(&f.Year).Validate(func(s string) error {
				_, err := ParseYear(s)
				return err
			}),
		),
		huh.NewGroup(
			huh.NewSelect[int]().Title("Rating").Options(ratings...).Value(&f.Rating),
			huh.NewSelect[string]().Title("Status").Options(statuses...).Value(&f.Status),
			huh.NewInput().Title("Tags").Description("Comma separated").Value(&f.Tags),
			huh.NewInput().Title("Actors").Description("Movies only, comma separated").Value(&f.Actors),
			huh.NewInput().Title("ISBN").Value(&f.ISBN),
			huh.NewInput().Title("Cover URL").Value(&f.Cover),
		),
		huh.NewGroup(
			huh.NewText().Title("Review").Value(&f.Review),
		),
	)
	if err := run(ctx, form); err != nil {
		return err
	}
	return f.apply(item)
}

// === Parsing helpers ===

// ParseYear accepts an empty string (no year) or a four digit year
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 0 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

// SplitList parses a comma separated list, dropping blanks and duplicates
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

// Stars renders a 0-5 rating
func Stars(rating int) string {
	if rating <= 0 {
		return "unrated"
	}
	rating = min(rating, domain.MaxRating)
	return strings.Repeat("★", rating) + strings.Repeat("☆", domain.MaxRating-rating)
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
