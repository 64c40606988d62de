package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mmcdole/shelf/internal/config"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/log"
)

type mapPrefs struct {
	mu sync.Mutex
	m  map[string]string
}

func (p *mapPrefs) GetString(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[key]
}

func (p *mapPrefs) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return nil
}

type dirPicker string

func (d dirPicker) PickDirectory(ctx context.Context, suggested string) (string, error) {
	return string(d), nil
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Remote.Token = ""
	cfg.Remote.ClientID = ""
	app := NewApp(cfg, Options{
		Prefs:  &mapPrefs{m: map[string]string{}},
		Picker: dirPicker(dir),
	}, log.NullLogger())
	return app, dir
}

func execute(t *testing.T, app *App, input string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app, "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, app *App, args ...string) string {
	t.Helper()
	out, err := execute(t, app, "", args...)
	if err != nil {
		t.Fatalf("shelf %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func listJSON(t *testing.T, app *App, query ...string) []domain.Item {
	t.Helper()
	out := mustExecute(t, app, append([]string{"list", "--json"}, query...)...)
	var items []domain.Item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	return items
}

func recordFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestCommandsRequireConnection(t *testing.T) {
	app, _ := newTestApp(t)
	for _, args := range [][]string{{"list"}, {"show", "x"}, {"delete", "-y", "x"}, {"session"}} {
		if _, err := execute(t, app, "", args...); !errors.Is(err, ErrNoStorage) {
			t.Errorf("shelf %v: err = %v, want ErrNoStorage", args, err)
		}
	}
	out := mustExecute(t, app, "status")
	if !strings.Contains(out, "Not connected") {
		t.Errorf("status = %q", out)
	}
}

func TestConnectUnavailableBackend(t *testing.T) {
	app, _ := newTestApp(t)
	_, err := execute(t, app, "", "connect", "remote")
	if err == nil || !strings.Contains(err.Error(), "not available") {
		t.Errorf("err = %v", err)
	}
}

func TestConnectAddList(t *testing.T) {
	app, dir := newTestApp(t)

	out := mustExecute(t, app, "connect", "local")
	if !strings.Contains(out, "0 items") {
		t.Errorf("connect output = %q", out)
	}
	if got := app.Prefs.GetString(domain.PrefLocalDir); got != dir {
		t.Errorf("local dir pref = %q, want %q", got, dir)
	}

	mustExecute(t, app, "add", "--title", "Dune", "--by", "Frank Herbert", "--year", "1965", "--tag", "sci-fi")
	mustExecute(t, app, "add", "--type", "movie", "--title", "Alien", "--by", "Ridley Scott", "--rating", "5")

	if files := recordFiles(t, dir); len(files) != 2 {
		t.Fatalf("record files = %v", files)
	}

	items := listJSON(t, app)
	if len(items) != 2 {
		t.Fatalf("listed %d items", len(items))
	}
	movies := listJSON(t, app, "type:movie")
	if len(movies) != 1 || movies[0].Director != "Ridley Scott" {
		t.Errorf("type:movie = %+v", movies)
	}

	table := mustExecute(t, app, "list", "dune")
	if !strings.Contains(table, "Dune") || strings.Contains(table, "Alien") {
		t.Errorf("list dune =\n%s", table)
	}

	show := mustExecute(t, app, "show", movies[0].ID)
	if !strings.Contains(show, "title: Alien") {
		t.Errorf("show =\n%s", show)
	}

	status := mustExecute(t, app, "status")
	if !strings.Contains(status, "1 books") || !strings.Contains(status, "1 movies") {
		t.Errorf("status = %q", status)
	}
}

func TestAddRejectsInvalidItem(t *testing.T) {
	app, _ := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	_, err := execute(t, app, "", "add", "--title", "Dune", "--rating", "9")
	if !errors.Is(err, domain.ErrInvalidItem) {
		t.Errorf("err = %v", err)
	}
}

func TestSetAndDelete(t *testing.T) {
	app, dir := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	mustExecute(t, app, "add", "--title", "Dune", "--by", "Frank Herbert")
	mustExecute(t, app, "add", "--title", "Emma", "--by", "Jane Austen", "--tag", "unsorted")

	items := listJSON(t, app)
	ids := []string{items[0].ID, items[1].ID}

	out := mustExecute(t, app, "set", ids[0], ids[1], "--status", "finished", "--add-tag", "classic", "--remove-tag", "unsorted")
	if !strings.Contains(out, "Updated 2 item(s)") {
		t.Errorf("set output = %q", out)
	}
	for _, it := range listJSON(t, app) {
		if it.Status != "finished" || len(it.Tags) != 1 || it.Tags[0] != "classic" {
			t.Errorf("after set: %+v", it)
		}
	}

	if _, err := execute(t, app, "", "set", ids[0]); err == nil {
		t.Error("set without flags should fail")
	}
	if _, err := execute(t, app, "", "set", "nope", "--status", "x"); err == nil {
		t.Error("set with unknown id should fail")
	}

	out = mustExecute(t, app, "delete", "--yes", ids[0])
	if !strings.Contains(out, "Deleted 1 item(s)") {
		t.Errorf("delete output = %q", out)
	}
	if files := recordFiles(t, dir); len(files) != 1 {
		t.Errorf("record files after delete = %v", files)
	}
	trashed, _ := filepath.Glob(filepath.Join(dir, ".trash", "*.md"))
	if len(trashed) != 1 {
		t.Errorf("trash = %v", trashed)
	}
}

func TestSessionUndo(t *testing.T) {
	app, dir := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	mustExecute(t, app, "add", "--title", "Dune")
	mustExecute(t, app, "add", "--title", "Emma")
	items := listJSON(t, app)

	input := strings.Join([]string{
		"rm " + items[0].ID + " " + items[1].ID,
		"ls",
		"undo",
		"undo",
		"undo",
		"bogus",
		"quit",
	}, "\n") + "\n"
	out, err := execute(t, app, input, "session")
	if err != nil {
		t.Fatalf("session: %v\n%s", err, out)
	}

	for _, want := range []string{"Deleted 2 item(s)", "2 deletion(s) can be undone", "No items found", "Restored", "Nothing to undo", `unknown command "bogus"`} {
		if !strings.Contains(out, want) {
			t.Errorf("session output missing %q:\n%s", want, out)
		}
	}
	if files := recordFiles(t, dir); len(files) != 2 {
		t.Errorf("record files after undo = %v", files)
	}
}

func TestSessionEndsAtEOF(t *testing.T) {
	app, _ := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	if _, err := execute(t, app, "help\n", "session"); err != nil {
		t.Fatal(err)
	}
}

func TestDisconnect(t *testing.T) {
	app, _ := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	mustExecute(t, app, "disconnect")
	if app.Prefs.GetString(domain.PrefLocalDir) != "" {
		t.Error("disconnect should forget the local dir")
	}
	if _, err := execute(t, app, "", "list"); !errors.Is(err, ErrNoStorage) {
		t.Errorf("list after disconnect: %v", err)
	}
}

func TestCacheAndFolderCommands(t *testing.T) {
	app, _ := newTestApp(t)
	out := mustExecute(t, app, "cache", "stats")
	if !strings.Contains(out, "Cache disabled") {
		t.Errorf("cache stats = %q", out)
	}

	mustExecute(t, app, "connect", "local")
	if _, err := execute(t, app, "", "folder", "probe"); err == nil {
		t.Error("folder probe on a local catalog should fail")
	}
}

func TestFindItemPrefix(t *testing.T) {
	app, _ := newTestApp(t)
	mustExecute(t, app, "connect", "local")
	mustExecute(t, app, "add", "--title", "Dune")
	mustExecute(t, app, "add", "--title", "Dune Messiah")
	mustExecute(t, app, "add", "--title", "Emma")
	if err := app.open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if item, err := findItem(app, "emma"); err != nil || item.Title != "Emma" {
		t.Errorf("findItem(emma) = %v, %v", item, err)
	}
	if _, err := findItem(app, "dune"); err == nil {
		t.Error("ambiguous prefix should fail")
	}
	if _, err := findItem(app, "zzz"); err == nil {
		t.Error("unknown id should fail")
	}
}
