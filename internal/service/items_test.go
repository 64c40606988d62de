package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mmcdole/shelf/internal/domain"
)

// fakeAdapter is an in-memory StorageAdapter that records concurrency
type fakeAdapter struct {
	typ domain.StorageType

	mu          sync.Mutex
	connected   bool
	selectErr   error
	files       map[string]*domain.Item
	trash       map[string]*domain.Item
	failDelete  map[string]bool
	failSave    map[string]bool
	failRestore error
	delay       time.Duration

	inflight, peak int
	completed      int
	startedAfter   map[string]int // completed operations when each delete started
	seq            int
}

func newFakeAdapter(typ domain.StorageType) *fakeAdapter {
	return &fakeAdapter{
		typ:          typ,
		connected:    true,
		files:        make(map[string]*domain.Item),
		trash:        make(map[string]*domain.Item),
		failDelete:   make(map[string]bool),
		failSave:     make(map[string]bool),
		startedAfter: make(map[string]int),
	}
}

func (f *fakeAdapter) seed(items ...*domain.Item) {
	for _, it := range items {
		f.files[it.ID] = it.Clone()
	}
}

func (f *fakeAdapter) enter(id string) {
	f.mu.Lock()
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.startedAfter[id] = f.completed
	f.mu.Unlock()
	time.Sleep(f.delay)
}

func (f *fakeAdapter) leave() {
	f.inflight--
	f.completed++
}

func (f *fakeAdapter) Initialize(ctx context.Context) bool { return true }

func (f *fakeAdapter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeAdapter) SelectStorage(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return f.selectErr
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeAdapter) LoadItems(ctx context.Context, onProgress domain.ProgressFunc) ([]*domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, domain.ErrNotConnected
	}
	items := make([]*domain.Item, 0, len(f.files))
	for _, it := range f.files {
		items = append(items, it.Clone())
	}
	slices.SortFunc(items, func(a, b *domain.Item) int { return b.DateAdded.Compare(a.DateAdded) })
	if onProgress != nil {
		onProgress(0, len(items))
		for i := range items {
			onProgress(i+1, len(items))
		}
	}
	return items, nil
}

func (f *fakeAdapter) SaveItem(ctx context.Context, item *domain.Item) error {
	f.enter(item.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.leave()

	if err := item.Validate(); err != nil {
		return err
	}
	if f.failSave[item.ID] {
		return fmt.Errorf("save %s: %w", item.ID, domain.ErrOffline)
	}
	if item.ID == "" {
		f.seq++
		item.ID = fmt.Sprintf("item-%d", f.seq)
		item.Filename = item.ID + ".md"
	}
	f.files[item.ID] = item.Clone()
	return nil
}

func (f *fakeAdapter) DeleteItem(ctx context.Context, item *domain.Item) (domain.UndoEntry, error) {
	f.enter(item.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.leave()

	if f.failDelete[item.ID] {
		return domain.UndoEntry{}, fmt.Errorf("delete %s: %w", item.ID, domain.ErrRateLimited)
	}
	stored, ok := f.files[item.ID]
	if !ok {
		return domain.UndoEntry{}, domain.ErrNotFound
	}
	delete(f.files, item.ID)
	f.trash[item.ID] = stored
	return domain.UndoEntry{Backend: f.typ, ItemID: item.ID, SourceName: item.ID + ".md", TrashName: item.ID + ".md"}, nil
}

func (f *fakeAdapter) RestoreItem(ctx context.Context, entry domain.UndoEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRestore != nil {
		return "", f.failRestore
	}
	stored, ok := f.trash[entry.ItemID]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(f.trash, entry.ItemID)
	f.files[entry.ItemID] = stored
	return entry.SourceName, nil
}

func (f *fakeAdapter) WriteFile(ctx context.Context, name, content string) error { return nil }

func (f *fakeAdapter) FileExists(ctx context.Context, name string) (bool, error) { return false, nil }

func (f *fakeAdapter) GetStorageType() domain.StorageType { return f.typ }

func (f *fakeAdapter) DisplayName() string { return "fake " + string(f.typ) }

type fakeFactory struct {
	adapters map[domain.StorageType]*fakeAdapter
}

func (f *fakeFactory) Supported() []domain.StorageType {
	return []domain.StorageType{domain.StorageTypeLocal, domain.StorageTypeRemote}
}

func (f *fakeFactory) New(preferred domain.StorageType) (domain.StorageAdapter, error) {
	a, ok := f.adapters[preferred]
	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", preferred)
	}
	return a, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (r *recordingNotifier) Notify(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Level == domain.NotifyError {
			n++
		}
	}
	return n
}

func makeItems(n int) []*domain.Item {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]*domain.Item, n)
	for i := range items {
		items[i] = &domain.Item{
			ID:        fmt.Sprintf("i%02d", i),
			Title:     fmt.Sprintf("Item %d", i),
			Type:      domain.ItemTypeBook,
			DateAdded: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return items
}

// newLoadedStore returns a store connected to a fake adapter holding items, already loaded
func newLoadedStore(t *testing.T, items []*domain.Item) (*ItemStore, *fakeAdapter, *recordingNotifier) {
	t.Helper()
	local := newFakeAdapter(domain.StorageTypeLocal)
	local.seed(items...)
	notes := &recordingNotifier{}
	s := NewItemStore(&fakeFactory{adapters: map[domain.StorageType]*fakeAdapter{
		domain.StorageTypeLocal:  local,
		domain.StorageTypeRemote: newFakeAdapter(domain.StorageTypeRemote),
	}}, notes, 0, nil)

	if !s.InitializeStorage(t.Context(), domain.StorageTypeLocal) {
		t.Fatal("InitializeStorage failed")
	}
	if _, err := s.LoadItems(t.Context(), nil); err != nil {
		t.Fatalf("LoadItems failed: %v", err)
	}
	return s, local, notes
}

func ids(items []*domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestItemStore_EmptyCatalog(t *testing.T) {
	s, _, _ := newLoadedStore(t, nil)

	if len(s.Items()) != 0 {
		t.Errorf("expected no items, got %d", len(s.Items()))
	}
	if p := s.LoadProgress(); p != (domain.LoadProgress{}) {
		t.Errorf("expected {0,0} progress, got %+v", p)
	}
}

func TestItemStore_LoadRecordsProgress(t *testing.T) {
	s, _, _ := newLoadedStore(t, makeItems(3))

	if p := s.LoadProgress(); p != (domain.LoadProgress{Processed: 3, Total: 3}) {
		t.Errorf("expected {3,3}, got %+v", p)
	}
	if got := ids(s.Items()); !slices.Equal(got, []string{"i02", "i01", "i00"}) {
		t.Errorf("expected newest first, got %v", got)
	}
}

func TestItemStore_NotConnected(t *testing.T) {
	s := NewItemStore(&fakeFactory{}, nil, 0, nil)
	ctx := t.Context()
	item := makeItems(1)[0]

	if err := s.SaveItem(ctx, item); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("SaveItem: expected ErrNotConnected, got %v", err)
	}
	if err := s.DeleteItem(ctx, item); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("DeleteItem: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.DeleteItems(ctx, []*domain.Item{item}); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("DeleteItems: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.UndoLastDelete(ctx); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("UndoLastDelete: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.LoadItems(ctx, nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("LoadItems: expected ErrNotConnected, got %v", err)
	}
}

func TestItemStore_SaveUpserts(t *testing.T) {
	s, _, _ := newLoadedStore(t, makeItems(2))
	ctx := t.Context()

	fresh := &domain.Item{Title: "New", Type: domain.ItemTypeMovie}
	if err := s.SaveItem(ctx, fresh); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if got := ids(s.Items()); len(got) != 3 || got[0] != fresh.ID {
		t.Errorf("expected new item prepended, got %v", got)
	}

	edited, _ := s.Item("i00")
	edited = edited.Clone()
	edited.Rating = 4
	if err := s.SaveItem(ctx, edited); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if got := ids(s.Items()); len(got) != 3 || got[2] != "i00" {
		t.Errorf("expected in-place replacement, got %v", got)
	}
	if it, _ := s.Item("i00"); it.Rating != 4 {
		t.Errorf("expected updated rating, got %d", it.Rating)
	}
}

func TestItemStore_SaveErrorLeavesList(t *testing.T) {
	s, fake, _ := newLoadedStore(t, makeItems(1))
	fake.failSave["i00"] = true

	item, _ := s.Item("i00")
	edited := item.Clone()
	edited.Title = "Changed"
	if err := s.SaveItem(t.Context(), edited); !errors.Is(err, domain.ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if it, _ := s.Item("i00"); it.Title != "Item 0" {
		t.Errorf("list changed after failed save: %q", it.Title)
	}
}

func TestItemStore_BatchDeleteIsolatesFailures(t *testing.T) {
	items := makeItems(15)
	s, fake, _ := newLoadedStore(t, items)
	for _, id := range []string{"i03", "i07", "i12"} {
		fake.failDelete[id] = true
	}

	result, err := s.DeleteItems(t.Context(), items)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 3 {
		t.Fatalf("expected 3 aggregated errors, got %v", err)
	}
	var itemErr *domain.ItemError
	if !errors.As(merr.Errors[0], &itemErr) || itemErr.Op != "delete" {
		t.Errorf("expected ItemError, got %v", merr.Errors[0])
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Error("expected aggregate to wrap the cause")
	}

	if len(result.Succeeded) != 12 || len(result.Failed) != 3 {
		t.Errorf("expected 12/3, got %d/%d", len(result.Succeeded), len(result.Failed))
	}
	if s.UndoDepth() != 12 {
		t.Errorf("expected 12 undo entries, got %d", s.UndoDepth())
	}
	if got := ids(s.Items()); !slices.Equal(got, []string{"i12", "i07", "i03"}) {
		t.Errorf("expected only failed items to remain, got %v", got)
	}
}

func TestItemStore_BatchesRunSequentially(t *testing.T) {
	items := makeItems(15)
	s, fake, _ := newLoadedStore(t, items)
	fake.delay = 10 * time.Millisecond

	if _, err := s.DeleteItems(t.Context(), items); err != nil {
		t.Fatalf("DeleteItems failed: %v", err)
	}

	if fake.peak > DefaultBatchSize {
		t.Errorf("expected at most %d in flight, saw %d", DefaultBatchSize, fake.peak)
	}
	if fake.peak < 2 {
		t.Errorf("expected concurrent operations within a batch, peak was %d", fake.peak)
	}
	for _, it := range items[10:] {
		if done := fake.startedAfter[it.ID]; done < 10 {
			t.Errorf("%s started with only %d operations settled", it.ID, done)
		}
	}
}

func TestPartition(t *testing.T) {
	var sizes []int
	for _, b := range partition(makeItems(15), 10) {
		sizes = append(sizes, len(b))
	}
	if !slices.Equal(sizes, []int{10, 5}) {
		t.Errorf("expected [10 5], got %v", sizes)
	}
	if len(partition(nil, 10)) != 0 {
		t.Error("expected no batches for no items")
	}
}

func TestItemStore_DeleteFifteenOfTwentyFive(t *testing.T) {
	items := makeItems(25)
	s, fake, _ := newLoadedStore(t, items)

	result, err := s.DeleteItems(t.Context(), items[:15])
	if err != nil {
		t.Fatalf("DeleteItems failed: %v", err)
	}
	if len(result.Succeeded) != 15 || len(result.Failed) != 0 {
		t.Errorf("expected 15/0, got %d/%d", len(result.Succeeded), len(result.Failed))
	}
	if n := len(s.Items()); n != 10 {
		t.Errorf("expected 10 remaining, got %d", n)
	}
	if s.UndoDepth() != 15 {
		t.Errorf("expected 15 undo entries, got %d", s.UndoDepth())
	}
	if len(fake.trash) != 15 {
		t.Errorf("expected 15 trashed files, got %d", len(fake.trash))
	}
}

func TestItemStore_CancelledBeforeBatch(t *testing.T) {
	items := makeItems(3)
	s, _, _ := newLoadedStore(t, items)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	result, err := s.DeleteItems(ctx, items)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(result.Failed) != 3 || len(s.Items()) != 3 || s.UndoDepth() != 0 {
		t.Errorf("expected nothing deleted, got %+v", result)
	}
}

func TestItemStore_UndoIsLIFO(t *testing.T) {
	s, _, _ := newLoadedStore(t, makeItems(3))
	ctx := t.Context()

	a, _ := s.Item("i00")
	b, _ := s.Item("i01")
	if err := s.DeleteItem(ctx, a); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if err := s.DeleteItem(ctx, b); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if got := ids(s.Items()); !slices.Equal(got, []string{"i02"}) {
		t.Fatalf("unexpected list after delete: %v", got)
	}

	name, err := s.UndoLastDelete(ctx)
	if err != nil || name != "i01.md" {
		t.Fatalf("expected i01 restored first, got %q %v", name, err)
	}
	name, err = s.UndoLastDelete(ctx)
	if err != nil || name != "i00.md" {
		t.Fatalf("expected i00 restored second, got %q %v", name, err)
	}

	// Restores reload the full list
	if got := ids(s.Items()); !slices.Equal(got, []string{"i02", "i01", "i00"}) {
		t.Errorf("expected full list after undo, got %v", got)
	}
	if _, err := s.UndoLastDelete(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestItemStore_FailedUndoKeepsEntry(t *testing.T) {
	s, fake, _ := newLoadedStore(t, makeItems(2))
	ctx := t.Context()

	item, _ := s.Item("i00")
	s.DeleteItem(ctx, item)
	fake.failRestore = domain.ErrOffline

	if _, err := s.UndoLastDelete(ctx); !errors.Is(err, domain.ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if s.UndoDepth() != 1 {
		t.Errorf("expected entry to be re-pushed, depth %d", s.UndoDepth())
	}

	fake.failRestore = nil
	if _, err := s.UndoLastDelete(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s.UndoDepth() != 0 || len(s.Items()) != 2 {
		t.Errorf("expected restored catalog, depth %d items %d", s.UndoDepth(), len(s.Items()))
	}
}

func TestItemStore_ApplyBatchEdit(t *testing.T) {
	items := makeItems(4)
	items[0].Tags = []string{"old", "keep"}
	s, fake, _ := newLoadedStore(t, items)
	fake.failSave["i02"] = true

	status := "read"
	rating := 5
	changes := domain.BatchChanges{
		Status:     &status,
		Rating:     &rating,
		AddTags:    []string{"new", "keep"},
		RemoveTags: []string{"old"},
	}
	result, err := s.ApplyBatchEdit(t.Context(), []string{"i00", "i01", "i02", "missing"}, changes)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if len(result.Succeeded) != 2 || len(result.Failed) != 2 {
		t.Fatalf("expected 2/2, got %+v", result)
	}
	if !errors.Is(result.Failed["missing"], domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", result.Failed["missing"])
	}

	first, _ := s.Item("i00")
	if first.Status != "read" || first.Rating != 5 || !slices.Equal(first.Tags, []string{"keep", "new"}) {
		t.Errorf("unexpected edited item %+v", first)
	}
	failed, _ := s.Item("i02")
	if failed.Status != "" || failed.Rating != 0 {
		t.Errorf("failed item should be untouched, got %+v", failed)
	}
	untouched, _ := s.Item("i03")
	if untouched.Status != "" {
		t.Errorf("unselected item changed: %+v", untouched)
	}
}

func TestItemStore_ApplyBatchEditAddTagTwice(t *testing.T) {
	s, _, _ := newLoadedStore(t, makeItems(1))
	changes := domain.BatchChanges{AddTags: []string{"x"}}

	for range 2 {
		if _, err := s.ApplyBatchEdit(t.Context(), []string{"i00"}, changes); err != nil {
			t.Fatalf("ApplyBatchEdit failed: %v", err)
		}
	}
	if it, _ := s.Item("i00"); !slices.Equal(it.Tags, []string{"x"}) {
		t.Errorf("expected tags [x], got %v", it.Tags)
	}
}

func TestItemStore_ApplyBatchEditNoChanges(t *testing.T) {
	s, _, _ := newLoadedStore(t, makeItems(2))
	result, err := s.ApplyBatchEdit(t.Context(), []string{"i00"}, domain.BatchChanges{})
	if err != nil || len(result.Succeeded) != 0 {
		t.Errorf("expected no-op, got %+v %v", result, err)
	}
}

func TestItemStore_SelectStorage(t *testing.T) {
	s, local, notes := newLoadedStore(t, makeItems(2))
	ctx := t.Context()
	item, _ := s.Item("i00")
	s.DeleteItem(ctx, item)

	factory := s.factory.(*fakeFactory)
	remote := factory.adapters[domain.StorageTypeRemote]

	// Cancel is silent and keeps the session
	remote.selectErr = domain.ErrUserCancelled
	if s.SelectStorage(ctx, domain.StorageTypeRemote) {
		t.Fatal("expected cancelled selection to report false")
	}
	if notes.errors() != 0 || s.StorageType() != domain.StorageTypeLocal || s.UndoDepth() != 1 {
		t.Errorf("cancel should not notify or change session")
	}

	// Other failures are surfaced
	remote.selectErr = domain.ErrAuthFailed
	if s.SelectStorage(ctx, domain.StorageTypeRemote) {
		t.Fatal("expected failed selection to report false")
	}
	if notes.errors() != 1 {
		t.Errorf("expected one error notification, got %d", notes.errors())
	}

	// Success switches backend and clears session state
	remote.selectErr = nil
	if !s.SelectStorage(ctx, domain.StorageTypeRemote) {
		t.Fatal("expected selection to succeed")
	}
	if s.StorageType() != domain.StorageTypeRemote || len(s.Items()) != 0 || s.UndoDepth() != 0 {
		t.Errorf("expected fresh remote session")
	}
	if local.IsConnected() {
		t.Error("expected previous backend to be disconnected")
	}
}

func TestItemStore_DisconnectClearsSession(t *testing.T) {
	s, fake, _ := newLoadedStore(t, makeItems(3))
	ctx := t.Context()
	item, _ := s.Item("i00")
	s.DeleteItem(ctx, item)

	s.DisconnectStorage(ctx)
	if s.IsConnected() || fake.IsConnected() {
		t.Error("expected disconnected")
	}
	if len(s.Items()) != 0 || s.UndoDepth() != 0 {
		t.Errorf("expected empty session, items %d undo %d", len(s.Items()), s.UndoDepth())
	}
}

func TestItemStore_Filter(t *testing.T) {
	items := makeItems(3)
	items[1].Title = "Dune"
	items[1].Author = "Frank Herbert"
	s, _, _ := newLoadedStore(t, items)

	got := s.Filter("herbert")
	if len(got) != 1 || got[0].ID != "i01" {
		t.Errorf("expected Dune, got %v", ids(got))
	}
}
