// Package service orchestrates the catalog on top of a storage adapter.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/search"
)

// ErrNothingToUndo is returned by UndoLastDelete when the undo stack is empty
var ErrNothingToUndo = errors.New("nothing to undo")

// AdapterFactory creates storage adapters by backend type
type AdapterFactory interface {
	Supported() []domain.StorageType
	New(preferred domain.StorageType) (domain.StorageAdapter, error)
}

// ItemStore owns the in-memory catalog, the active adapter and the undo stack
type ItemStore struct {
	factory   AdapterFactory
	notifier  domain.Notifier
	logger    *slog.Logger
	batchSize int

	mu       sync.RWMutex
	adapter  domain.StorageAdapter
	items    []*domain.Item
	undo     []domain.UndoEntry
	progress domain.LoadProgress
}

// NewItemStore creates an item store. notifier may be nil; batchSize <= 0 uses DefaultBatchSize.
func NewItemStore(factory AdapterFactory, notifier domain.Notifier, batchSize int, logger *slog.Logger) *ItemStore {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = domain.NoOpNotifier{}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ItemStore{
		factory:   factory,
		notifier:  notifier,
		logger:    logger,
		batchSize: batchSize,
	}
}

// === Lifecycle ===

// InitializeStorage creates the adapter for preferred and lets it restore a previous session.
// Reports whether the backend is usable without prompting.
func (s *ItemStore) InitializeStorage(ctx context.Context, preferred domain.StorageType) bool {
	adapter, err := s.factory.New(preferred)
	if err != nil {
		s.notifyError("Could not set up storage", err)
		return false
	}

	ok := adapter.Initialize(ctx)
	s.install(adapter)
	s.logger.Info("storage initialized", "type", adapter.GetStorageType(), "usable", ok, "connected", adapter.IsConnected())
	return ok
}

// SelectStorage prompts for a folder or sign-in on the given backend.
// A cancelled prompt keeps the current session and reports false without a notification.
func (s *ItemStore) SelectStorage(ctx context.Context, storageType domain.StorageType) bool {
	s.mu.RLock()
	current := s.adapter
	s.mu.RUnlock()

	adapter := current
	if adapter == nil || adapter.GetStorageType() != storageType {
		var err error
		if adapter, err = s.factory.New(storageType); err != nil {
			s.notifyError("Could not set up storage", err)
			return false
		}
	}

	if err := adapter.SelectStorage(ctx); err != nil {
		if errors.Is(err, domain.ErrUserCancelled) {
			s.logger.Debug("storage selection cancelled", "type", storageType)
			return false
		}
		s.notifyError("Could not connect", err)
		return false
	}

	if current != nil && current != adapter && current.IsConnected() {
		if err := current.Disconnect(ctx); err != nil {
			s.logger.Warn("failed to disconnect previous storage", "error", err)
		}
	}
	s.install(adapter)
	s.notifier.Notify(domain.Notification{
		Level:   domain.NotifyInfo,
		Message: fmt.Sprintf("Connected to %s", displayName(adapter)),
	})
	return true
}

// DisconnectStorage releases the backend and forgets the session's items and undo history
func (s *ItemStore) DisconnectStorage(ctx context.Context) {
	s.mu.Lock()
	adapter := s.adapter
	s.items = nil
	s.undo = nil
	s.progress = domain.LoadProgress{}
	s.mu.Unlock()

	if adapter == nil {
		return
	}
	if err := adapter.Disconnect(ctx); err != nil {
		s.notifyError("Could not disconnect", err)
		return
	}
	s.notifier.Notify(domain.Notification{Level: domain.NotifyInfo, Message: "Disconnected"})
}

// install makes adapter active and resets session state
func (s *ItemStore) install(adapter domain.StorageAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapter = adapter
	s.items = nil
	s.undo = nil
	s.progress = domain.LoadProgress{}
}

// connected returns the active adapter or ErrNotConnected
func (s *ItemStore) connected() (domain.StorageAdapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adapter == nil || !s.adapter.IsConnected() {
		return nil, domain.ErrNotConnected
	}
	return s.adapter, nil
}

// === Loading ===

// LoadItems reloads the catalog from the active adapter
func (s *ItemStore) LoadItems(ctx context.Context, onProgress domain.ProgressFunc) ([]*domain.Item, error) {
	s.mu.RLock()
	adapter := s.adapter
	s.mu.RUnlock()
	return s.LoadItemsFrom(ctx, adapter, onProgress)
}

// LoadItemsFrom loads from adapter. The in-memory list is replaced only when adapter is the active one.
func (s *ItemStore) LoadItemsFrom(ctx context.Context, adapter domain.StorageAdapter, onProgress domain.ProgressFunc) ([]*domain.Item, error) {
	if adapter == nil || !adapter.IsConnected() {
		return nil, domain.ErrNotConnected
	}

	items, err := adapter.LoadItems(ctx, func(processed, total int) {
		s.mu.Lock()
		s.progress = domain.LoadProgress{Processed: processed, Total: total}
		s.mu.Unlock()
		if onProgress != nil {
			onProgress(processed, total)
		}
	})
	if err != nil {
		s.notifyError("Could not load items", err)
		return nil, err
	}

	s.mu.Lock()
	if s.adapter == adapter {
		s.items = items
	}
	s.mu.Unlock()

	s.logger.Debug("items loaded", "count", len(items), "type", adapter.GetStorageType())
	return slices.Clone(items), nil
}

// LoadProgress returns the last progress reported by a load
func (s *ItemStore) LoadProgress() domain.LoadProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// === Single-item operations ===

// SaveItem persists item and updates the list: replaced by ID, or prepended if new
func (s *ItemStore) SaveItem(ctx context.Context, item *domain.Item) error {
	adapter, err := s.connected()
	if err != nil {
		return err
	}
	if err := adapter.SaveItem(ctx, item); err != nil {
		return err
	}

	s.mu.Lock()
	s.upsert(item.Clone())
	s.mu.Unlock()
	return nil
}

// upsert replaces the item with the same ID or prepends it (mu held)
func (s *ItemStore) upsert(item *domain.Item) {
	if i := slices.IndexFunc(s.items, func(it *domain.Item) bool { return it.ID == item.ID }); i >= 0 {
		s.items[i] = item
		return
	}
	s.items = append([]*domain.Item{item}, s.items...)
}

// DeleteItem trashes item, remembering how to undo it
func (s *ItemStore) DeleteItem(ctx context.Context, item *domain.Item) error {
	adapter, err := s.connected()
	if err != nil {
		return err
	}
	entry, err := adapter.DeleteItem(ctx, item)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.undo = append(s.undo, entry)
	s.removeIDs([]string{item.ID})
	s.mu.Unlock()
	return nil
}

// removeIDs drops items by ID (mu held)
func (s *ItemStore) removeIDs(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.items = slices.DeleteFunc(s.items, func(it *domain.Item) bool {
		return slices.Contains(ids, it.ID)
	})
}

// === Batch operations ===

// DeleteItems trashes items in batches. Failures do not stop the remaining items;
// each success pushes one undo entry and leaves the list.
func (s *ItemStore) DeleteItems(ctx context.Context, items []*domain.Item) (BatchResult, error) {
	adapter, err := s.connected()
	if err != nil {
		return BatchResult{}, err
	}

	result, err := runBatches(ctx, "delete", items, s.batchSize, adapter.DeleteItem,
		func(outcomes []outcome[domain.UndoEntry]) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var deleted []string
			for _, o := range outcomes {
				if o.err == nil {
					s.undo = append(s.undo, o.value)
					deleted = append(deleted, o.item.ID)
				}
			}
			s.removeIDs(deleted)
		})

	s.logger.Info("batch delete finished", "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return result, err
}

// ApplyBatchEdit applies changes to the items with the given IDs and persists them in batches.
// Only successfully saved items are updated in the list.
func (s *ItemStore) ApplyBatchEdit(ctx context.Context, ids []string, changes domain.BatchChanges) (BatchResult, error) {
	adapter, err := s.connected()
	if err != nil {
		return BatchResult{}, err
	}
	if changes.IsEmpty() || len(ids) == 0 {
		return BatchResult{Failed: make(map[string]error)}, nil
	}

	s.mu.RLock()
	var edited []*domain.Item
	var missing []string
	for _, id := range ids {
		i := slices.IndexFunc(s.items, func(it *domain.Item) bool { return it.ID == id })
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		clone := s.items[i].Clone()
		changes.Apply(clone)
		edited = append(edited, clone)
	}
	s.mu.RUnlock()

	save := func(ctx context.Context, item *domain.Item) (*domain.Item, error) {
		return item, adapter.SaveItem(ctx, item)
	}
	result, err := runBatches(ctx, "edit", edited, s.batchSize, save,
		func(outcomes []outcome[*domain.Item]) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, o := range outcomes {
				if o.err == nil {
					s.upsert(o.value)
				}
			}
		})

	if len(missing) > 0 {
		merr := multierror.Append(err)
		for _, id := range missing {
			notFound := fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
			result.Failed[id] = notFound
			merr = multierror.Append(merr, &domain.ItemError{ItemID: id, Op: "edit", Err: notFound})
		}
		err = merr.ErrorOrNil()
	}

	s.logger.Info("batch edit finished", "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return result, err
}

// === Undo ===

// UndoLastDelete restores the most recent deletion and reloads the catalog.
// If the restore fails the entry stays on the stack.
func (s *ItemStore) UndoLastDelete(ctx context.Context) (string, error) {
	adapter, err := s.connected()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return "", ErrNothingToUndo
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.mu.Unlock()

	name, err := adapter.RestoreItem(ctx, entry)
	if err != nil {
		s.mu.Lock()
		s.undo = append(s.undo, entry)
		s.mu.Unlock()
		return "", err
	}

	s.logger.Info("restored item", "file", name)
	if _, err := s.LoadItems(ctx, nil); err != nil {
		s.logger.Warn("reload after restore failed", "error", err)
	}
	return name, nil
}

// UndoDepth returns the number of deletions that can be undone
func (s *ItemStore) UndoDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.undo)
}

// === Accessors ===

// Items returns a snapshot of the catalog, newest first
func (s *ItemStore) Items() []*domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Item returns the item with the given ID
func (s *ItemStore) Item(id string) (*domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Filter returns items matching a search expression
func (s *ItemStore) Filter(query string) []*domain.Item {
	return search.Items(search.Filter(s.Items(), query))
}

func (s *ItemStore) IsConnected() bool {
	_, err := s.connected()
	return err == nil
}

// StorageType returns the active backend, or "" before InitializeStorage
func (s *ItemStore) StorageType() domain.StorageType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adapter == nil {
		return ""
	}
	return s.adapter.GetStorageType()
}

// Adapter returns the active adapter, or nil before InitializeStorage
func (s *ItemStore) Adapter() domain.StorageAdapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter
}

// SupportedStorage lists the backends the factory can build
func (s *ItemStore) SupportedStorage() []domain.StorageType {
	return s.factory.Supported()
}

func (s *ItemStore) notifyError(msg string, err error) {
	s.logger.Error(msg, "error", err)
	s.notifier.Notify(domain.Notification{
		Level:   domain.NotifyError,
		Message: fmt.Sprintf("%s: %v", msg, err),
		Err:     err,
	})
}

func displayName(adapter domain.StorageAdapter) string {
	if name := adapter.DisplayName(); name != "" {
		return name
	}
	return string(adapter.GetStorageType()) + " storage"
}
