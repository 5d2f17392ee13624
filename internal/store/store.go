// Package store implements the collection store: CRUD over collections
// and items on top of an injected key-value persistence backend. Every
// operation reads the full collection list, mutates it and rewrites it
// in one backend call; there is no cross-call atomicity.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/kv"
	"github.com/heppoko-wizard/web-collections/internal/models"
)

const (
	collectionsKey = "collections"
	settingsKey    = "settings"

	// DefaultCollectionName is used when a collection is created with an
	// empty name.
	DefaultCollectionName = "New Collection"
)

// ImageOptimizer rewrites an image item's URL to an embedded, size-capped
// representation before the item is stored. Implementations must leave
// the item shape intact.
type ImageOptimizer interface {
	OptimizeItem(ctx context.Context, item *models.Item) error
}

// Store provides CRUD over collections and items.
type Store struct {
	kv        kv.Backend
	optimizer ImageOptimizer
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithImageOptimizer installs the collaborator that image drafts pass
// through before insertion.
func WithImageOptimizer(opt ImageOptimizer) Option {
	return func(s *Store) { s.optimizer = opt }
}

// WithLogger installs a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs a Store over the given persistence backend.
func New(backend kv.Backend, opts ...Option) *Store {
	s := &Store{
		kv:    backend,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// getAllCollections loads the persisted collection list, empty when the
// key is absent.
func (s *Store) getAllCollections(ctx context.Context) ([]models.Collection, error) {
	raw, ok, err := s.kv.Get(ctx, collectionsKey)
	if err != nil {
		return nil, errs.New("getAllCollections", err)
	}
	if !ok {
		return []models.Collection{}, nil
	}
	var collections []models.Collection
	if err := json.Unmarshal(raw, &collections); err != nil {
		return nil, errs.New("getAllCollections", fmt.Errorf("%w: corrupt collection data: %v", errs.ErrValidation, err))
	}
	return collections, nil
}

// saveAllCollections atomically rewrites the full collection list.
func (s *Store) saveAllCollections(ctx context.Context, collections []models.Collection) error {
	raw, err := json.Marshal(collections)
	if err != nil {
		return errs.New("saveAllCollections", err)
	}
	if err := s.kv.Put(ctx, collectionsKey, raw); err != nil {
		return errs.New("saveAllCollections", err)
	}
	return nil
}

// CreateCollection creates an empty collection with a fresh id. An empty
// name falls back to DefaultCollectionName.
func (s *Store) CreateCollection(ctx context.Context, name string) (*models.Collection, error) {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultCollectionName
	}
	now := s.nowMillis()
	collection := models.Collection{
		ID:        s.newID(),
		Name:      name,
		Items:     []models.Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	collections = append(collections, collection)
	if err := s.saveAllCollections(ctx, collections); err != nil {
		return nil, err
	}
	return &collection, nil
}

// GetAllCollections returns all collections in persisted order.
func (s *Store) GetAllCollections(ctx context.Context) ([]models.Collection, error) {
	return s.getAllCollections(ctx)
}

// GetCollection returns the collection with the given id, or
// errs.ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range collections {
		if collections[i].ID == id {
			return &collections[i], nil
		}
	}
	return nil, errs.New("getCollection", fmt.Errorf("%w: collection %s", errs.ErrNotFound, id))
}

// CollectionPatch carries the updatable collection fields; nil fields are
// left untouched.
type CollectionPatch struct {
	Name *string `json:"name,omitempty"`
}

// UpdateCollection shallow-merges the patch into the matching collection
// and bumps its updatedAt. An absent id is silently ignored; the caller
// cannot distinguish updated from not-found.
func (s *Store) UpdateCollection(ctx context.Context, id string, patch CollectionPatch) error {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return err
	}
	for i := range collections {
		if collections[i].ID != id {
			continue
		}
		if patch.Name != nil {
			collections[i].Name = *patch.Name
		}
		collections[i].UpdatedAt = s.nowMillis()
		return s.saveAllCollections(ctx, collections)
	}
	return nil
}

// DeleteCollection removes the matching collection; deleting an absent id
// is a no-op.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return err
	}
	filtered := collections[:0]
	for _, c := range collections {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}
	return s.saveAllCollections(ctx, filtered)
}

// AddItem inserts the draft at the front of the collection's items with
// sortOrder equal to the item count before insertion. Image drafts pass
// through the optimizer first; optimizer failure only logs and the item
// is stored unoptimized.
func (s *Store) AddItem(ctx context.Context, collectionID string, draft models.Item) (*models.Item, error) {
	if !draft.Type.Valid() {
		return nil, errs.New("addItem", fmt.Errorf("%w: unknown item type %q", errs.ErrValidation, draft.Type))
	}

	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return nil, err
	}
	idx := findCollection(collections, collectionID)
	if idx < 0 {
		return nil, errs.New("addItem", fmt.Errorf("%w: collection %s", errs.ErrNotFound, collectionID))
	}

	if draft.Type == models.ItemImage && draft.ImageURL != "" && s.optimizer != nil {
		if err := s.optimizer.OptimizeItem(ctx, &draft); err != nil {
			s.log.Warn("image optimization skipped", zap.Error(err))
		}
	}

	collection := &collections[idx]
	draft.ID = s.newID()
	draft.SavedAt = s.nowMillis()
	draft.SortOrder = len(collection.Items)
	collection.Items = append([]models.Item{draft}, collection.Items...)
	collection.UpdatedAt = s.nowMillis()

	if err := s.saveAllCollections(ctx, collections); err != nil {
		return nil, err
	}
	return &draft, nil
}

// RemoveItem filters the item out of the collection. Either id being
// absent is a no-op.
func (s *Store) RemoveItem(ctx context.Context, collectionID, itemID string) error {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return err
	}
	idx := findCollection(collections, collectionID)
	if idx < 0 {
		return nil
	}
	collection := &collections[idx]
	items := collection.Items[:0]
	for _, item := range collection.Items {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	collection.Items = items
	collection.UpdatedAt = s.nowMillis()
	return s.saveAllCollections(ctx, collections)
}

// ItemPatch carries the updatable item fields; nil fields are left
// untouched.
type ItemPatch struct {
	Title     *string `json:"title,omitempty"`
	URL       *string `json:"url,omitempty"`
	ImageURL  *string `json:"imageUrl,omitempty"`
	SourceURL *string `json:"sourceUrl,omitempty"`
	Content   *string `json:"content,omitempty"`
	Memo      *string `json:"memo,omitempty"`
}

// UpdateItem merges the patch onto the existing item. Unlike the
// delete-style operations, an absent collection or item is an error.
func (s *Store) UpdateItem(ctx context.Context, collectionID, itemID string, patch ItemPatch) (*models.Item, error) {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return nil, err
	}
	idx := findCollection(collections, collectionID)
	if idx < 0 {
		return nil, errs.New("updateItem", fmt.Errorf("%w: collection %s", errs.ErrNotFound, collectionID))
	}
	collection := &collections[idx]
	for i := range collection.Items {
		if collection.Items[i].ID != itemID {
			continue
		}
		item := &collection.Items[i]
		if patch.Title != nil {
			item.Title = *patch.Title
		}
		if patch.URL != nil {
			item.URL = *patch.URL
		}
		if patch.ImageURL != nil {
			item.ImageURL = *patch.ImageURL
		}
		if patch.SourceURL != nil {
			item.SourceURL = *patch.SourceURL
		}
		if patch.Content != nil {
			item.Content = *patch.Content
		}
		if patch.Memo != nil {
			item.Memo = *patch.Memo
		}
		collection.UpdatedAt = s.nowMillis()
		updated := *item
		if err := s.saveAllCollections(ctx, collections); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, errs.New("updateItem", fmt.Errorf("%w: item %s", errs.ErrNotFound, itemID))
}

// ReorderItems re-sequences the collection's items to match orderedIDs
// and rewrites each sortOrder to its new index. IDs not present in the
// collection are skipped; items omitted from orderedIDs are dropped. An
// absent collection id is silently ignored.
func (s *Store) ReorderItems(ctx context.Context, collectionID string, orderedIDs []string) error {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return err
	}
	idx := findCollection(collections, collectionID)
	if idx < 0 {
		return nil
	}
	collection := &collections[idx]

	byID := make(map[string]models.Item, len(collection.Items))
	for _, item := range collection.Items {
		byID[item.ID] = item
	}
	reordered := make([]models.Item, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		item, ok := byID[id]
		if !ok {
			continue
		}
		item.SortOrder = len(reordered)
		reordered = append(reordered, item)
	}
	collection.Items = reordered
	collection.UpdatedAt = s.nowMillis()
	return s.saveAllCollections(ctx, collections)
}

// GetSettings returns the persisted settings record, or defaults when
// none has been saved yet.
func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	raw, ok, err := s.kv.Get(ctx, settingsKey)
	if err != nil {
		return nil, errs.New("getSettings", err)
	}
	if !ok {
		return &models.Settings{}, nil
	}
	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, errs.New("getSettings", fmt.Errorf("%w: corrupt settings data: %v", errs.ErrValidation, err))
	}
	return &settings, nil
}

// SaveSettings replaces the whole settings record.
func (s *Store) SaveSettings(ctx context.Context, settings *models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return errs.New("saveSettings", err)
	}
	if err := s.kv.Put(ctx, settingsKey, raw); err != nil {
		return errs.New("saveSettings", err)
	}
	return nil
}

func findCollection(collections []models.Collection, id string) int {
	for i := range collections {
		if collections[i].ID == id {
			return i
		}
	}
	return -1
}
