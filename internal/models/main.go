// Package models defines the core data structures for collections,
// saved items, settings and the encrypted sync payload.
package models

// ItemType defines the set of valid item type identifiers.
type ItemType string

const (
	// ItemWebpage represents a saved web page (url, title, favicon).
	ItemWebpage ItemType = "webpage"
	// ItemImage represents a saved image.
	ItemImage ItemType = "image"
	// ItemText represents a selected text fragment from a page.
	ItemText ItemType = "text"
	// ItemNote represents a free-form user note.
	ItemNote ItemType = "note"
)

// Valid reports whether t is one of the four known item types.
func (t ItemType) Valid() bool {
	switch t {
	case ItemWebpage, ItemImage, ItemText, ItemNote:
		return true
	}
	return false
}

// Item is one saved artifact inside a collection. The Type tag decides
// which of the optional fields are meaningful.
type Item struct {
	// ID is the unique identifier of the item within its collection.
	ID string `json:"id"`
	// Type is the variant tag: webpage, image, text or note.
	Type ItemType `json:"type"`
	// URL is the page address (webpage) or the page the image links to (image).
	URL string `json:"url,omitempty"`
	// Title is the page or image title.
	Title string `json:"title,omitempty"`
	// FaviconURL points at the favicon of a saved webpage.
	FaviconURL string `json:"faviconUrl,omitempty"`
	// ImageURL is the address of a saved image, possibly rewritten to an
	// embedded data URL by the image optimizer.
	ImageURL string `json:"imageUrl,omitempty"`
	// SourceURL is the page the text or image was captured from.
	SourceURL string `json:"sourceUrl,omitempty"`
	// Content holds the selected text or the note body.
	Content string `json:"content,omitempty"`
	// Memo is an optional user annotation.
	Memo string `json:"memo,omitempty"`
	// SavedAt is the capture time in epoch milliseconds.
	SavedAt int64 `json:"savedAt"`
	// SortOrder is the dense 0-based rank of the item after the last reorder.
	SortOrder int `json:"sortOrder"`
	// ThumbnailBase64 holds an embedded preview written by the image optimizer.
	ThumbnailBase64 string `json:"thumbnailBase64,omitempty"`
	// ThumbnailOptimized reports whether the thumbnail went through full
	// resize/recompress optimization or is a plain fetch.
	ThumbnailOptimized bool `json:"thumbnailOptimized,omitempty"`
}

// Collection is a named, ordered group of saved items. Items are kept in
// display order, most recently added first.
type Collection struct {
	// ID is the unique identifier of the collection.
	ID string `json:"id"`
	// Name is the user-chosen collection name.
	Name string `json:"name"`
	// Items holds the saved artifacts in display order.
	Items []Item `json:"items"`
	// CreatedAt is the creation time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
	// UpdatedAt is the last mutation time in epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt"`
}

// Settings is the whole-record sync configuration. Absent fields mean
// defaults; there are no internal invariants.
type Settings struct {
	// SyncEnabled turns the sync feature on.
	SyncEnabled bool `json:"syncEnabled"`
	// SyncPassword is the passphrase used to derive the encryption key
	// for encrypting backends.
	SyncPassword string `json:"syncPassword,omitempty"`
	// LastSyncTime is the epoch-millisecond timestamp of the last
	// successful push or pull, zero if never synced.
	LastSyncTime int64 `json:"lastSyncTime,omitempty"`
	// Backend selects the sync backend: "drive", "gist", "folder" or "s3".
	// Backend-specific credentials and caches live under the backends'
	// own storage keys, not in this record.
	Backend string `json:"backend,omitempty"`
}

// EncryptedPayload is the ciphertext bundle produced by the crypto codec
// and stored as-is by the encrypting backends. All three fields are
// base64-encoded.
type EncryptedPayload struct {
	// Encrypted is the AES-GCM ciphertext including the auth tag.
	Encrypted string `json:"encrypted"`
	// Salt is the 16-byte PBKDF2 salt, fresh per encryption.
	Salt string `json:"salt"`
	// IV is the 12-byte GCM nonce, fresh per encryption.
	IV string `json:"iv"`
}

// Export is the serialized snapshot exchanged with every backend and
// with file export/import.
type Export struct {
	// Collections is the full collection list.
	Collections []Collection `json:"collections"`
	// ExportedAt is the snapshot time in epoch milliseconds.
	ExportedAt int64 `json:"exportedAt"`
}
