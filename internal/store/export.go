package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	"github.com/heppoko-wizard/web-collections/internal/models"
)

// ExportJSON serializes the full store as a pretty-printed snapshot of
// the form {"collections": [...], "exportedAt": <epoch-ms>}.
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return "", err
	}
	export := models.Export{
		Collections: collections,
		ExportedAt:  s.nowMillis(),
	}
	raw, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ImportJSON replaces the entire store with the snapshot's collections.
// A malformed payload or one without a collections array is silently
// ignored; no error is raised and the store is left untouched.
func (s *Store) ImportJSON(ctx context.Context, data string) error {
	var export models.Export
	if err := json.Unmarshal([]byte(data), &export); err != nil {
		s.log.Warn("import ignored: malformed payload")
		return nil
	}
	if export.Collections == nil {
		s.log.Warn("import ignored: no collections array")
		return nil
	}
	return s.saveAllCollections(ctx, export.Collections)
}

// ExportCSV renders every item as one CSV row with RFC 4180 quoting.
// The export is one-way; it is not round-trippable.
func (s *Store) ExportCSV(ctx context.Context) (string, error) {
	collections, err := s.getAllCollections(ctx)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Collection", "Type", "Title", "URL", "Content", "Saved At"}); err != nil {
		return "", err
	}
	for _, collection := range collections {
		for _, item := range collection.Items {
			if err := w.Write([]string{
				collection.Name,
				string(item.Type),
				item.Title,
				itemLink(item),
				item.Content,
				time.UnixMilli(item.SavedAt).UTC().Format(time.RFC3339),
			}); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// itemLink picks the URL column value for a CSV row, exhaustively over
// the item variants.
func itemLink(item models.Item) string {
	switch item.Type {
	case models.ItemWebpage:
		return item.URL
	case models.ItemImage:
		if item.URL != "" {
			return item.URL
		}
		return item.SourceURL
	case models.ItemText:
		return item.SourceURL
	case models.ItemNote:
		return ""
	}
	return ""
}
