// Package images provides the image-optimization collaborator consumed
// by the store when an image item is added: it fetches the image and
// embeds a size-capped base64 data URL in the item so the saved artifact
// survives the source going away.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/heppoko-wizard/web-collections/internal/models"
)

// DefaultMaxBytes caps how large a fetched image may be before embedding
// is skipped.
const DefaultMaxBytes = 512 * 1024

// Processor fetches image URLs and rewrites items with embedded
// thumbnails. The zero Processor is not usable; construct with New.
type Processor struct {
	client   *http.Client
	maxBytes int64
}

// New returns a Processor using the given HTTP client, or a default
// client with a 15s timeout when client is nil.
func New(client *http.Client) *Processor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Processor{client: client, maxBytes: DefaultMaxBytes}
}

// OptimizeItem embeds a data URL for the item's image. Non-image
// content, oversized responses and fetch failures leave the item
// unchanged and return an error for the caller to log; the item is
// still storable.
func (p *Processor) OptimizeItem(ctx context.Context, item *models.Item) error {
	if item.Type != models.ItemImage || item.ImageURL == "" {
		return nil
	}
	if strings.HasPrefix(item.ImageURL, "data:") {
		// Already embedded.
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.ImageURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return fmt.Errorf("image exceeds %d bytes, embedding skipped", p.maxBytes)
	}

	mtype := mimetype.Detect(body)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("content is %s, not an image", mtype.String())
	}

	item.ThumbnailBase64 = fmt.Sprintf("data:%s;base64,%s",
		mtype.String(), base64.StdEncoding.EncodeToString(body))
	// Full resize/recompress needs a rendering context; flag that this is
	// a plain fetch.
	item.ThumbnailOptimized = false
	return nil
}
