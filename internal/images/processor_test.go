package images_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heppoko-wizard/web-collections/internal/images"
	"github.com/heppoko-wizard/web-collections/internal/models"
)

// pngHeader is the 8-byte PNG signature plus enough bytes for detection.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestOptimizeItem_EmbedsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	p := images.New(srv.Client())
	item := &models.Item{Type: models.ItemImage, ImageURL: srv.URL + "/cat.png"}

	require.NoError(t, p.OptimizeItem(context.Background(), item))
	assert.True(t, strings.HasPrefix(item.ThumbnailBase64, "data:image/png;base64,"))
	assert.False(t, item.ThumbnailOptimized)
}

func TestOptimizeItem_SkipsNonImageItems(t *testing.T) {
	p := images.New(nil)

	note := &models.Item{Type: models.ItemNote, Content: "x"}
	require.NoError(t, p.OptimizeItem(context.Background(), note))
	assert.Empty(t, note.ThumbnailBase64)

	empty := &models.Item{Type: models.ItemImage}
	require.NoError(t, p.OptimizeItem(context.Background(), empty))
	assert.Empty(t, empty.ThumbnailBase64)
}

func TestOptimizeItem_SkipsDataURLs(t *testing.T) {
	p := images.New(nil)
	item := &models.Item{Type: models.ItemImage, ImageURL: "data:image/png;base64,AAAA"}

	require.NoError(t, p.OptimizeItem(context.Background(), item))
	assert.Empty(t, item.ThumbnailBase64)
}

func TestOptimizeItem_RejectsNonImageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	p := images.New(srv.Client())
	item := &models.Item{Type: models.ItemImage, ImageURL: srv.URL}

	err := p.OptimizeItem(context.Background(), item)
	require.Error(t, err)
	assert.Empty(t, item.ThumbnailBase64)
}

func TestOptimizeItem_RejectsOversizedImage(t *testing.T) {
	big := append(append([]byte{}, pngHeader...), make([]byte, images.DefaultMaxBytes)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(big)
	}))
	defer srv.Close()

	p := images.New(srv.Client())
	item := &models.Item{Type: models.ItemImage, ImageURL: srv.URL}

	err := p.OptimizeItem(context.Background(), item)
	require.Error(t, err)
	assert.Empty(t, item.ThumbnailBase64)
}

func TestOptimizeItem_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := images.New(srv.Client())
	item := &models.Item{Type: models.ItemImage, ImageURL: srv.URL}

	err := p.OptimizeItem(context.Background(), item)
	require.Error(t, err)
	assert.Empty(t, item.ThumbnailBase64)
}
