package imaging

import (
	"context"

	"github.com/conneroisu/comicshare/internal/cache"
	"github.com/conneroisu/comicshare/internal/provider"
)

// PagePool supplies stored page images.
type PagePool interface {
	GetPage(ctx context.Context, key PageKey, p provider.Provider) (*PageImage, error)
}

// ThumbnailPool supplies canonical thumbnails.
type ThumbnailPool interface {
	GetThumbnail(ctx context.Context, key ThumbnailKey, p provider.Provider) (*ThumbnailImage, error)
}

// Default pool sizes and thumbnail settings.
const (
	DefaultPageCacheSize      = 64
	DefaultThumbnailCacheSize = 1024
	DefaultThumbnailHeight    = 512
	thumbnailBaseQuality      = 90
)

// MemoryPagePool keeps recently served pages in memory.
type MemoryPagePool struct {
	pages *cache.Cache[PageKey, *PageImage]
}

// NewMemoryPagePool creates a page pool holding up to size pages.
func NewMemoryPagePool(size int) *MemoryPagePool {
	return &MemoryPagePool{pages: cache.New[PageKey, *PageImage](size)}
}

// GetPage returns the page for key, reading it from p on a miss.
func (m *MemoryPagePool) GetPage(ctx context.Context, key PageKey, p provider.Provider) (*PageImage, error) {
	h, err := m.pages.LockItem(ctx, key, func(ctx context.Context, key PageKey) (*PageImage, error) {
		data, err := p.Page(ctx, key.Index)
		if err != nil {
			return nil, err
		}
		return NewPageImage(data)
	})
	if err != nil {
		return nil, err
	}
	defer h.Release()

	return h.Item(), nil
}

// Stats returns the page cache counters.
func (m *MemoryPagePool) Stats() cache.Stats {
	return m.pages.Stats()
}

// Close drops every cached page.
func (m *MemoryPagePool) Close() error {
	return m.pages.Close()
}

// MemoryThumbnailPool renders thumbnails on demand and keeps them in
// memory.
type MemoryThumbnailPool struct {
	thumbnails *cache.Cache[ThumbnailKey, *ThumbnailImage]
	encoder    Encoder
}

// NewMemoryThumbnailPool creates a thumbnail pool holding up to size
// thumbnails, encoded with encoder.
func NewMemoryThumbnailPool(size int, encoder Encoder) *MemoryThumbnailPool {
	if encoder == nil {
		encoder = JPEGEncoder{}
	}
	return &MemoryThumbnailPool{
		thumbnails: cache.New[ThumbnailKey, *ThumbnailImage](size),
		encoder:    encoder,
	}
}

// GetThumbnail returns the thumbnail for key, rendering it from p on a miss.
func (m *MemoryThumbnailPool) GetThumbnail(ctx context.Context, key ThumbnailKey, p provider.Provider) (*ThumbnailImage, error) {
	h, err := m.thumbnails.LockItem(ctx, key, func(ctx context.Context, key ThumbnailKey) (*ThumbnailImage, error) {
		return m.render(ctx, key, p)
	})
	if err != nil {
		return nil, err
	}
	defer h.Release()

	return h.Item(), nil
}

func (m *MemoryThumbnailPool) render(ctx context.Context, key ThumbnailKey, p provider.Provider) (*ThumbnailImage, error) {
	data, err := p.Page(ctx, key.Index)
	if err != nil {
		return nil, err
	}
	page, err := decode(data)
	if err != nil {
		return nil, err
	}

	height := key.Height
	if height <= 0 {
		height = DefaultThumbnailHeight
	}
	scaled := ScaleToHeight(page, height)

	encoded, err := m.encoder.Encode(scaled, thumbnailBaseQuality)
	if err != nil {
		return nil, err
	}

	return &ThumbnailImage{
		Data:           encoded,
		Width:          scaled.Bounds().Dx(),
		Height:         scaled.Bounds().Dy(),
		OriginalWidth:  page.Bounds().Dx(),
		OriginalHeight: page.Bounds().Dy(),
	}, nil
}

// Stats returns the thumbnail cache counters.
func (m *MemoryThumbnailPool) Stats() cache.Stats {
	return m.thumbnails.Stats()
}

// Close drops every cached thumbnail.
func (m *MemoryThumbnailPool) Close() error {
	return m.thumbnails.Close()
}
