package imaging

import (
	"context"

	"github.com/conneroisu/comicshare/internal/cache"
	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/provider"
	"github.com/google/uuid"
)

// ProviderCache holds open content providers keyed by book ID.
type ProviderCache = cache.Cache[uuid.UUID, provider.Provider]

// NewProviderCache creates a provider cache that closes providers when
// they are evicted. Close errors go to report, which may be nil.
func NewProviderCache(size int, report func(id uuid.UUID, err error)) *ProviderCache {
	return cache.New[uuid.UUID, provider.Provider](size,
		cache.CloseOnEvict[uuid.UUID, provider.Provider](report))
}

// Library is the set of books a pipeline serves. *catalog.Catalog
// implements it.
type Library interface {
	Book(id uuid.UUID) (*catalog.Book, error)
	SetPageCount(id uuid.UUID, count int) error
}

// Pipeline serves page counts, pages and thumbnails of one library.
type Pipeline struct {
	Catalog          Library
	Providers        *ProviderCache
	Pages            PagePool
	Thumbnails       ThumbnailPool
	Encoder          Encoder
	PageQuality      int
	ThumbnailQuality int
	ThumbnailHeight  int

	// Open opens a book's content source; provider.Open when nil.
	Open func(path string) (provider.Provider, error)
}

// ImageCount returns the number of pages of the book with id, opening
// its content source once to learn it.
func (p *Pipeline) ImageCount(ctx context.Context, id uuid.UUID) (int, error) {
	book, err := p.Catalog.Book(id)
	if err != nil {
		return 0, err
	}
	if book.PageCount > 0 {
		return book.PageCount, nil
	}

	h, err := p.lockProvider(ctx, book)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	count := h.Item().Count()
	if err := p.Catalog.SetPageCount(id, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Image returns the bytes of logical page index, re-encoded unless the
// page quality is 100.
func (p *Pipeline) Image(ctx context.Context, id uuid.UUID, index int) ([]byte, error) {
	book, err := p.Catalog.Book(id)
	if err != nil {
		return nil, err
	}

	h, err := p.lockProvider(ctx, book)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	key := PageKey{BookID: id, Index: book.TranslateImageIndexToPage(index)}
	page, err := p.Pages.GetPage(ctx, key, h.Item())
	if err != nil {
		return nil, err
	}

	if p.PageQuality >= 100 {
		return append([]byte(nil), page.Data...), nil
	}

	img, err := page.Decode()
	if err != nil {
		return nil, err
	}
	return p.encoder().Encode(img, EncodingQuality(p.PageQuality))
}

// Thumbnail returns the thumbnail of logical page index in wire format,
// re-encoded unless the thumbnail quality is 100.
func (p *Pipeline) Thumbnail(ctx context.Context, id uuid.UUID, index int) ([]byte, error) {
	book, err := p.Catalog.Book(id)
	if err != nil {
		return nil, err
	}

	h, err := p.lockProvider(ctx, book)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	key := ThumbnailKey{
		BookID: id,
		Index:  book.TranslateImageIndexToPage(index),
		Height: p.ThumbnailHeight,
	}
	thumbnail, err := p.Thumbnails.GetThumbnail(ctx, key, h.Item())
	if err != nil {
		return nil, err
	}

	if p.ThumbnailQuality == 100 {
		return thumbnail.MarshalBinary()
	}

	img, err := thumbnail.Decode()
	if err != nil {
		return nil, err
	}
	data, err := p.encoder().Encode(img, EncodingQuality(p.ThumbnailQuality))
	if err != nil {
		return nil, err
	}

	repacked := &ThumbnailImage{
		Data:           data,
		Width:          thumbnail.Width,
		Height:         thumbnail.Height,
		OriginalWidth:  thumbnail.OriginalWidth,
		OriginalHeight: thumbnail.OriginalHeight,
	}
	return repacked.MarshalBinary()
}

func (p *Pipeline) lockProvider(ctx context.Context, book *catalog.Book) (*cache.Handle[uuid.UUID, provider.Provider], error) {
	open := p.Open
	if open == nil {
		open = provider.Open
	}
	path := book.FilePath

	return p.Providers.LockItem(ctx, book.ID, func(ctx context.Context, _ uuid.UUID) (provider.Provider, error) {
		return open(path)
	})
}

func (p *Pipeline) encoder() Encoder {
	if p.Encoder == nil {
		return JPEGEncoder{}
	}
	return p.Encoder
}
