package server

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/comicshare/internal/access"
	"github.com/conneroisu/comicshare/internal/cache"
	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/config"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/imaging"
	"github.com/conneroisu/comicshare/internal/logging"
	"github.com/conneroisu/comicshare/internal/provider"
	"github.com/conneroisu/comicshare/internal/share"
	"github.com/conneroisu/comicshare/internal/stats"
	"github.com/conneroisu/comicshare/internal/version"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ServiceOptions holds everything needed to serve one share.
type ServiceOptions struct {
	Share   config.ShareConfig
	Catalog *catalog.Catalog

	PagePool      imaging.PagePool
	ThumbnailPool imaging.ThumbnailPool
	Encoder       imaging.Encoder
	Codec         catalog.Codec
	Logger        logging.Logger

	ProviderCacheSize int
	ThumbnailHeight   int
	MaxMessageSize    int64

	// LiveStatsInterval is the period of the live statistics feed.
	LiveStatsInterval time.Duration

	// Open opens a book's content source; provider.Open when nil.
	Open func(path string) (provider.Provider, error)
}

// Info describes a share to peers.
type Info struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Options         []string  `json:"options"`
	ProtocolVersion int       `json:"protocol_version"`
	Version         string    `json:"version"`
}

// Service serves one share. It owns the provider cache and the usage
// statistics of that share; both are torn down by Close.
type Service struct {
	ID     uuid.UUID
	Config config.ShareConfig

	scope          share.Scope
	live           *catalog.Catalog
	gate           access.Gate
	pipeline       *imaging.Pipeline
	providers      *imaging.ProviderCache
	stats          *stats.Collector
	codec          catalog.Codec
	zstd           *zstd.Encoder
	logger         logging.Logger
	maxMessageSize int64
	liveInterval   time.Duration

	// viewMutex guards the cached view of a selected share and the live
	// revision it was built from.
	viewMutex    sync.Mutex
	view         *catalog.Catalog
	viewRevision uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewService builds the service for opts.Share. The share must be valid.
func NewService(opts ServiceOptions) (*Service, error) {
	if problem := opts.Share.Problem(); problem != "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, problem).
			WithComponent("server")
	}
	if opts.Catalog == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "no catalog").
			WithComponent("server")
	}

	scope, err := opts.Share.Scope()
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error()).
			WithComponent("server")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("share").With("share", opts.Share.Name)

	codec := opts.Codec
	if codec == nil {
		if codec, err = catalog.NewCBORCodec(); err != nil {
			return nil, err
		}
	}

	pages := opts.PagePool
	if pages == nil {
		pages = imaging.NewMemoryPagePool(imaging.DefaultPageCacheSize)
	}
	thumbnails := opts.ThumbnailPool
	if thumbnails == nil {
		thumbnails = imaging.NewMemoryThumbnailPool(imaging.DefaultThumbnailCacheSize, opts.Encoder)
	}
	height := opts.ThumbnailHeight
	if height <= 0 {
		height = imaging.DefaultThumbnailHeight
	}
	cacheSize := opts.ProviderCacheSize
	if cacheSize <= 0 {
		cacheSize = config.DefaultProviderCacheSize
	}
	maxMessageSize := opts.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = config.DefaultMaxMessageSize
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "zstd encoder", err)
	}

	providers := imaging.NewProviderCache(cacheSize, func(id uuid.UUID, err error) {
		logger.Warn(context.Background(), err, "Failed to close content provider", "book", id)
	})

	s := &Service{
		ID:     uuid.New(),
		Config: opts.Share,
		scope:  scope,
		live:   opts.Catalog,
		gate:   access.Gate{PrivateOnly: opts.Share.PrivateOnly},
		pipeline: &imaging.Pipeline{
			Providers:        providers,
			Pages:            pages,
			Thumbnails:       thumbnails,
			Encoder:          opts.Encoder,
			PageQuality:      opts.Share.PageQuality,
			ThumbnailQuality: opts.Share.ThumbnailQuality,
			ThumbnailHeight:  height,
			Open:             opts.Open,
		},
		providers:      providers,
		stats:          stats.NewCollector(),
		codec:          codec,
		zstd:           encoder,
		logger:         logger,
		maxMessageSize: maxMessageSize,
		liveInterval:   opts.LiveStatsInterval,
		done:           make(chan struct{}),
	}
	s.pipeline.Catalog = sharedBooks{s}
	return s, nil
}

// Name returns the share name, which is also the URL prefix.
func (s *Service) Name() string {
	return s.Config.Name
}

// Info returns the public description of the share.
func (s *Service) Info(ctx context.Context) (*Info, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	options := s.Config.Options
	if options == nil {
		options = []string{}
	}
	return &Info{
		ID:              s.ID,
		Name:            s.Config.Name,
		Description:     s.Config.Description,
		Options:         options,
		ProtocolVersion: version.ProtocolVersion,
		Version:         version.GetVersion(),
	}, nil
}

// Library returns the catalog exposed by the share.
func (s *Service) Library(ctx context.Context) (*catalog.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.current().Document(), nil
}

// ImageCount returns the page count of a shared book.
func (s *Service) ImageCount(ctx context.Context, id uuid.UUID) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.pipeline.ImageCount(ctx, id)
}

// Image returns a page of a shared book at the share's page quality.
func (s *Service) Image(ctx context.Context, id uuid.UUID, index int) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.pipeline.Image(ctx, id, index)
}

// Thumbnail returns a thumbnail of a shared book in wire format.
func (s *Service) Thumbnail(ctx context.Context, id uuid.UUID, index int) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.pipeline.Thumbnail(ctx, id, index)
}

// Update applies u to a shared book. The change lands in the live
// catalog and, for a selected share, in the share's own copy as well.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u catalog.Update) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	view := s.current()
	if err := share.Update(view, s.scope, id, u); err != nil {
		return err
	}
	if view != s.live {
		if err := s.live.Apply(id, u); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Stats returns the usage counters of the share.
func (s *Service) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

// ProviderStats returns the provider cache counters.
func (s *Service) ProviderStats() cache.Stats {
	return s.providers.Stats()
}

// Close disposes every open provider and drops the statistics. It is
// safe to call more than once.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.providers.Close()
		s.stats.Reset()
		s.zstd.Close()
	})
	return err
}

func (s *Service) check(ctx context.Context) error {
	err := s.gate.CheckPrivateNetwork(ctx)
	if err != nil {
		client := "unknown"
		if addr, ok := access.ClientAddress(ctx); ok {
			client = addr.String()
		}
		logging.LogSecurityEvent(s.logger, ctx, "private_network_only", map[string]interface{}{
			"client": client,
		})
	}
	return err
}

// account records a served call. Calls without a client address are
// not counted.
func (s *Service) account(ctx context.Context, t stats.RequestType, size int) {
	addr, ok := access.ClientAddress(ctx)
	if !ok {
		return
	}
	s.stats.Add(addr.String(), t, size)
}

// current returns the catalog the share exposes right now. An all share
// exposes the live catalog; the copy of a selected or none share is
// rebuilt whenever the live catalog has changed since it was made.
func (s *Service) current() *catalog.Catalog {
	if s.scope.Mode == share.ModeAll {
		return s.live
	}

	s.viewMutex.Lock()
	defer s.viewMutex.Unlock()

	revision := s.live.Revision()
	if s.view == nil || revision != s.viewRevision {
		s.view = share.Resolve(s.live, s.scope)
		s.viewRevision = revision
	}
	return s.view
}

// sharedBooks is the pipeline's window on the share. Page counts learned
// from content are recorded on the live catalog.
type sharedBooks struct {
	service *Service
}

func (b sharedBooks) Book(id uuid.UUID) (*catalog.Book, error) {
	return b.service.current().Book(id)
}

func (b sharedBooks) SetPageCount(id uuid.UUID, count int) error {
	if !b.service.current().Contains(id) {
		return errors.ErrBookNotFound(id.String()).WithComponent("share")
	}
	return b.service.live.SetPageCount(id, count)
}
