// Package server hosts the shares of a library: one Service per share,
// all served over TLS on a single binding under their own path prefix.
package server

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/config"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/imaging"
	"github.com/conneroisu/comicshare/internal/logging"
	"github.com/conneroisu/comicshare/internal/provider"
	"golang.org/x/net/netutil"
)

// HostOptions holds the collaborators shared by every service of a host.
type HostOptions struct {
	Catalog       *catalog.Catalog
	PagePool      imaging.PagePool
	ThumbnailPool imaging.ThumbnailPool
	Encoder       imaging.Encoder
	Codec         catalog.Codec
	Logger        logging.Logger

	// Open opens a book's content source; provider.Open when nil.
	Open func(path string) (provider.Provider, error)

	// NewService builds a service; NewService when nil.
	NewService func(opts ServiceOptions) (*Service, error)
}

// Host runs the services of the configured shares. Start and Stop are
// serialised by the host lock.
type Host struct {
	opts   HostOptions
	logger logging.Logger

	mutex           sync.Mutex
	running         bool
	services        map[string]*Service
	order           []*Service
	httpServer      *http.Server
	listener        net.Listener
	cancelBase      context.CancelFunc
	serveDone       chan struct{}
	shutdownTimeout time.Duration
}

// NewHost creates a stopped host.
func NewHost(opts HostOptions) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.NewService == nil {
		opts.NewService = NewService
	}
	return &Host{
		opts:     opts,
		logger:   logger.WithComponent("host"),
		services: make(map[string]*Service),
	}
}

// Start serves every valid share in shares and returns their services.
// Invalid shares are skipped with a warning. Duplicate names among the
// valid shares abort with a configuration error before anything is
// bound. Without any valid share Start returns an empty slice and does
// not listen.
func (h *Host) Start(ctx context.Context, shares []config.ShareConfig, cfg config.ServerConfig) ([]*Service, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.running {
		return nil, errors.NewConfigError(errors.ErrCodeHostRunning, "host is already running").
			WithComponent("host")
	}

	valid, err := h.validShares(ctx, shares)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		h.logger.Warn(ctx, nil, "No valid share configured, not listening")
		return []*Service{}, nil
	}

	services := make([]*Service, 0, len(valid))
	fail := func(err error) ([]*Service, error) {
		closeServices(services)
		return nil, err
	}

	for _, share := range valid {
		svc, err := h.opts.NewService(ServiceOptions{
			Share:             share,
			Catalog:           h.opts.Catalog,
			PagePool:          h.opts.PagePool,
			ThumbnailPool:     h.opts.ThumbnailPool,
			Encoder:           h.opts.Encoder,
			Codec:             h.opts.Codec,
			Logger:            h.logger,
			ProviderCacheSize: cfg.ProviderCacheSize,
			ThumbnailHeight:   cfg.ThumbnailHeight,
			MaxMessageSize:    cfg.MaxMessageSize,
			Open:              h.opts.Open,
		})
		if err != nil {
			return fail(fmt.Errorf("share %q: %w", share.Name, err))
		}
		services = append(services, svc)
	}

	cert, err := loadCertificate(cfg)
	if err != nil {
		return fail(errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error()).WithComponent("host"))
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fail(fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err))
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	ln = tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})

	baseCtx, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Handler:           newHandler(services, h.logger),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			h.logger.Error(context.Background(), err, "Server stopped unexpectedly")
		}
	}()

	h.running = true
	h.httpServer = server
	h.listener = ln
	h.cancelBase = cancel
	h.serveDone = done
	h.shutdownTimeout = cfg.ShutdownTimeout
	if h.shutdownTimeout <= 0 {
		h.shutdownTimeout = config.DefaultShutdownTimeout
	}
	h.order = services
	for _, svc := range services {
		h.services[svc.Name()] = svc
		h.logger.Info(ctx, "Serving share",
			"share", svc.Name(),
			"mode", svc.Config.Mode,
			"address", ln.Addr().String(),
			"announce", AnnouncementURI(cfg, svc.Name()))
	}

	return append([]*Service(nil), services...), nil
}

// validShares drops invalid shares and rejects duplicate names.
func (h *Host) validShares(ctx context.Context, shares []config.ShareConfig) ([]config.ShareConfig, error) {
	valid := make([]config.ShareConfig, 0, len(shares))
	seen := make(map[string]bool, len(shares))
	duplicates := make(map[string]bool)

	for _, share := range shares {
		if problem := share.Problem(); problem != "" {
			h.logger.Warn(ctx, nil, "Skipping invalid share", "share", share.Name, "problem", problem)
			continue
		}
		if seen[share.Name] {
			duplicates[share.Name] = true
			continue
		}
		seen[share.Name] = true
		valid = append(valid, share)
	}

	if len(duplicates) > 0 {
		names := make([]string, 0, len(duplicates))
		for name := range duplicates {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, errors.NewConfigError(errors.ErrCodeDuplicateShare,
			fmt.Sprintf("duplicate share names: %v", names)).WithComponent("host")
	}

	return valid, nil
}

// Stop shuts the server down and disposes every service. The HTTP
// server gets the configured shutdown timeout to drain; connections still
// open after it are closed. Stop on a stopped host is a no-op.
func (h *Host) Stop(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.running {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTimeout)
	defer cancel()

	var firstErr error
	if err := h.httpServer.Shutdown(shutdownCtx); err != nil {
		h.logger.Warn(ctx, err, "Graceful shutdown timed out, closing connections")
		if err := h.httpServer.Close(); err != nil {
			firstErr = err
		}
	}
	h.cancelBase()
	<-h.serveDone

	if err := closeServices(h.order); err != nil && firstErr == nil {
		firstErr = err
	}

	h.running = false
	h.httpServer = nil
	h.listener = nil
	h.order = nil
	h.services = make(map[string]*Service)

	h.logger.Info(ctx, "Host stopped")
	return firstErr
}

// Running reports whether the host is serving.
func (h *Host) Running() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.running
}

// Addr returns the bound address, or nil when the host is not listening.
func (h *Host) Addr() net.Addr {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Services returns the running services in configuration order.
func (h *Host) Services() []*Service {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]*Service(nil), h.order...)
}

// Service returns the running service named name.
func (h *Host) Service(name string) (*Service, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	svc, ok := h.services[name]
	return svc, ok
}

func closeServices(services []*Service) error {
	var firstErr error
	for _, svc := range services {
		if err := svc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
