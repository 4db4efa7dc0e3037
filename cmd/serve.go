package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/config"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/imaging"
	"github.com/conneroisu/comicshare/internal/logging"
	"github.com/conneroisu/comicshare/internal/server"
	"github.com/conneroisu/comicshare/internal/watcher"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reloadDelay groups the writes an editor makes when saving a file.
const reloadDelay = 300 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the configured shares",
	Long: `Serve every valid configured share on one TLS port.

The configuration file and the catalog manifest are watched; saving
either restarts the shares with the new settings. SIGHUP does the same.

Examples:
  comicshare serve                          # Use .comicshare.yml
  comicshare serve --port 9000              # Override the port
  comicshare serve --catalog comics.jsonc   # Serve another catalog
  comicshare serve --no-watch               # Do not reload on change`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addServerFlags(serveCmd)
	serveCmd.Flags().Bool("no-watch", false, "Don't reload when the configuration or catalog changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := SetViperBindings(cmd, serverFlagBindings); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load configuration")
	}

	logger, closeLogs, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newDaemon(logger)
	if err := d.start(ctx, cfg); err != nil {
		return err
	}

	if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch {
		w, err := d.watch(ctx, viper.ConfigFileUsed())
		if err != nil {
			logger.Warn(ctx, err, "Configuration changes will not be picked up")
		} else {
			defer w.Stop()
		}
	}

	if addr := d.addr(); addr != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %d share(s) at https://%s\n", len(d.services()), addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := d.reloadFromConfig(ctx, false); err != nil {
				logger.Error(ctx, err, "Reload failed")
			}
			continue
		}
		logger.Info(ctx, "Shutting down", "signal", sig.String())
		break
	}

	return d.stop(context.Background())
}

// newLogger builds the console logger and, when a log directory is
// configured, a dated file logger beside it.
func newLogger(cfg config.LoggingConfig, out io.Writer) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid logging.level")
	}

	loggerConfig := &logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    out,
		Component: "comicshare",
	}
	console := logging.NewLogger(loggerConfig)

	if cfg.Dir == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logging.NewFileLogger(loggerConfig, cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewMultiLogger(console, file), file.Close, nil
}

// daemon owns the running host and restarts it when the configuration
// changes. The live catalog survives restarts unless its manifest
// changed, so updates made by peers are kept.
type daemon struct {
	logger   logging.Logger
	handler  *errors.ErrorHandler
	newHost  func(server.HostOptions) *server.Host
	loadConf func() (*config.Config, error)

	mutex       sync.Mutex
	cfg         *config.Config
	configPath  string
	catalogPath string
	catalog     *catalog.Catalog
	pages       *imaging.MemoryPagePool
	thumbnails  *imaging.MemoryThumbnailPool
	host        *server.Host
}

func newDaemon(logger logging.Logger) *daemon {
	logger = logger.WithComponent("daemon")
	return &daemon{
		logger:  logger,
		handler: errors.NewErrorHandler(logger),
		newHost: server.NewHost,
		loadConf: func() (*config.Config, error) {
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, err
				}
			}
			return config.Load()
		},
	}
}

func (d *daemon) start(ctx context.Context, cfg *config.Config) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.startLocked(ctx, cfg, true)
}

func (d *daemon) startLocked(ctx context.Context, cfg *config.Config, loadCatalog bool) error {
	catalogPath := absPath(cfg.Catalog.Path)
	if loadCatalog || d.catalog == nil || catalogPath != d.catalogPath {
		live, err := openCatalog(cfg.Catalog.Path)
		if err != nil {
			return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load catalog").
				WithContext("path", cfg.Catalog.Path)
		}
		d.catalog = live
		d.catalogPath = catalogPath
		d.logger.Info(ctx, "Catalog loaded", "path", cfg.Catalog.Path, "books", live.Len())
	}

	pages := imaging.NewMemoryPagePool(cfg.Server.PageCacheSize)
	thumbnails := imaging.NewMemoryThumbnailPool(cfg.Server.ThumbnailCacheSize, imaging.JPEGEncoder{})

	host := d.newHost(server.HostOptions{
		Catalog:       d.catalog,
		PagePool:      pages,
		ThumbnailPool: thumbnails,
		Encoder:       imaging.JPEGEncoder{},
		Logger:        d.logger,
	})

	services, err := host.Start(ctx, cfg.Shares, cfg.Server)
	if err != nil {
		pages.Close()
		thumbnails.Close()
		return err
	}
	if len(services) == 0 {
		d.logger.Warn(ctx, nil, "No share is served")
	}

	d.cfg = cfg
	d.pages = pages
	d.thumbnails = thumbnails
	d.host = host
	return nil
}

func (d *daemon) stopLocked(ctx context.Context) error {
	if d.host == nil {
		return nil
	}
	err := errors.CombineErrors(
		d.host.Stop(ctx),
		d.pages.Close(),
		d.thumbnails.Close(),
	)
	d.host = nil
	d.pages = nil
	d.thumbnails = nil
	return err
}

func (d *daemon) stop(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stopLocked(ctx)
}

// reload restarts the host with cfg. When cfg cannot be served the
// previous configuration and catalog are restored.
func (d *daemon) reload(ctx context.Context, cfg *config.Config, catalogChanged bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	previous := d.cfg
	previousCatalog, previousCatalogPath := d.catalog, d.catalogPath
	if err := d.stopLocked(ctx); err != nil {
		d.handler.Handle(ctx, err)
	}

	err := d.startLocked(ctx, cfg, catalogChanged)
	if err == nil {
		d.logger.Info(ctx, "Configuration reloaded", "shares", len(d.host.Services()))
		return nil
	}

	d.handler.Handle(ctx, err)
	if previous == nil {
		return err
	}
	d.catalog, d.catalogPath = previousCatalog, previousCatalogPath
	if restoreErr := d.startLocked(ctx, previous, false); restoreErr != nil {
		return errors.CombineErrors(err, restoreErr)
	}
	d.logger.Warn(ctx, err, "Kept the previous configuration")
	return err
}

// reloadFromConfig re-reads the configuration sources and reloads.
func (d *daemon) reloadFromConfig(ctx context.Context, catalogChanged bool) error {
	cfg, err := d.loadConf()
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to reload configuration")
	}
	return d.reload(ctx, cfg, catalogChanged)
}

// watch reloads on changes to the configuration file or the catalog
// manifest.
func (d *daemon) watch(ctx context.Context, configFile string) (*watcher.FileWatcher, error) {
	w, err := watcher.NewFileWatcher(reloadDelay, d.logger)
	if err != nil {
		return nil, err
	}

	d.mutex.Lock()
	catalogPath := d.catalogPath
	d.mutex.Unlock()

	for _, path := range []string{configFile, catalogPath} {
		if path == "" {
			continue
		}
		abs, err := w.AddFile(path)
		if err != nil {
			w.Stop()
			return nil, err
		}
		if path == configFile {
			d.mutex.Lock()
			d.configPath = abs
			d.mutex.Unlock()
		}
	}

	w.AddFilter(watcher.NoTempFilter)
	w.AddFilter(d.watched)
	w.AddHandler(func(events []watcher.ChangeEvent) error {
		return d.onChange(ctx, events)
	})

	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}

func (d *daemon) watched(path string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	clean := filepath.Clean(path)
	return clean == d.configPath || clean == d.catalogPath
}

func (d *daemon) onChange(ctx context.Context, events []watcher.ChangeEvent) error {
	d.mutex.Lock()
	catalogPath := d.catalogPath
	d.mutex.Unlock()

	catalogChanged := false
	for _, event := range events {
		d.logger.Info(ctx, "File changed", "path", event.Path, "event", event.Type.String())
		if filepath.Clean(event.Path) == catalogPath {
			catalogChanged = true
		}
	}
	return d.reloadFromConfig(ctx, catalogChanged)
}

func (d *daemon) addr() net.Addr {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.host == nil {
		return nil
	}
	return d.host.Addr()
}

func (d *daemon) services() []*server.Service {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.host == nil {
		return nil
	}
	return d.host.Services()
}

// openCatalog loads the manifest at path, or returns an empty catalog
// when no manifest is configured.
func openCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(uuid.New(), "Library"), nil
	}
	return catalog.LoadManifest(path)
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
