package cli

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"

	"github.com/dmitrijs2005/remotestorage/internal/client/config"
	"github.com/dmitrijs2005/remotestorage/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/remotestorage/internal/client/storage"
	"github.com/dmitrijs2005/remotestorage/internal/diskcache"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
	"github.com/dmitrijs2005/remotestorage/internal/session"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
)

// App holds the service built for one command invocation.
type App struct {
	config  *config.Config
	logger  logging.Logger
	svc     *remotestorage.Service
	db      *sql.DB
	index   *uploads.SQLiteRepository
	engine  remotestorage.Engine
	closers []func() error
}

func newLogger(w io.Writer, verbose bool) logging.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// NewApp builds the storage service from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: logger.With("module", "cli")}

	cache, err := diskcache.New(cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	mux := transport.NewMux(logger)
	client := netx.NewHTTPClient(cfg.HTTPTimeout)

	var channel transport.Channel
	switch cfg.Transport {
	case config.TransportGRPC:
		ch, err := transport.DialGRPC(cfg.GRPCAddr, cfg.HTTPTimeout, mux, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		channel = ch
	default:
		channel = transport.NewHTTPChannel(client, mux, logger)
	}

	var index remotestorage.UploadIndex
	if cfg.IndexDSN != "" {
		db, err := storage.Open(ctx, cfg.IndexDSN)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.db = db
		a.index = uploads.NewSQLiteRepository(db)
		a.closers = append(a.closers, db.Close)
		index = a.index
	}

	opts := remotestorage.DefaultOptions()
	opts.SizeLimit = cfg.SizeLimit
	opts.StagingRetryInterval = cfg.StagingRetryInterval
	opts.StagingMaxAttempts = cfg.StagingMaxAttempts
	opts.MediaHostPrefix = cfg.MediaHostPrefix
	opts.ResourceCacheCapacity = cfg.ResourceCacheCapacity
	opts.DownloadTimeout = cfg.HTTPTimeout
	opts.UploadTimeout = cfg.HTTPTimeout

	a.svc, err = remotestorage.NewService(remotestorage.Deps{
		Cache:         cache,
		Session:       session.NewHolder(cfg.SessionToken),
		SignEndpoints: session.URLBuilder{Base: cfg.APIEndpoint},
		Centers:       remotestorage.CenterProviderFunc(a.center),
		Channel:       channel,
		Mux:           mux,
		HTTPClient:    client,
		Index:         index,
		Logger:        logger,
	}, opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

// center sends every target to the storage picked for the running command.
func (a *App) center(remotestorage.Target) (remotestorage.Center, bool) {
	path := a.config.FilesCenterPath
	if a.engine == remotestorage.EngineMedia {
		path = a.config.MediaCenterPath
	}
	if path == "" {
		return remotestorage.Center{}, false
	}
	return remotestorage.Center{
		Engine: a.engine,
		Path:   path,
		Auth:   remotestorage.Auth{Token: a.config.SessionToken},
	}, true
}

// Close releases the channel and the index database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
