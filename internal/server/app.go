// Package server wires and runs the development credential issuer: the
// credential API, the media host and the gRPC credential service. It
// handles graceful shutdown on SIGINT, SIGTERM and SIGQUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/server/config"
	"github.com/dmitrijs2005/remotestorage/internal/server/issuer"
	"github.com/gin-gonic/gin"

	gs "github.com/dmitrijs2005/remotestorage/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	issuer *issuer.Issuer
	media  *issuer.MediaHost
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewJSON(slog.LevelInfo)

	gin.SetMode(gin.ReleaseMode)

	is := issuer.New(c, logger)

	mh, err := issuer.NewMediaHost(c, is.Signer(), logger)
	if err != nil {
		return nil, fmt.Errorf("media host init error: %w", err)
	}

	return &App{config: c, logger: logger, issuer: is, media: mh}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.issuer, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc, name, addr string, handler http.Handler) {

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...", "server", name)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "server", name, "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error(), "server", name)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or any server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, "api", app.config.HTTPAddr, issuer.NewAPIHandler(app.issuer))
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, "media", app.config.MediaAddr, issuer.NewMediaHandler(app.media))
	}()

	wg.Wait()

}
