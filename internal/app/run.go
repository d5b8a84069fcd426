package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/server"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logging.InitGlobalLogger(); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting marketplace gateway")

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// Serve runs the cache store supervisor and the HTTP server until ctx is
// cancelled or the server fails.
func (app *App) Serve(ctx context.Context) error {
	srv := server.New(app.Handler(), app.Config.Port, app.Config.TLSCert, app.Config.TLSKey)
	g, gctx := errgroup.WithContext(ctx)

	if app.RedisClient != nil {
		g.Go(func() error {
			// Run returns nil when the store is given up on; the gateway
			// keeps serving without it.
			return app.RedisClient.Run(gctx)
		})
	}

	g.Go(func() error {
		app.Logger.Info("HTTP server listening", logging.String("addr", srv.Addr()))
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server forced to shutdown", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error("Gateway stopped with error", err)
		return err
	}
	app.Logger.Info("Server exited")
	return nil
}
