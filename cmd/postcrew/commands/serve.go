package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/postcrew/internal/httpapi"
	"github.com/suPer8Hu/postcrew/internal/httpapi/handlers"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ServeAction runs the HTTP API and the job workers until ctx is cancelled.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.IsSet("port") {
		app.Cfg.Port = int(cmd.Int("port"))
		app.Cfg.Sanitize()
	}

	gin.SetMode(app.Cfg.GinMode)
	router := httpapi.NewRouter(handlers.NewHandler(app.Service), app.Log)

	server := &http.Server{
		Addr:              app.Cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Service.Run(gctx)
	})
	g.Go(func() error {
		app.Log.Info("starting HTTP server", "addr", server.Addr, "provider", app.Cfg.AIProvider,
			"store", app.Cfg.JobStore, "dispatcher", app.Cfg.Dispatcher)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.Log.Info("stopped")
	return nil
}
