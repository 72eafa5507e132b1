package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kode4food/braid"
	"github.com/kode4food/braid/internal/server"
	"github.com/kode4food/braid/pkg/log"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	slog.Info("braid engine starting",
		slog.String("version", braid.Version))
	a.engine.Start()

	apiServer := server.NewServer(a.client, a.hub, a.registry, braid.Version)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.cfg.APIHost, a.cfg.APIPort),
		Handler: apiServer.SetupRoutes(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case sig := <-quit:
		slog.Info("Shutting down",
			slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), a.cfg.ShutdownTimeout,
	)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed",
			log.Error(err))
	}
	apiServer.CloseWebSockets()
	a.close()

	slog.Info("Server exited")
	return runErr
}
