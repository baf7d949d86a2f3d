package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	httpserver "github.com/fyrsmithlabs/coursectx/internal/http"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The config file is watched and changes to the
embeddings or vectorstore sections take effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable config hot reload")
	return cmd
}

// runServe blocks until ctx is cancelled, then shuts down within the
// configured timeout.
func runServe(ctx context.Context, configPath string, watch bool) error {
	a, err := newApp(ctx, configPath, appOptions{})
	if err != nil {
		return err
	}
	cfg := a.config()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	}
	defer func() {
		sctx, cancel := shutdownCtx()
		defer cancel()
		if err := a.close(sctx); err != nil {
			a.logger.Warn(sctx, "shutdown incomplete", zap.Error(err))
		}
	}()

	if watch {
		w, err := config.NewWatcher(configPath,
			func(next *config.Config) { a.reload(ctx, next) },
			func(err error) { a.logger.Warn(ctx, "config reload failed", zap.Error(err)) },
		)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			a.logger.Warn(ctx, "config watcher not started", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	srv, err := httpserver.NewServer(a.svc, a.logger, &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutdown signal received")
	sctx, cancel := shutdownCtx()
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
