package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/document"
	"github.com/fyrsmithlabs/coursectx/internal/embeddings"
	"github.com/fyrsmithlabs/coursectx/internal/events"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
	"github.com/fyrsmithlabs/coursectx/internal/telemetry"
	"github.com/fyrsmithlabs/coursectx/internal/vectorstore"
)

// app holds everything a command needs: config, logger, telemetry and the
// document service with its backends.
type app struct {
	configPath string
	logger     *logging.Logger
	tel        *telemetry.Telemetry
	svc        *document.Service

	// mu guards cfg across config reloads.
	mu  sync.Mutex
	cfg *config.Config
}

type appOptions struct {
	// stderrLogs keeps stdout free for a protocol.
	stderrLogs bool
}

// newApp loads config and builds the service. Backends that fail to start
// are logged and left out; retrieval then uses lexical search.
func newApp(ctx context.Context, configPath string, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Logging, opts.stderrLogs)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("error", h.LastError))
	}

	a := &app{configPath: configPath, logger: logger, tel: tel, cfg: cfg}
	a.svc = document.New(cfg, logger,
		document.WithEmbeddingProvider(a.buildProvider(ctx, cfg.Embeddings)),
		document.WithVectorStore(a.buildStore(ctx, cfg.VectorStore)),
		document.WithPublisher(a.buildPublisher(ctx, cfg.Events)),
		document.WithInstrumentation(tel.TracerProvider(), tel.MeterProvider()),
	)
	return a, nil
}

func newLogger(s config.LoggingConfig, stderrOnly bool) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(s)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	logCfg.Fields = map[string]string{"service": "coursectx", "version": version}
	if stderrOnly {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func (a *app) buildProvider(ctx context.Context, cfg config.EmbeddingsConfig) embeddings.Provider {
	p, err := embeddings.NewProvider(cfg, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "embedding provider unavailable, vector search disabled",
			zap.String("provider", cfg.Provider), zap.Error(err))
		return nil
	}
	return p
}

func (a *app) buildStore(ctx context.Context, cfg config.VectorStoreConfig) vectorstore.Store {
	s, err := vectorstore.NewStore(cfg, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "vector store unavailable, vector search disabled",
			zap.String("store", cfg.Provider), zap.Error(err))
		return nil
	}
	return s
}

func (a *app) buildPublisher(ctx context.Context, cfg config.EventsConfig) events.Publisher {
	p, err := events.New(cfg, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "event publisher unavailable", zap.Error(err))
		return events.Noop{}
	}
	return p
}

// config returns the config currently in effect.
func (a *app) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// reload applies a changed config. The embedding provider and vector store
// are rebuilt only when their sections changed, and the current catalog is
// then embedded again so stored vectors match the new wiring.
func (a *app) reload(ctx context.Context, next *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.mu.Unlock()

	a.svc.SetConfig(next)

	embeddingsChanged := prev.Embeddings != next.Embeddings
	storeChanged := prev.VectorStore != next.VectorStore

	if embeddingsChanged {
		old := a.svc.SetEmbeddingProvider(a.buildProvider(ctx, next.Embeddings))
		closeQuietly(ctx, a.logger, "embedding provider", old)
	}
	if storeChanged {
		old := a.svc.SetVectorStore(a.buildStore(ctx, next.VectorStore))
		closeQuietly(ctx, a.logger, "vector store", old)
	}
	if embeddingsChanged || storeChanged {
		if _, err := a.svc.Reindex(ctx); err != nil {
			a.logger.Warn(ctx, "reindex after reload failed, lexical search still works", zap.Error(err))
		}
	}

	a.logger.Info(ctx, "configuration reloaded",
		zap.Bool("embeddings_changed", embeddingsChanged),
		zap.Bool("vectorstore_changed", storeChanged),
	)
}

type closer interface{ Close() error }

func closeQuietly(ctx context.Context, logger *logging.Logger, what string, c closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn(ctx, "close failed", zap.String("component", what), zap.Error(err))
	}
}

// close releases the service and flushes telemetry and logs.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.svc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close service: %w", err))
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
