package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PriceMesh/internal/domain/repository"
	"PriceMesh/internal/oracle"
	"PriceMesh/internal/usecase"
	pkgch "PriceMesh/pkg/clickhouse"
	"PriceMesh/pkg/config"
	xhttp "PriceMesh/pkg/http"
	pkgkafka "PriceMesh/pkg/kafka"
	applogger "PriceMesh/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	engine    *oracle.Engine
	collector *usecase.SubmissionCollector
	proc      *usecase.SubmissionProcessor
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	chClient  *pkgch.Client
	handler   xhttp.Handler
	cache     repository.PriceCache

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	engine *oracle.Engine,
	collector *usecase.SubmissionCollector,
	proc *usecase.SubmissionProcessor,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
	cache repository.PriceCache,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		collector: collector,
		proc:      proc,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		handler:   handler,
		cache:     cache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Audit retry flusher
	if a.proc != nil {
		a.proc.Start(ctx)
	}

	// Feedgate stream lane
	if a.cfg.Feedgate.Enabled {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.String("url", a.cfg.Feedgate.URL))
	}

	// Kafka submissions lane
	if a.consumer != nil && a.kh != nil && a.cfg.Kafka.SubmissionsTopic != "" {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Stale feed pruner
	if a.cfg.Oracle.PruneInterval > 0 && a.cfg.Oracle.PruneMaxAge > 0 {
		go a.runPruner(ctx)
		l.Info("pruner started",
			applogger.Duration("interval", a.cfg.Oracle.PruneInterval),
			applogger.Duration("max_age", a.cfg.Oracle.PruneMaxAge))
	}

	// HTTP lane plus read path
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// runPruner evicts stale feed entries on a fixed interval. Price history
// survives pruning so the deviation baseline is kept.
func (a *App) runPruner(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Oracle.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.engine.PruneStale(a.cfg.Oracle.PruneMaxAge); n > 0 {
				a.logger.Debug("pruned stale entries", applogger.Int("count", n))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger
	l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if a.cfg.Feedgate.Enabled {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Stop the retry flusher and close backend clients
	if a.proc != nil {
		a.proc.Close()
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if c, ok := a.cache.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
