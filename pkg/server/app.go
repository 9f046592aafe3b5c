package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"PriceServer/internal/domain/repository"
	"PriceServer/pkg/config"
	xhttp "PriceServer/pkg/http"
	pkgkafka "PriceServer/pkg/kafka"
	applogger "PriceServer/pkg/logger"
	"PriceServer/pkg/queue"

	"golang.org/x/sync/errgroup"
)

const initTimeout = 30 * time.Second

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	httpServer  *xhttp.Server
	pool        *queue.Pool
	consumer    *pkgkafka.Consumer
	store       repository.SeriesStore
	instruments repository.InstrumentRepository
}

// New creates a new App instance with all dependencies. consumer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	pool *queue.Pool,
	consumer *pkgkafka.Consumer,
	store repository.SeriesStore,
	instruments repository.InstrumentRepository,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		httpServer:  httpServer,
		pool:        pool,
		consumer:    consumer,
		store:       store,
		instruments: instruments,
	}
}

// Run prepares storage, starts the HTTP server and the Kafka consumer, and blocks
// until ctx is cancelled or the server fails. Shutdown always runs before returning.
func (a *App) Run(ctx context.Context) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	httpErr := a.httpServer.Start()
	g.Go(func() error {
		select {
		case err, ok := <-httpErr:
			if ok && err != nil {
				return err
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	if a.consumer != nil {
		if err := a.consumer.Start(gctx); err != nil {
			a.log.Error("kafka consumer start", applogger.Error(err))
		}
	}

	a.log.Info("application started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("series_store", a.cfg.Storage.Series),
		applogger.String("job_registry", a.cfg.Jobs.Registry),
		applogger.Int("export_workers", a.cfg.Export.Workers),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled))

	runErr := g.Wait()
	if runErr != nil {
		a.log.Error("server error", applogger.Error(runErr))
	} else {
		a.log.Info("shutdown signal received")
	}

	return errors.Join(runErr, a.shutdown())
}

func (a *App) prepare(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.Export.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("init series store: %w", err)
	}
	if err := a.instruments.Init(ctx); err != nil {
		return fmt.Errorf("init instrument repository: %w", err)
	}
	return nil
}

// shutdown stops intake first, then lets running exports finish within the
// configured budget.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.pool.Stop(ctx); err != nil {
		a.log.Warn("export pool stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
