package di

import (
	"context"
	"fmt"
	"time"

	"PriceServer/internal/domain/repository"
	"PriceServer/internal/handler/api"
	internalrepo "PriceServer/internal/repository"
	"PriceServer/internal/service/jobs"
	"PriceServer/internal/service/ratelimit"
	"PriceServer/internal/usecase"
	"PriceServer/pkg/cache"
	pkgch "PriceServer/pkg/clickhouse"
	"PriceServer/pkg/config"
	xhttp "PriceServer/pkg/http"
	pkgkafka "PriceServer/pkg/kafka"
	"PriceServer/pkg/logger"
	"PriceServer/pkg/metrics"
	"PriceServer/pkg/postgres"
	"PriceServer/pkg/queue"
	pkgredis "PriceServer/pkg/redis"
	"PriceServer/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("app", cfg.App.Name), logger.String("env", cfg.Environment)), nil
}

// ProvidePrometheusRegistry returns a dedicated registry with the process and Go
// collectors attached.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideSeriesStore returns the tick/OHLC store selected by storage.series.
func ProvideSeriesStore(cfg *config.Config, lgr *logger.Logger) (repository.SeriesStore, func(), error) {
	if cfg.Storage.Series != "clickhouse" {
		return internalrepo.NewMemorySeriesStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, []string{"CREATE DATABASE IF NOT EXISTS " + client.Database()}); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	store := internalrepo.NewCHSeriesStore(client, lgr, cfg.ClickHouse.InsertBatchSize)
	cleanup := func() {
		if err := client.Close(); err != nil {
			lgr.Warn("clickhouse close", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideInstrumentRepository returns the instrument store selected by storage.instruments.
func ProvideInstrumentRepository(cfg *config.Config, lgr *logger.Logger) (repository.InstrumentRepository, func(), error) {
	if cfg.Storage.Instruments != "postgres" {
		return internalrepo.NewMemoryInstrumentRepo(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Postgres.URL,
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		Database:        cfg.Postgres.Database,
		SSLMode:         cfg.Postgres.SSLMode,
		MinConns:        cfg.Postgres.MinConns,
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	repo := internalrepo.NewPGInstrumentRepo(pool)
	cleanup := func() {
		if err := repo.Close(); err != nil {
			lgr.Warn("postgres close", logger.Error(err))
		}
	}
	return repo, cleanup, nil
}

// ProvideRedisClient connects to Redis when the job registry or the cache uses it.
// Otherwise it returns nil.
func ProvideRedisClient(cfg *config.Config, lgr *logger.Logger) (*goredis.Client, func(), error) {
	if cfg.Jobs.Registry != "redis" && cfg.Cache.Type != "redis" {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := pkgredis.NewClient(ctx,
		pkgredis.WithAddr(cfg.Redis.Addr),
		pkgredis.WithPassword(cfg.Redis.Password),
		pkgredis.WithDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			lgr.Warn("redis close", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideJobRegistry returns the export job registry selected by jobs.registry.
func ProvideJobRegistry(cfg *config.Config, rc *goredis.Client) repository.JobRegistry {
	if cfg.Jobs.Registry == "redis" && rc != nil {
		return jobs.NewRedisRegistry(rc, cfg.Jobs.KeyPrefix, cfg.Jobs.TTL)
	}
	return jobs.NewMemoryRegistry()
}

// ProvideCache returns the instrument cache selected by cache.type.
func ProvideCache(cfg *config.Config, rc *goredis.Client) (cache.Service, func()) {
	var svc cache.Service
	switch {
	case cfg.Cache.Type == "redis" && rc != nil:
		svc = cache.NewRedisCache(rc, cfg.App.Name+":")
	case cfg.Cache.Type == "memory":
		svc = cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
	default:
		svc = cache.Nop{}
	}
	return svc, func() { _ = svc.Close() }
}

// ProvideJobEvents publishes job transitions to Kafka when it is enabled.
func ProvideJobEvents(cfg *config.Config, reg *prometheus.Registry, lgr *logger.Logger) (repository.JobEvents, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopJobEvents{}, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	events := internalrepo.NewKafkaJobEvents(producer, cfg.Kafka.EventsTopic)
	cleanup := func() {
		if err := events.Close(); err != nil {
			lgr.Warn("kafka producer close", logger.Error(err))
		}
	}
	return events, cleanup, nil
}

// ProvideWorkerPool bounds how many exports run at once.
func ProvideWorkerPool(cfg *config.Config, lgr *logger.Logger) *queue.Pool {
	return queue.NewPool(context.Background(), lgr, &queue.PoolConfig{Workers: cfg.Export.Workers})
}

func ProvideQueryEngine(store repository.SeriesStore, m repository.Metrics, cfg *config.Config) *usecase.QueryEngine {
	return usecase.NewQueryEngine(store, m, cfg.Query.MaxLimit)
}

func ProvideExportWorker(
	engine *usecase.QueryEngine,
	registry repository.JobRegistry,
	events repository.JobEvents,
	m repository.Metrics,
	lgr *logger.Logger,
	cfg *config.Config,
) *usecase.ExportWorker {
	return usecase.NewExportWorker(engine, registry, events, m, lgr, usecase.ExportWorkerConfig{
		Dir:       cfg.Export.Dir,
		MaxRows:   cfg.Export.MaxRows,
		ChunkSize: cfg.Export.ChunkSize,
	})
}

func ProvideExportService(
	registry repository.JobRegistry,
	worker *usecase.ExportWorker,
	pool *queue.Pool,
	events repository.JobEvents,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.ExportService {
	return usecase.NewExportService(registry, worker, pool, events, m, lgr)
}

func ProvideIngestService(store repository.SeriesStore, m repository.Metrics, lgr *logger.Logger, cfg *config.Config) *usecase.IngestService {
	return usecase.NewIngestService(store, m, lgr, cfg.Upload.BatchSize)
}

func ProvideInstrumentService(repo repository.InstrumentRepository, c cache.Service, lgr *logger.Logger, cfg *config.Config) *usecase.InstrumentService {
	return usecase.NewInstrumentService(repo, c, cfg.Cache.TTL, lgr)
}

// ProvideKafkaConsumer subscribes the tick ingest handler when the consumer is enabled.
// Returns nil otherwise.
func ProvideKafkaConsumer(
	cfg *config.Config,
	lgr *logger.Logger,
	reg *prometheus.Registry,
	ingest *usecase.IngestService,
	m repository.Metrics,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, ingest, m))
	return consumer, nil
}

// ProvideHandlers builds every HTTP handler the server exposes.
func ProvideHandlers(
	cfg *config.Config,
	lgr *logger.Logger,
	engine *usecase.QueryEngine,
	ingest *usecase.IngestService,
	exports *usecase.ExportService,
	instruments *usecase.InstrumentService,
	store repository.SeriesStore,
	repo repository.InstrumentRepository,
	rc *goredis.Client,
) []xhttp.Handler {
	checks := []api.HealthCheck{
		{Name: "series_store", Check: store.Health},
		{Name: "instruments", Check: repo.Health},
	}
	if rc != nil {
		checks = append(checks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rc.Ping(ctx).Err() },
		})
	}

	limiter := ratelimit.New(cfg.Export.RateLimit, cfg.Export.Burst)
	return []xhttp.Handler{
		api.NewHealthEchoHandler(cfg.App.Name, cfg.App.Version, checks...),
		api.NewPricesEchoHandler(lgr, engine, ingest, cfg.Upload.MaxSizeMB).WithQueryTimeout(cfg.Query.Timeout),
		api.NewExportsEchoHandler(lgr, exports, limiter.Middleware()),
		api.NewInstrumentsEchoHandler(lgr, instruments),
	}
}

// ProvideHTTPServer creates the Echo server with middleware and the metrics endpoint.
func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, handlers []xhttp.Handler, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(fmt.Sprintf("%dM", cfg.Upload.MaxSizeMB+1)),
		xhttp.WithLogger(lgr),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	httpServer *xhttp.Server,
	pool *queue.Pool,
	consumer *pkgkafka.Consumer,
	store repository.SeriesStore,
	repo repository.InstrumentRepository,
) *server.App {
	return server.New(cfg, lgr, httpServer, pool, consumer, store, repo)
}
