//go:build wireinject
// +build wireinject

package di

import (
	"PriceServer/pkg/config"
	"PriceServer/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,

		// Infrastructure clients and stores
		ProvideSeriesStore,
		ProvideInstrumentRepository,
		ProvideRedisClient,
		ProvideJobRegistry,
		ProvideCache,
		ProvideJobEvents,
		ProvideWorkerPool,

		// Use cases
		ProvideQueryEngine,
		ProvideExportWorker,
		ProvideExportService,
		ProvideIngestService,
		ProvideInstrumentService,
		ProvideKafkaConsumer,

		// Transport
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
