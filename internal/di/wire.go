//go:build wireinject
// +build wireinject

package di

import (
	"PriceMesh/pkg/config"
	"PriceMesh/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Oracle core
		ProvideEngine,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvidePriceCache,

		// Repositories
		ProvideAuditStore,
		ProvideAuditPublisher,
		ProvideFeedgateStream,

		// Use cases
		ProvideSubmissionProcessor,
		ProvideSubmissionIntake,
		ProvideKafkaSubmissionsHandler,
		ProvideSubmissionCollector,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
