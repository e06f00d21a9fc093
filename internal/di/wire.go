//go:build wireinject
// +build wireinject

package di

import (
	"Farenheit/pkg/config"
	"Farenheit/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStores,
		ProvideCacheService,
		ProvideKafkaProducer,

		// Ports
		ProvideEventPublisher,
		ProvideRecommendationCache,
		ProvideLocker,
		ProvidePriceSource,
		ProvideForecaster,

		// Pipeline stages
		ProvideStageOptions,
		ProvideCollector,
		ProvidePredictor,
		ProvideRecommender,
		ProvideAlerter,
		ProvideRetention,
		ProvideStages,
		ProvideScheduler,

		// Read API
		ProvideFlightQueries,
		ProvideAlertService,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
