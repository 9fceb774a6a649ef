//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/kiheon-jang/autoTrade-sub000/pkg/config"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Foundations
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideTradeStore,
		ProvideCandleStore,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideFillPublisher,

		// Exchange access
		ProvideMarketGateway,
		ProvideMarketStream,
		ProvideScorer,

		// Use cases
		ProvideMarketCache,
		ProvideLedger,
		ProvideOrchestrator,
		ProvideTickerPipeline,
		ProvideTradeJournal,
		ProvideAnalysisUseCase,
		ProvideCandlesUseCase,
		ProvideBacktestResultStore,
		ProvideBacktestEngine,
		ProvideBacktestJob,
		ProvideJobQueue,
		ProvideBacktestSubmitter,

		// HTTP surface
		ProvideAPIHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
