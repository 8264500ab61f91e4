//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"OilCast/internal/usecase"
	"OilCast/pkg/config"
	"OilCast/pkg/server"
)

var dataSet = wire.NewSet(
	ProvideLogger,
	ProvideClickHouseClient,
	ProvidePriceSource,
	ProvideArtifactStore,
)

// InitializeApp wires up the dashboard API. The returned cleanup closes
// remote clients and must run after App.Run returns.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		dataSet,
		ProvideMetrics,
		ProvideSignalPublisher,
		ProvideSession,
		ProvideDashboard,
		ProvideResponseCache,
		ProvideDashboardHandler,
		ProvideRateLimiter,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeExporter wires up the offline training export.
func InitializeExporter(cfg *config.Config) (*usecase.Exporter, func(), error) {
	wire.Build(
		dataSet,
		ProvideExporter,
	)
	return nil, nil, nil
}
