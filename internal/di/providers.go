package di

import (
	"fmt"
	"time"

	"OilCast/internal/domain/repository"
	"OilCast/internal/handler/api"
	internalrepo "OilCast/internal/repository"
	icache "OilCast/internal/service/cache"
	"OilCast/internal/service/ratelimit"
	"OilCast/internal/usecase"
	pkgch "OilCast/pkg/clickhouse"
	"OilCast/pkg/config"
	xhttp "OilCast/pkg/http"
	"OilCast/pkg/http/middleware"
	pkgkafka "OilCast/pkg/kafka"
	applogger "OilCast/pkg/logger"
	"OilCast/pkg/metrics"
	"OilCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient connects to ClickHouse when it is the price source
// and returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Data.Source != config.SourceClickHouse {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithEndpoint(cfg.ClickHouse.Host, cfg.ClickHouse.Port, cfg.ClickHouse.UseHTTP),
		pkgch.WithLogin(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(4, 2, 5*time.Minute),
		pkgch.WithLimits(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvidePriceSource selects the CSV or ClickHouse loader.
func ProvidePriceSource(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.PriceSource, error) {
	switch cfg.Data.Source {
	case config.SourceClickHouse:
		return internalrepo.NewCHPriceSource(ch, cfg.Data.ClickHouseTable, l)
	default:
		return internalrepo.NewCSVPriceSource(cfg.Data.CSVPath, l), nil
	}
}

func ProvideArtifactStore(cfg *config.Config, l *applogger.Logger) repository.ArtifactStore {
	return internalrepo.NewFileArtifactStore(cfg.Models.Dir, l)
}

// ProvideSignalPublisher publishes signals to Kafka when enabled.
func ProvideSignalPublisher(cfg *config.Config, l *applogger.Logger) (repository.SignalPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopSignalPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, l)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return pub, cleanup, nil
}

func ProvideSession(src repository.PriceSource, store repository.ArtifactStore, l *applogger.Logger) *usecase.Session {
	return usecase.NewSession(src, store, l)
}

func ProvideDashboard(cfg *config.Config, sess *usecase.Session, pub repository.SignalPublisher, m repository.Metrics, l *applogger.Logger) *usecase.Dashboard {
	return usecase.NewDashboard(sess, cfg.Split, pub, m, l)
}

// ProvideResponseCache returns Redis when enabled and an in-process TTL
// cache otherwise.
func ProvideResponseCache(cfg *config.Config, l *applogger.Logger) (icache.BytesCache, func()) {
	if !cfg.Cache.Redis.Enabled {
		return icache.NewTTLCache(), func() {}
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	return rc, func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
}

// ProvideDashboardHandler builds the HTTP handler with a health probe for
// every remote dependency in use.
func ProvideDashboardHandler(cfg *config.Config, dash *usecase.Dashboard, cache icache.BytesCache, ch *pkgch.Client, l *applogger.Logger) *api.DashboardHandler {
	opts := []api.DashboardOption{api.WithCache(cache, cfg.Cache.TTL)}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	if rc, ok := cache.(*icache.RedisCache); ok {
		opts = append(opts, api.WithHealthCheck("redis", rc.Ping))
	}
	return api.NewDashboardHandler(dash, l, opts...)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPServer creates the echo server with rate limiting on every
// route except health and metrics.
func ProvideHTTPServer(cfg *config.Config, h *api.DashboardHandler, lim *ratelimit.Limiter, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	rl := middleware.RateLimit(lim, middleware.RateLimitConfig{
		Burst:     cfg.Server.RateBurst,
		PerSecond: cfg.Server.RatePerSecond,
		Skip:      map[string]bool{"/healthz": true, metricsPath: true},
	}, l)
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
		xhttp.WithMiddleware(rl),
	)
}

// ProvideApp creates the application server.
func ProvideApp(sess *usecase.Session, srv *xhttp.Server, lim *ratelimit.Limiter, l *applogger.Logger) *server.App {
	return server.New(sess, srv, l, server.WithLimiter(lim))
}

// ProvideExporter creates the offline exporter with the optional parquet
// and xlsx outputs enabled by config.
func ProvideExporter(cfg *config.Config, src repository.PriceSource, store repository.ArtifactStore, l *applogger.Logger) *usecase.Exporter {
	var opts []usecase.ExporterOption
	if cfg.Export.FeatureDir != "" {
		opts = append(opts, usecase.WithFrameWriter(internalrepo.NewParquetFrameWriter(cfg.Export.FeatureDir, l)))
	}
	if cfg.Export.ReportPath != "" {
		opts = append(opts, usecase.WithReportWriter(internalrepo.NewXLSXReportWriter(cfg.Export.ReportPath, l)))
	}
	learners := usecase.DefaultLearners(cfg.Export.Ridge, cfg.Export.Forest, cfg.Export.MLP)
	return usecase.NewExporter(src, store, learners, cfg.Split, l, opts...)
}
