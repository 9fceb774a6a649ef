package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/commission"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/handler/api"
	mid "github.com/kiheon-jang/autoTrade-sub000/internal/middleware"
	internalrepo "github.com/kiheon-jang/autoTrade-sub000/internal/repository"
	"github.com/kiheon-jang/autoTrade-sub000/internal/service/bithumb"
	icache "github.com/kiheon-jang/autoTrade-sub000/internal/service/cache"
	analytics "github.com/kiheon-jang/autoTrade-sub000/internal/services/analytics"
	"github.com/kiheon-jang/autoTrade-sub000/internal/usecase"
	pkgcache "github.com/kiheon-jang/autoTrade-sub000/pkg/cache"
	pkgch "github.com/kiheon-jang/autoTrade-sub000/pkg/clickhouse"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/config"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	pkgkafka "github.com/kiheon-jang/autoTrade-sub000/pkg/kafka"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/metrics"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/queue"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client when the archive
// tier is enabled, nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTradeStore creates the ClickHouse trade history store, nil
// without a client.
func ProvideTradeStore(client *pkgch.Client) (repository.TradeStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseTradeStore(client.DB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("trade store: %w", err)
	}
	return store, nil
}

// ProvideCandleStore creates the ClickHouse candle archive, nil without
// a client.
func ProvideCandleStore(client *pkgch.Client) (repository.CandleStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseCandleStore(client.DB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("candle store: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer, nil when Kafka is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideFillPublisher creates the Kafka fill publisher. Nil without a
// producer; executed trades then stay in the in-memory ledger only.
func ProvideFillPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.FillPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaFillPublisher(producer, cfg.Kafka.FillsTopic)
}

// ProvideTradeJournal creates the fills consumer that lands executed
// trades in ClickHouse. Nil unless both Kafka and the archive are up.
func ProvideTradeJournal(store repository.TradeStore, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.TradeJournal {
	if !cfg.Kafka.Enabled || store == nil {
		return nil
	}
	return usecase.NewTradeJournal(cfg.Kafka.FillsTopic, store, m, log,
		usecase.WithJournalBatch(200, time.Second),
	)
}

// ProvideMarketGateway creates the Bithumb REST gateway.
func ProvideMarketGateway(cfg *config.Config, log *logger.Logger) domsvc.MarketGateway {
	return bithumb.New(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, log,
		bithumb.WithBaseURL(cfg.Exchange.RESTURL),
		bithumb.WithTimeout(cfg.Exchange.Timeout),
		bithumb.WithRateBudgets(cfg.Exchange.PublicRPS, cfg.Exchange.PrivateRPS),
	)
}

// ProvideMarketStream creates the Bithumb WebSocket stream, nil when
// streaming is off. REST polling then carries all tiers.
func ProvideMarketStream(cfg *config.Config, log *logger.Logger) repository.MarketStream {
	if !cfg.Exchange.StreamEnabled {
		return nil
	}
	return bithumb.NewStream(log,
		bithumb.WithStreamURL(cfg.Exchange.WebSocketURL),
		bithumb.WithReconnectDelay(cfg.Exchange.ReconnectDelay),
		bithumb.WithPingInterval(cfg.Exchange.PingInterval),
	)
}

// ProvideScorer picks the signal scorer: the HTTP sidecar when one is
// configured, otherwise the in-process model.
func ProvideScorer(cfg *config.Config) domsvc.Scorer {
	if cfg.Analytics.ScorerURL != "" {
		return analytics.NewHTTPScorer(cfg)
	}
	return analytics.NewLocalScorer()
}

// ProvideMarketCache creates the tiered market cache.
func ProvideMarketCache(gateway domsvc.MarketGateway, scorer domsvc.Scorer, archive repository.CandleStore, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.MarketCache {
	opts := []usecase.MarketCacheOption{
		usecase.WithCoreSymbols(cfg.Market.CoreSymbols),
		usecase.WithTierSizes(cfg.Market.HotSize, cfg.Market.BroadSize),
		usecase.WithWindowSize(cfg.Market.CandleWindow),
		usecase.WithRefreshPeriods(cfg.Market.HotPeriod, cfg.Market.CorePeriod, cfg.Market.BroadPeriod),
		usecase.WithRecomputePeriods(cfg.Market.IndicatorPeriod, cfg.Market.MLPeriod, cfg.Market.ReclassifyPeriod),
	}
	if archive != nil {
		opts = append(opts, usecase.WithCandleArchive(archive))
	}
	return usecase.NewMarketCache(gateway, scorer, m, log, opts...)
}

// ProvideLedger creates the position ledger with the standard fee
// schedule.
func ProvideLedger(cfg *config.Config, log *logger.Logger) *usecase.Ledger {
	return usecase.NewLedger(
		models.TradingMode(cfg.Trading.Mode),
		cfg.Trading.InitialCapital,
		commission.Default(),
		cfg.Trading.MinOrderNotional,
		cfg.Trading.MaxPositions,
		log,
	)
}

// ProvideOrchestrator creates the strategy orchestrator.
func ProvideOrchestrator(cache *usecase.MarketCache, ledger *usecase.Ledger, gateway domsvc.MarketGateway, fills repository.FillPublisher, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.Orchestrator {
	return usecase.NewOrchestrator(cache, ledger, gateway, fills, m, log,
		usecase.WithMode(models.TradingMode(cfg.Trading.Mode)),
		usecase.WithRiskLimits(cfg.Trading.StopLossPct, cfg.Trading.TakeProfitPct),
		usecase.WithMaxPositionPct(cfg.Trading.MaxPositionPct),
		usecase.WithMonitorInterval(cfg.Trading.MonitorInterval),
		usecase.WithStopWait(cfg.Trading.StopWait),
	)
}

// ProvideTickerPipeline bridges the WebSocket stream into the market
// cache. Nil when there is no stream.
func ProvideTickerPipeline(stream repository.MarketStream, cache *usecase.MarketCache, m repository.Metrics, log *logger.Logger) *mid.TickerPipeline {
	if stream == nil {
		return nil
	}
	return mid.NewTickerPipeline(stream, cache, m, log,
		mid.WithMaxRPS(200),
	)
}

// ProvideAnalysisUseCase fans per-symbol reads across the cache, the
// order book and the trade journal.
func ProvideAnalysisUseCase(cache *usecase.MarketCache, gateway domsvc.MarketGateway, trades repository.TradeStore) *usecase.AnalysisUseCase {
	return usecase.NewAnalysisUseCase(cache, gateway, trades)
}

// ProvideCandlesUseCase serves recent bars from the cache window with
// archive fallback.
func ProvideCandlesUseCase(cache *usecase.MarketCache, archive repository.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(cache, archive)
}

// ProvideBacktestResultStore keeps replay results in the cache tier:
// layered over Redis when available so results survive restarts,
// otherwise in process memory.
func ProvideBacktestResultStore(cfg *config.Config) (repository.BacktestStore, error) {
	if !cfg.Redis.Enabled {
		return internalrepo.NewBacktestStore(pkgcache.NewMemoryCache(), cfg.Backtest.ResultTTL), nil
	}
	host, port := splitHostPort(cfg.Redis.Addr, 6379)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return internalrepo.NewBacktestStore(pkgcache.NewLayeredCache(rc), cfg.Backtest.ResultTTL), nil
}

// ProvideBacktestEngine creates the bar-replay engine. It shares the
// live scorer and sizing cap so replay results track what the live
// path would have done.
func ProvideBacktestEngine(scorer domsvc.Scorer, m repository.Metrics, cfg *config.Config, log *logger.Logger) *usecase.BacktestEngine {
	return usecase.NewBacktestEngine(commission.Default(), m, log,
		usecase.WithBacktestRisk(cfg.Backtest.StopLossPct, cfg.Backtest.TakeProfitPct),
		usecase.WithBacktestSizing(cfg.Trading.MaxPositionPct),
		usecase.WithBacktestScorer(scorer),
	)
}

// ProvideBacktestJob creates the replay runner. Nil without the candle
// archive, since replays load their bars from ClickHouse.
func ProvideBacktestJob(engine *usecase.BacktestEngine, candles repository.CandleStore, store repository.BacktestStore, log *logger.Logger) *usecase.BacktestJob {
	if candles == nil {
		return nil
	}
	return usecase.NewBacktestJob(engine, candles, store, log)
}

// ProvideJobQueue creates the Redis-backed job queue with the replay
// runner registered. Nil when Redis is off or replays cannot run here.
func ProvideJobQueue(cfg *config.Config, job *usecase.BacktestJob, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Redis.Enabled || job == nil {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Backtest.Workers,
		RetryLimit: 3,
		RetryDelay: 5 * time.Second,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideBacktestSubmitter creates the async submission front. Nil
// without a queue; the API then only serves synchronous replays.
func ProvideBacktestSubmitter(q *queue.RedisQueue, store repository.BacktestStore, log *logger.Logger) *usecase.BacktestSubmitter {
	if q == nil {
		return nil
	}
	return usecase.NewBacktestSubmitter(q, store, log)
}

// ProvideAPIHandler assembles the HTTP surface.
func ProvideAPIHandler(
	log *logger.Logger,
	orch *usecase.Orchestrator,
	cache *usecase.MarketCache,
	analysis *usecase.AnalysisUseCase,
	candles *usecase.CandlesUseCase,
	job *usecase.BacktestJob,
	submit *usecase.BacktestSubmitter,
	trades repository.TradeStore,
	archive repository.CandleStore,
	stream repository.MarketStream,
	cfg *config.Config,
) xhttp.Handler {
	h := api.NewHandler(log, orch, cache, analysis, candles, job, submit)
	if cfg.Cache.ResponseTTL > 0 {
		var responses icache.BytesCache
		if cfg.Redis.Enabled {
			responses = icache.NewRedisCache(icache.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		} else {
			responses = icache.NewTTLCache()
		}
		h.SetResponseCache(responses, cfg.Cache.ResponseTTL)
		h.SetCandleCacheTTL(cfg.Cache.CandleTTL)
	}
	h.SetHealthProbes(trades, archive, stream)
	return h
}

// ProvideApp creates the application server. With a producer around,
// error logs are aggregated and shipped to the logs topic as well.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	cache *usecase.MarketCache,
	orch *usecase.Orchestrator,
	pipeline *mid.TickerPipeline,
	consumer *pkgkafka.Consumer,
	journal *usecase.TradeJournal,
	jobs *queue.RedisQueue,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      logPublisher{producer: producer},
		})
	}
	return server.New(cfg, log, cache, orch, pipeline, consumer, journal, jobs, producer, chClient, handler)
}

// logPublisher adapts the Kafka producer to the log collector.
type logPublisher struct {
	producer *pkgkafka.Producer
}

func (p logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
