package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mid "github.com/kiheon-jang/autoTrade-sub000/internal/middleware"
	"github.com/kiheon-jang/autoTrade-sub000/internal/usecase"
	pkgch "github.com/kiheon-jang/autoTrade-sub000/pkg/clickhouse"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/config"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
	pkgkafka "github.com/kiheon-jang/autoTrade-sub000/pkg/kafka"
	applogger "github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/queue"
)

// App encapsulates the entire application lifecycle. Optional
// components (pipeline, consumer, journal, jobs, producer, chClient)
// may be nil depending on configuration.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	cache    *usecase.MarketCache
	orch     *usecase.Orchestrator
	pipeline *mid.TickerPipeline
	consumer *pkgkafka.Consumer
	journal  *usecase.TradeJournal
	jobs     *queue.RedisQueue
	producer *pkgkafka.Producer
	chClient *pkgch.Client
	handler  xhttp.Handler

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	cache *usecase.MarketCache,
	orch *usecase.Orchestrator,
	pipeline *mid.TickerPipeline,
	consumer *pkgkafka.Consumer,
	journal *usecase.TradeJournal,
	jobs *queue.RedisQueue,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		orch:     orch,
		pipeline: pipeline,
		consumer: consumer,
		journal:  journal,
		jobs:     jobs,
		producer: producer,
		chClient: chClient,
		handler:  handler,
	}
}

// Run starts the application and blocks until interrupted. The market
// cache comes up first since everything downstream reads from it.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.cache.Start(ctx); err != nil {
		a.log.Error("market cache start error", applogger.Error(err))
		return err
	}

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("ticker pipeline started")
	}

	if err := a.orch.Start(ctx); err != nil {
		a.log.Error("orchestrator start error", applogger.Error(err))
		return err
	}
	pf := a.orch.Portfolio()
	a.log.Info("orchestrator started",
		applogger.String("mode", pf.Mode.String()),
		applogger.Float64("capital", pf.InitialCapital),
	)

	if a.consumer != nil && a.journal != nil {
		a.journal.Start(ctx)
		a.consumer.RegisterHandler(a.journal)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("trade journal started", applogger.String("topic", a.journal.Topic()))
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.log.Error("backtest queue start error", applogger.Error(err))
		} else {
			a.log.Info("backtest queue started")
		}
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops services in dependency order: trading halts first so
// no orders fire while the data layers wind down, ingestion drains
// next, the HTTP surface and clients close last.
func (a *App) shutdown(ctx context.Context) error {
	a.orch.Stop()

	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	a.cache.Stop()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.journal != nil {
		a.journal.Stop()
	}

	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.log.Warn("backtest queue stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	// Flush any aggregated error logs before the producer goes away.
	a.log.RemoveCollector()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
