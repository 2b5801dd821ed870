package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"

	"github.com/kieranvance/pulsetrader/internal/adapters/clickhouse"
	"github.com/kieranvance/pulsetrader/internal/adapters/config"
	"github.com/kieranvance/pulsetrader/internal/adapters/database"
	"github.com/kieranvance/pulsetrader/internal/adapters/exchange"
	"github.com/kieranvance/pulsetrader/internal/adapters/notify"
	redisAdapter "github.com/kieranvance/pulsetrader/internal/adapters/redis"
	"github.com/kieranvance/pulsetrader/internal/agent"
	"github.com/kieranvance/pulsetrader/internal/health"
	"github.com/kieranvance/pulsetrader/internal/indicators"
	"github.com/kieranvance/pulsetrader/internal/pipeline"
	"github.com/kieranvance/pulsetrader/internal/portfolio"
	"github.com/kieranvance/pulsetrader/internal/regime"
	"github.com/kieranvance/pulsetrader/internal/strategy"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
	"github.com/kieranvance/pulsetrader/pkg/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("pulsetrader pipeline starting")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	healthServer := health.NewServer(cfg.Health.Port, db, redisClient)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server stopped", zap.Error(err))
		}
	}()
	defer healthServer.Stop(context.Background())

	exchangeClient := exchange.NewClient(cfg.Exchange.BaseURL)

	notifier, err := notify.NewTelegramNotifier(&cfg.Telegram)
	if err != nil {
		return fmt.Errorf("init telegram notifier: %w", err)
	}

	pipelineStore := database.NewPipelineStore(db.DB())
	agentStore := database.NewAgentStore(db.DB())
	portfolioStore := database.NewPortfolioStore(db.DB())
	regimeStore := database.NewRegimeStore(db.DB())

	regimeClassifier := regime.NewClassifier(regimeStore, regimeStore)
	lockFactory := redisClient.LockFactory(cfg.Pipeline.LockTTL)

	pipelineRunner := pipeline.NewRunner(
		exchangeClient,
		pipelineStore,
		lockFactory,
		regimeClassifier,
		indicators.DefaultRegistry(),
		decimal.NewFromFloat(cfg.Exchange.MinVolumeUSDT),
	)

	if cfg.ClickHouse.Enabled {
		chDB, err := sqlx.Connect("clickhouse", cfg.ClickHouse.GetDSN())
		if err != nil {
			logger.Warn("clickhouse unavailable, candle archiving disabled", zap.Error(err))
		} else {
			defer chDB.Close()
			chRepo := clickhouse.NewRepository(chDB)
			candleWriter := clickhouse.NewBatchWriter(chRepo, 1000, 10*time.Second)
			defer candleWriter.Close()
			pipelineRunner.SetCandleArchiver(candleWriter)
		}
	}

	// engine=llm agents are handled entirely via the LLMExecutor contract;
	// the concrete provider integration is an external collaborator (spec
	// Non-goals), so this stays nil and those agents resolve to a hold.
	var llmExecutor agent.LLMExecutor

	portfolioManager := portfolio.NewManager(portfolioStore)
	agentRunner := agent.NewRunner(agentStore, portfolioManager, strategy.DefaultRegistry(), llmExecutor, notifier)
	agentRunner.SetDrawdownAlertPct(cfg.Portfolio.DrawdownAlertPct)

	cadences := pipeline.Cadences{
		models.Timeframe15m: cfg.Pipeline.Cadence15m,
		models.Timeframe30m: cfg.Pipeline.Cadence30m,
		models.Timeframe1h:  cfg.Pipeline.Cadence1h,
		models.Timeframe4h:  cfg.Pipeline.Cadence4h,
		models.Timeframe1d:  cfg.Pipeline.Cadence1d,
		models.Timeframe1w:  cfg.Pipeline.Cadence1w,
	}

	group := worker.NewWorkerGroup(ctx)
	for _, tf := range models.AllTimeframes {
		cadence, ok := cadences[tf]
		if !ok {
			continue
		}
		group.Add(pipeline.NewTimeframeWorker(tf, pipelineRunner, agentRunner), cadence)
	}

	healthServer.SetReady(true)
	logger.Info("pulsetrader pipeline ready", zap.Duration("min_cadence", cfg.Pipeline.Cadence15m))

	group.Start()
	<-ctx.Done()
	group.Stop(30 * time.Second)

	logger.Info("pulsetrader pipeline shut down")
	return nil
}
