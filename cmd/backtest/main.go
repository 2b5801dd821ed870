package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kieranvance/pulsetrader/internal/adapters/config"
	"github.com/kieranvance/pulsetrader/internal/adapters/database"
	"github.com/kieranvance/pulsetrader/internal/adapters/exchange"
	"github.com/kieranvance/pulsetrader/internal/backtest"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"

	_ "github.com/lib/pq"
)

func main() {
	var (
		agentName = flag.String("agent", "backtest-run", "Agent name recorded against this run")
		archetype = flag.String("archetype", models.ArchetypeMomentum, "Strategy archetype to replay")
		symbol    = flag.String("symbol", "BTCUSDT", "Trading symbol")
		timeframe = flag.String("timeframe", "1h", "Candle timeframe")
		fromDate  = flag.String("from", "2024-01-01", "Start date (YYYY-MM-DD)")
		toDate    = flag.String("to", "2024-03-01", "End date (YYYY-MM-DD)")
		balance   = flag.Float64("balance", 1000, "Initial balance")
	)
	flag.Parse()

	if err := logger.Init("info", ""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	startDate, err := time.Parse("2006-01-02", *fromDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid start date: %v\n", err)
		os.Exit(1)
	}
	endDate, err := time.Parse("2006-01-02", *toDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid end date: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	exchangeClient := exchange.NewClient(cfg.Exchange.BaseURL)
	store := database.NewBacktestStore(db.DB())
	engine := backtest.NewEngine(exchangeClient, store)

	backtestCfg := models.BacktestConfig{
		AgentName:         *agentName,
		StrategyArchetype: *archetype,
		Timeframe:         *timeframe,
		Symbol:            *symbol,
		StartDate:         startDate,
		EndDate:           endDate,
		InitialBalance:    *balance,
	}

	fmt.Printf("\nRunning backtest for %s (%s, %s)...\n", *symbol, *archetype, *timeframe)
	fmt.Printf("Period: %s to %s\n", *fromDate, *toDate)
	fmt.Printf("Initial balance: $%.2f\n\n", *balance)

	run, err := engine.Run(context.Background(), backtestCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backtest failed: %v\n", err)
		os.Exit(1)
	}

	printResult(run)
}

func printResult(run *models.BacktestRun) {
	finalEquity, _ := run.FinalEquity.Float64()
	totalPnL, _ := run.TotalPnL.Float64()
	initial, _ := run.InitialBalance.Float64()
	roi := 0.0
	if initial > 0 {
		roi = totalPnL / initial * 100
	}
	winRate := 0.0
	if run.TotalTrades > 0 {
		winRate = float64(run.WinningTrades) / float64(run.TotalTrades) * 100
	}

	fmt.Printf("Status:          %s\n", run.Status)
	fmt.Printf("Final equity:    $%.2f\n", finalEquity)
	fmt.Printf("Total PnL:       $%.2f (%.2f%% ROI)\n", totalPnL, roi)
	fmt.Printf("Total trades:    %d (%d winning, %.1f%% win rate)\n", run.TotalTrades, run.WinningTrades, winRate)
	fmt.Printf("Max drawdown:    %.2f%%\n", run.MaxDrawdownPct)
	if run.SharpeRatio != 0 {
		fmt.Printf("Sharpe ratio:    %.2f\n", run.SharpeRatio)
	} else {
		fmt.Printf("Sharpe ratio:    n/a\n")
	}

	fmt.Println("\nRECOMMENDATION:")
	switch {
	case roi > 10 && winRate > 50 && run.SharpeRatio > 1.0:
		fmt.Println("Strategy shows promise over this window.")
	case roi < 0 || winRate < 40:
		fmt.Println("Strategy underperformed over this window.")
	default:
		fmt.Println("Mixed results; more testing needed.")
	}
}
