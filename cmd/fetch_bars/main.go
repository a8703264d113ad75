package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"candleView/config"
	"candleView/internal/adapters/binanceclient"
	"candleView/internal/adapters/logger"
	"candleView/internal/domain"
	"candleView/internal/utils"
)

func main() {
	months := flag.Int("months", 3, "how many months of history to export")
	out := flag.String("out", "", "output CSV path (default data/<symbol>_<granularity>_<range>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger (stderr is free here, no UI involved)
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize History Provider (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	symbol := cfg.Symbol
	granularity := cfg.Granularity
	end := time.Now()
	start := end.AddDate(0, -*months, 0)

	fmt.Printf("Fetching bars for %s %s from %s to %s...\n", symbol, granularity, start, end)
	bars, err := binanceClient.FetchBarsRange(context.Background(), symbol, granularity, start, end)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching bars")
		log.Fatalf("Error fetching bars: %v", err)
	}
	domain.SortBarsAscending(bars)
	appLogger.Info(context.Background(), "Fetched bars", map[string]interface{}{"count": len(bars)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", symbol, granularity, start.Format("20060102"), end.Format("20060102"))
	}
	if err := utils.WriteBarsToCSV(bars, symbol, granularity, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
