package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"candleView/config"
	"candleView/internal/adapters/binanceclient"
	"candleView/internal/adapters/logger"
	"candleView/internal/adapters/sqlite"
	"candleView/internal/adapters/wsfeed"
	"candleView/internal/app"
	"candleView/internal/chart"
	"candleView/internal/ports"
)

// buildLogger picks the backend from config. The terminal UI owns stdout
// and stderr while running, so both backends default to a log file.
func buildLogger(cfg *config.Config) (ports.Logger, func(), error) {
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, err
		}
	}
	switch cfg.LogBackend {
	case "zap":
		zapLogger, err := logger.NewZapLogger(logger.ZapConfig{
			Level:      strings.ToLower(cfg.LogLevel.String()),
			OutputPath: cfg.LogFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return zapLogger, func() { _ = zapLogger.Sync() }, nil
	default:
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, err
			}
			return logger.NewStdLoggerTo(f, cfg.LogLevel), func() { _ = f.Close() }, nil
		}
		return logger.NewStdLogger(cfg.LogLevel), func() {}, nil
	}
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, flushLogs, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer flushLogs()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{
		"level":   cfg.LogLevel.String(),
		"backend": cfg.LogBackend,
	})

	// 3. Initialize Preference Store (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize preference store")
		log.Fatalf("FATAL: Failed to initialize preference store: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing preference store")
		}
	}()
	appLogger.Info(context.Background(), "Preference store initialized")

	// 4. Initialize History Provider (Binance Adapter)
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

	// 5. Initialize Live Feed (WebSocket Adapter)
	feed, err := wsfeed.New(wsfeed.Config{
		URL:            cfg.FeedURL,
		Logger:         appLogger,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ticker feed")
		log.Fatalf("FATAL: Failed to initialize ticker feed: %v", err)
	}
	appLogger.Info(context.Background(), "Ticker feed initialized", map[string]interface{}{"url": cfg.FeedURL})

	// 6. Initialize Renderer with the terminal scene sink
	sink := newSceneSink()
	renderer, err := chart.NewRenderer(chart.RendererConfig{
		Sink:   sink,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize renderer")
		log.Fatalf("FATAL: Failed to initialize renderer: %v", err)
	}

	// 7. Initialize Application Service
	chartService, err := app.NewChartService(
		cfg,
		appLogger,
		binanceClient, // Pass the concrete implementation, service expects the interface
		feed,          // Pass the concrete implementation, service expects the interface
		repo,          // Pass the concrete implementation, service expects the interface
		renderer,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize chart service")
		log.Fatalf("FATAL: Failed to initialize chart service: %v", err)
	}
	appLogger.Info(context.Background(), "Chart service initialized")

	// 8. Run the terminal host. The service starts from the model's Init
	// command so the first paint lands on a running program.
	model := newChartModel(chartService, sink, appLogger)
	program := tea.NewProgram(model, tea.WithAltScreen())
	sink.attach(program)

	if _, err := program.Run(); err != nil {
		appLogger.Error(context.Background(), err, "Terminal host exited with error")
		chartService.Stop()
		log.Fatalf("FATAL: Terminal host exited with error: %v", err)
	}
	chartService.Stop()
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
