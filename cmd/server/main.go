// Package main is the entry point for nova-trader: an autonomous
// cryptocurrency launch-scanning and trading system combining C1 (provider
// fallback orchestrator), C2 (live scanner and trading engine), C3 (tabular
// Q-learning decision agent), and C4 (alert/monitor engine) behind a single
// ambient HTTP/WebSocket status surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/nova-trader/internal/agent"
	"github.com/atlas-desktop/nova-trader/internal/alerts"
	"github.com/atlas-desktop/nova-trader/internal/api"
	"github.com/atlas-desktop/nova-trader/internal/config"
	"github.com/atlas-desktop/nova-trader/internal/engine"
	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/internal/execution"
	"github.com/atlas-desktop/nova-trader/internal/execution/adapters"
	"github.com/atlas-desktop/nova-trader/internal/marketdata"
	"github.com/atlas-desktop/nova-trader/internal/ml"
	"github.com/atlas-desktop/nova-trader/internal/mlcache"
	"github.com/atlas-desktop/nova-trader/internal/orchestrator"
	"github.com/atlas-desktop/nova-trader/internal/persistence"
	"github.com/atlas-desktop/nova-trader/internal/scanner"
	"github.com/atlas-desktop/nova-trader/internal/sizing"
	"github.com/atlas-desktop/nova-trader/internal/workers"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults to ./nova-trader.yaml if present)")
	logLevel := flag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting nova-trader",
		zap.String("mode", string(cfg.Engine.Mode)),
		zap.Strings("platforms", platformStrings(cfg.Engine.Platforms)),
		zap.String("dataDir", cfg.DataDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.Open(logger, cfg.DataDir+"/nova-trader.db")
	if err != nil {
		logger.Fatal("opening persistence store", zap.Error(err))
	}
	defer store.Close()

	cache, err := mlcache.New(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis cache unavailable, proceeding without it", zap.Error(err))
		cache = nil
	}
	if cache != nil {
		defer cache.Close()
	}

	bus := events.NewBus(logger, events.DefaultBusConfig())
	defer bus.Close()

	chain := buildMarketDataChain(logger, cfg.Providers)
	chat := buildChatOrchestrator(logger)

	scan := scanner.New(logger, buildScanSources(cfg.Engine.Platforms), 1.0)

	sim := execution.NewSimulator(logger, execution.DefaultSimulatorConfig())
	executor := execution.New(logger, execution.Config{Mode: cfg.Engine.Mode}, sim)
	wireExecutionAdapters(logger, executor)

	risk := execution.NewRiskManager(logger, cfg.Risk)
	sizer := sizing.NewPositionSizer(logger, sizing.DefaultSizingConfig())
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("engine"))
	pool.Start()
	defer pool.Stop()

	var advisor engine.AIAdvisor
	if cfg.Engine.UseAIAnalysis && chat.AvailableCount() > 0 {
		advisor = engine.NewChatAdvisor(chat)
	}

	tradingEngine := engine.New(logger, engine.Config{Engine: cfg.Engine, Strategy: cfg.Strategy}, engine.Dependencies{
		Scanner:  scan,
		Executor: executor,
		Risk:     risk,
		Enricher: engine.NewMarketDataEnricher(chain),
		Advisor:  advisor,
		Sizer:    sizer,
		Store:    store,
		Bus:      bus,
		Pool:     pool,
	})

	decisionAgent := agent.New(logger, agent.Config{
		Agent:            cfg.Agent,
		DecisionInterval: 10 * time.Second,
		HistoryLimit:     500,
	}, store, bus, tradingEngine, time.Now().UnixNano())

	alertManager := alerts.New(logger, alerts.Dependencies{
		Market:    chain,
		Pattern:   ml.NewTrendPatternRecognizer(logger, ml.DefaultPatternConfig()),
		Sentiment: ml.NewConsensusSentimentAnalyzer(ml.DefaultSentimentConfig()),
		Anomaly:   ml.NewZScoreAnomalyDetector(ml.DefaultAnomalyConfig()),
		Cache:     cache,
		Store:     store,
		Bus:       bus,
	}, nil)
	if err := alertManager.LoadPersisted(ctx); err != nil {
		logger.Warn("loading persisted alerts", zap.Error(err))
	}

	apiServer := api.NewServer(logger, cfg.Server, api.Dependencies{
		Engine: tradingEngine,
		Agent:  decisionAgent,
		Alerts: alertManager,
		Chat:   chat,
		Bus:    bus,
		JWTKey: cfg.Server.JWTSigningKey,
	})
	apiServer.SubscribeEventBus()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := tradingEngine.Start(ctx); err != nil {
		logger.Fatal("starting engine", zap.Error(err))
	}
	if err := decisionAgent.Start(ctx, cfg.Engine.Mode, cfg.Strategy.Sizing.BaseAmountSOL); err != nil {
		logger.Fatal("starting agent", zap.Error(err))
	}

	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("nova-trader started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)),
	)

	<-sigChan
	logger.Info("shutdown signal received")
	cancel()

	if _, err := decisionAgent.Stop(ctx); err != nil {
		logger.Error("stopping agent", zap.Error(err))
	}
	if err := tradingEngine.Stop(); err != nil {
		logger.Error("stopping engine", zap.Error(err))
	}
	alertManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("stopping api server", zap.Error(err))
	}

	logger.Info("nova-trader stopped")
}

// buildMarketDataChain wires C1's market-data normalization chain (§6.2)
// from the configured provider list, in priority order.
func buildMarketDataChain(logger *zap.Logger, specs []types.ProviderSpec) *marketdata.Chain {
	sources := make([]marketdata.Source, 0, len(specs))
	for _, spec := range specs {
		switch spec.Name {
		case "coinmarketcap":
			sources = append(sources, marketdata.NewCoinMarketCap(spec.Credentials))
		case "coingecko":
			sources = append(sources, marketdata.NewCoinGecko())
		case "cryptocompare":
			sources = append(sources, marketdata.NewCryptoCompare(spec.Credentials))
		default:
			logger.Warn("unknown market data provider, skipping", zap.String("name", spec.Name))
		}
	}
	return marketdata.New(logger, sources)
}

// buildChatOrchestrator wires C1's chat-completion fallback chain from
// whichever provider credentials are present in the environment. An absent
// key simply omits that provider rather than failing startup.
func buildChatOrchestrator(logger *zap.Logger) *orchestrator.Orchestrator {
	var providers []orchestrator.Provider
	if key := os.Getenv("PERPLEXITY_API_KEY"); key != "" {
		providers = append(providers, orchestrator.NewPerplexityProvider(key, os.Getenv("PERPLEXITY_MODEL"), types.TierPrimary))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o-mini"
		}
		providers = append(providers, orchestrator.NewOpenAICompatibleProvider(
			"openai", "https://api.openai.com/v1/chat/completions", key, model, types.TierOptional, false,
		))
	}
	if url := os.Getenv("LOCAL_LLM_URL"); url != "" {
		model := os.Getenv("LOCAL_LLM_MODEL")
		if model == "" {
			model = "local"
		}
		providers = append(providers, orchestrator.NewOpenAICompatibleProvider(
			"local-llm", url, os.Getenv("LOCAL_LLM_API_KEY"), model, types.TierOptional, true,
		))
	}
	return orchestrator.New(logger, orchestrator.DefaultConfig(), providers)
}

// buildScanSources wires C2's launchpad scrapers (§6.3) for each configured
// platform, via the configured HTTP endpoints. An endpoint URL of "" skips
// that platform rather than failing startup.
func buildScanSources(platforms []types.Platform) []scanner.Source {
	urlEnv := map[types.Platform]string{
		types.PlatformPumpFun: "PUMPFUN_SCAN_URL",
		types.PlatformBonkFun: "BONKFUN_SCAN_URL",
	}
	var sources []scanner.Source
	for _, platform := range platforms {
		envKey, ok := urlEnv[platform]
		if !ok {
			continue
		}
		url := os.Getenv(envKey)
		if url == "" {
			continue
		}
		sources = append(sources, scanner.NewHTTPSource(string(platform), platform, url))
	}
	return sources
}

// wireExecutionAdapters registers the on-chain/exchange adapters the
// Executor dispatches to in live mode (§4.2.2). Paper/simulation mode never
// calls these; they're registered regardless of the configured mode, and the
// Executor's mode is fixed when it is constructed.
func wireExecutionAdapters(logger *zap.Logger, executor *execution.Executor) {
	executor.AddAdapter(adapters.NewSolanaAdapter(logger, adapters.SolanaConfig{
		JupiterURL:  envOrDefault("JUPITER_URL", "https://quote-api.jup.ag/v6"),
		SlippageBPS: 100,
	}))
	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		executor.AddAdapter(adapters.NewBinanceAdapter(logger, adapters.BinanceConfig{
			APIKey:    key,
			APISecret: os.Getenv("BINANCE_API_SECRET"),
			Testnet:   os.Getenv("BINANCE_TESTNET") == "true",
		}))
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func platformStrings(platforms []types.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
