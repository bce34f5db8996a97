package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/compose"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/health"
	"github.com/heroes-chatbot/orchestrator/internal/historical"
	"github.com/heroes-chatbot/orchestrator/internal/llm"
	"github.com/heroes-chatbot/orchestrator/internal/market"
	_ "github.com/heroes-chatbot/orchestrator/internal/metrics" // Import for side effects
	"github.com/heroes-chatbot/orchestrator/internal/orchestration"
	"github.com/heroes-chatbot/orchestrator/internal/rag"
	"github.com/heroes-chatbot/orchestrator/internal/router"
	"github.com/heroes-chatbot/orchestrator/internal/server"
	"github.com/heroes-chatbot/orchestrator/internal/session"
	"github.com/heroes-chatbot/orchestrator/internal/symbols"
	"github.com/heroes-chatbot/orchestrator/internal/tracing"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	circuitbreaker.StartMetricsCollection()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without traces", zap.Error(err))
	}

	// Symbol aliases are hot-reloadable through the config watcher.
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "./config"
	}
	resolver := symbols.NewResolver(logger)
	aliasPath := filepath.Join(configDir, "symbols.yaml")
	if err := resolver.LoadAliases(aliasPath); err != nil {
		logger.Warn("Symbol aliases not loaded, built-in table only",
			zap.String("path", aliasPath), zap.Error(err))
	}

	configMgr, err := config.NewManager(configDir, logger)
	if err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else {
		configMgr.RegisterHandler("symbols.yaml", func(event config.ChangeEvent) error {
			return resolver.LoadAliases(aliasPath)
		})
		if err := configMgr.Start(ctx); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		} else {
			defer configMgr.Stop()
		}
	}

	// Retrieval: Qdrant first, keyword fallback when it is down.
	embedder := rag.NewHTTPEmbedder(cfg.LLM.BaseURL, "", cfg.Retrieval.Timeout, logger)
	qdrant := rag.NewQdrantRetriever(rag.QdrantConfig{
		BaseURL:    cfg.Retrieval.BaseURL,
		Collection: cfg.Retrieval.Collection,
		Timeout:    cfg.Retrieval.Timeout,
	}, embedder, logger)
	keyword := rag.NewKeywordRetriever(logger)
	seedPath := filepath.Join(configDir, "knowledge.yaml")
	if err := keyword.LoadSeedFile(seedPath); err != nil {
		logger.Warn("Fallback seed corpus not loaded, retrieval outages return no evidence",
			zap.String("path", seedPath), zap.Error(err))
	}
	retriever := rag.NewService(qdrant, keyword, logger)

	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	marketClient := market.NewClient(market.Config{
		BaseURL:     cfg.Market.BaseURL,
		AccessToken: cfg.Market.AccessToken,
		Timeout:     cfg.Market.Timeout,
		RatePerSec:  cfg.Market.RatePerSec,
		RateBurst:   cfg.Market.RateBurst,
		MaxParallel: cfg.Market.MaxParallel,
	}, logger)

	store, err := historical.NewStore(cfg.Historical, logger)
	if err != nil {
		logger.Fatal("Failed to open historical store", zap.Error(err))
	}
	defer store.Close()
	if err := store.Load(ctx); err != nil {
		logger.Warn("Historical snapshots not loaded, answers degrade to live data only", zap.Error(err))
	}

	sessions, err := session.NewManager(cfg.Session, logger)
	if err != nil {
		logger.Fatal("Failed to connect session store", zap.Error(err))
	}
	defer sessions.Close()
	sessions.StartCleanup()

	engine := orchestration.NewEngine(orchestration.Deps{
		Router:    router.New(resolver, logger),
		Retriever: retriever,
		Generator: llmClient,
		Store:     store,
		Quotes:    marketClient,
		Composer:  compose.New(llmClient, logger),
	}, cfg.Engine, cfg.Retrieval, logger)

	healthMgr := health.NewManager(logger)
	if err := healthMgr.RegisterChecker(health.NewRedisChecker(sessions.RedisWrapper(), logger)); err != nil {
		logger.Warn("Redis health check not registered", zap.Error(err))
	}
	if err := healthMgr.RegisterChecker(health.NewStoreChecker(store, logger)); err != nil {
		logger.Warn("Store health check not registered", zap.Error(err))
	}
	if err := healthMgr.RegisterChecker(health.NewHTTPServiceChecker("qdrant", cfg.Retrieval.BaseURL, false, qdrant.IsCircuitOpen, logger)); err != nil {
		logger.Warn("Qdrant health check not registered", zap.Error(err))
	}
	if err := healthMgr.RegisterChecker(health.NewHTTPServiceChecker("llm", cfg.LLM.BaseURL, true, llmClient.IsCircuitOpen, logger)); err != nil {
		logger.Warn("LLM health check not registered", zap.Error(err))
	}
	healthMgr.Start()
	defer healthMgr.Stop()
	healthServer := health.StartHealthServer(healthMgr, cfg.Service.HealthPort, logger)

	apiServer := server.NewServer(engine, sessions, cfg.Auth, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start(cfg.Service.Port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("API server exited", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown incomplete", zap.Error(err))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Health server shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
