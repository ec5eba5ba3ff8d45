package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
	_ "github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource/mssql"
	_ "github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource/postgres"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/airtable"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/answer"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/config"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/handlers"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/llm"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/logging"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/middleware"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/services"
	"github.com/ksandersbbb5/crm-query-assistant/pkg/sqlgen"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// .env is a local development convenience; absence is fine
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Relational backend. Missing credentials leave the executor nil and the
	// SQL path reports itself unconfigured instead of failing at startup.
	var executor datasource.QueryExecutor
	if cfg.SQL.IsConfigured() {
		executor, err = datasource.New(ctx, cfg.SQL.Driver, &datasource.Config{
			Host:                   cfg.SQL.Host,
			Port:                   cfg.SQL.Port,
			Database:               cfg.SQL.Database,
			Username:               cfg.SQL.Username,
			Password:               cfg.SQL.Password,
			Encrypt:                cfg.SQL.Encrypt,
			TrustServerCertificate: cfg.SQL.TrustServerCertificate,
			SSLMode:                cfg.SQL.SSLMode,
			ConnectionTimeout:      cfg.SQL.ConnectionTimeout,
		})
		if err != nil {
			logger.Fatal("Failed to create query executor", zap.Error(err))
		}
		defer func() { _ = executor.Close() }()
		logger.Info("Relational backend configured",
			zap.String("driver", cfg.SQL.Driver),
			zap.String("host", cfg.SQL.Host),
			zap.String("database", cfg.SQL.Database))
	} else {
		logger.Warn("Relational backend not configured; SQL questions will report an error")
	}

	// Text-generation delegate. Optional on both paths.
	var llmClient llm.LLMClient
	if cfg.LLM.IsConfigured() {
		apiKey := cfg.LLM.APIKey
		if cfg.LLM.Provider == "anthropic" {
			apiKey = cfg.LLM.AnthropicAPIKey
		}
		llmClient, err = llm.NewFromConfig(&llm.Config{
			Provider:  cfg.LLM.Provider,
			APIKey:    apiKey,
			Model:     cfg.LLM.Model,
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create LLM client", zap.Error(err))
		}
		logger.Info("Text-generation delegate configured",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", llmClient.GetModel()))
	} else {
		logger.Info("No text-generation credential; using canned queries and templated answers")
	}

	// Record store. Optional; photo questions fail cleanly without it.
	var store *airtable.Client
	if cfg.Airtable.IsConfigured() {
		store = airtable.NewClient(airtable.Config{
			APIKey:  cfg.Airtable.APIKey,
			BaseID:  cfg.Airtable.BaseID,
			Table:   cfg.Airtable.Table,
			BaseURL: cfg.Airtable.BaseURL,
		}, logger)
		logger.Info("Record store configured",
			zap.String("base", cfg.Airtable.BaseID),
			zap.String("table", cfg.Airtable.Table))
	} else {
		logger.Warn("Record store not configured; photo questions will report an error")
	}

	generator := sqlgen.NewGenerator(llmClient, sqlgen.Dialect(cfg.SQL.Driver),
		cfg.Limits.DefaultResultLimit, cfg.LLM.Temperature, logger)
	formatter := answer.NewFormatter(llmClient, logger)

	queryService := services.NewQueryService(executor, generator, store, formatter, services.QueryServiceOptions{
		PageSize:             cfg.Airtable.PageSize,
		MaxScanRecords:       cfg.Airtable.MaxScanRecords,
		DefaultLimit:         cfg.Limits.DefaultResultLimit,
		MaxLimit:             cfg.Limits.MaxResultLimit,
		RawResultsCap:        cfg.Limits.RawResultsCap,
		DisableRecordSummary: cfg.Answer.DisableRecordSummary,
	}, logger)

	// The shared secret guards the query endpoint only; health and metrics
	// stay open for probes and scrapers.
	apiMux := http.NewServeMux()
	queryHandler := handlers.NewQueryHandler(queryService, executor, cfg, logger)
	queryHandler.RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/api/query", middleware.SharedSecret(cfg.Auth.SharedSecret, logger)(apiMux))

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.CORS()(handler)
	handler = middleware.RequestLogger(logger)(handler)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting crm-query-assistant",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
