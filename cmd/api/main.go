package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Jujubee-LLM/signature-ai/internal/codes"
	"github.com/Jujubee-LLM/signature-ai/internal/domain"
	"github.com/Jujubee-LLM/signature-ai/internal/http/handlers"
	"github.com/Jujubee-LLM/signature-ai/internal/http/httpapi"
	"github.com/Jujubee-LLM/signature-ai/internal/infra"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/memstore"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/pgstore"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/redisstore"
	"github.com/Jujubee-LLM/signature-ai/internal/quota"
	"github.com/Jujubee-LLM/signature-ai/internal/redeem"
	"github.com/Jujubee-LLM/signature-ai/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	ledger, cleanup, err := newLedger(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("failed to connect ledger store")
	}
	defer cleanup()

	// Seed pre-shared codes. Best-effort: a failed import is retried on the
	// next cold start.
	seed.NewLoader(ledger, logger).Run(ctx, seedTiers(cfg, logger))

	quotaEngine := quota.New(ledger, cfg.FreeQuotaLimit, logger)
	redeemEngine := redeem.New(ledger, cfg.FreeQuotaLimit, logger)
	codeAdmin := codes.New(ledger, cfg.CodeLength, logger)

	app := handlers.NewApp(logger, quotaEngine, redeemEngine, codeAdmin)
	router := httpapi.NewRouter(app, cfg.AdminToken, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newLedger connects the configured backend and returns the store plus a
// cleanup func for its connection pool.
func newLedger(ctx context.Context, cfg *infra.Config) (domain.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case infra.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix))
		return store, func() { _ = client.Close() }, nil

	case infra.BackendPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil

	case infra.BackendMemory:
		return memstore.New(), func() {}, nil
	}
	// LoadConfig already rejected anything else.
	return memstore.New(), func() {}, nil
}

// seedTiers merges env-configured code lists with the optional YAML file.
func seedTiers(cfg *infra.Config, logger infra.Logger) []seed.Tier {
	var tiers []seed.Tier
	for credits, list := range cfg.SeedLists() {
		tiers = append(tiers, seed.Tier{Credits: credits, Codes: list})
	}

	if cfg.SeedCodesFile != "" {
		fileTiers, err := seed.ParseFile(cfg.SeedCodesFile)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.SeedCodesFile).Msg("seed file skipped")
		} else {
			tiers = append(tiers, fileTiers...)
		}
	}
	return tiers
}
