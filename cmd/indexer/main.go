package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/agent-ledger-indexer/internal/api"
	"github.com/p-blackswan/agent-ledger-indexer/internal/config"
	"github.com/p-blackswan/agent-ledger-indexer/internal/detail"
	"github.com/p-blackswan/agent-ledger-indexer/internal/health"
	"github.com/p-blackswan/agent-ledger-indexer/internal/ledger"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	contracts, params, err := config.Resolve(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ContractsFile).Msg("failed to load contracts manifest")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("ledger", cfg.LedgerAPIURL).
		Str("deployer", contracts.Deployer).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("starting ledger indexer")

	m := metrics.New()

	client := ledger.NewClient(ledger.Options{
		BaseURL:     cfg.LedgerAPIURL,
		Contracts:   contracts,
		PageSize:    cfg.EventPageSize,
		Timeout:     cfg.LedgerTimeout,
		ReadRetries: cfg.LedgerReadRetries,
		Metrics:     m,
	}, logger)

	engine := projection.NewEngine(client, contracts, m, logger)
	snapshots := projection.NewCache(engine, cfg.CacheTTL, logger)
	m.WatchSnapshotAge(func() float64 {
		age := snapshots.Age()
		if age < 0 {
			return -1
		}
		return age.Seconds()
	})

	details := detail.NewService(client, detail.Options{
		CacheSize: cfg.DetailCacheSize,
		CacheTTL:  cfg.DetailCacheTTL,
		Params:    params,
		Metrics:   m,
	}, logger)

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("ledger", health.PingCheck(client))
	// a snapshot older than a few TTLs means rebuilds keep failing
	checker.Register("snapshot", health.AgeCheck(snapshots.Age, 5*cfg.CacheTTL))

	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   api.RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		CacheTTL:    cfg.CacheTTL,
	}, api.Deps{
		Projection: snapshots,
		Details:    details,
		Checker:    checker,
		Metrics:    m,
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("server stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	stats := details.CacheStats()
	logger.Info().
		Uint64("detail_cache_hits", stats.Hits).
		Uint64("detail_cache_misses", stats.Misses).
		Msg("ledger indexer stopped")
}
