package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microlend/config"
	httpLayer "microlend/http"
	"microlend/ledger"
	"microlend/logging"
	"microlend/messaging"
	promcollector "microlend/metrics/prometheus"
	"microlend/repository"
	"microlend/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const metricsNamespace = "microlend"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.LogDev,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector := promcollector.NewCollector(metricsNamespace)
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	httpMetrics := httpLayer.NewHTTPMetrics(metricsNamespace)
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	checks := map[string]httpLayer.Pinger{}

	var backend repository.KeyValueStore
	switch cfg.StoreBackend {
	case "redis":
		redisStore := repository.NewRedisStore(cfg.RedisAddr, "microlend:")
		defer redisStore.Close()
		checks["redis"] = redisStore
		backend = redisStore
	default:
		memoryStore := repository.NewMemoryStore()
		defer memoryStore.Stop()
		backend = memoryStore
	}
	store := repository.NewResilientStore(cfg.StoreBackend, backend, repository.DefaultBreakerConfig(), collector)

	var repo repository.LoanRepository
	switch cfg.DBBackend {
	case "sqlite":
		sqliteRepo, err := repository.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("open loan repository: %w", err)
		}
		defer sqliteRepo.Close()
		checks["sqlite"] = sqliteRepo
		repo = sqliteRepo
	default:
		repo = repository.NewLoanRepositoryMemory()
	}

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := messaging.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	submitter := ledger.NewSimulator(cfg.LedgerConfirmDelay, collector)

	loanService := service.NewLoanService(repo, store,
		service.WithQuoteTTL(cfg.QuoteCacheTTL),
		service.WithMarketplaceRate(cfg.DefaultAPR),
		service.WithMetrics(collector),
	)
	requestService := service.NewLoanRequestService(loanService, repo, store, submitter, publisher,
		service.WithDraftTTL(cfg.DraftTTL),
		service.WithDefaultNetwork(cfg.DefaultNetwork),
	)

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	rateLimiter := httpLayer.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitWindow)
	defer rateLimiter.Stop()

	router := httpLayer.NewRouter(httpLayer.RouterConfig{
		Loans:          loanService,
		Terms:          service.NewTermRecommendationService(loanService),
		Payoff:         service.NewPayoffPlanner(),
		Requests:       requestService,
		Funding:        service.NewFundingService(repo, submitter, publisher, cfg.DefaultNetwork),
		Repayments:     service.NewRepaymentService(repo, submitter, publisher, cfg.DefaultNetwork),
		Limiter:        rateLimiter,
		TrustedProxies: trustedProxies,
		Metrics:        httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		HealthChecks:   checks,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("db", cfg.DBBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
