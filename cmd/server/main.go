package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/bookmarket-service/internal/auth"
	"github.com/richardliu001/bookmarket-service/internal/config"
	"github.com/richardliu001/bookmarket-service/internal/db"
	"github.com/richardliu001/bookmarket-service/internal/logger"
	"github.com/richardliu001/bookmarket-service/internal/metrics"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"github.com/richardliu001/bookmarket-service/internal/service"
	httptransport "github.com/richardliu001/bookmarket-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config; a missing .env is fine
	_ = godotenv.Load()
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Auth.Validate(); err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("bookmarket-server", cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	if err := db.Migrate(cfg.Postgres.DSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	// 4. redis; the balance cache degrades to direct reads when it is down
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warnw("redis ping", "error", err)
	}

	// 5. payments
	feeRate, err := cfg.Payments.PlatformFeeRate()
	if err != nil {
		log.Fatalf("fee rate: %v", err)
	}
	if cfg.Payments.WebhookSecret == "" {
		log.Warn("payments.webhook_secret unset; every webhook will be rejected")
	}
	proc := payment.NewStripeProcessor(payment.StripeOptions{
		SecretKey:         cfg.Payments.SecretKey,
		APIURL:            cfg.Payments.APIURL,
		Timeout:           cfg.Payments.Timeout,
		MaxNetworkRetries: cfg.Payments.MaxNetworkRetries,
		FrontendURL:       cfg.Payments.FrontendURL,
	}, nil, log)
	verifier := payment.NewStripeVerifier(cfg.Payments.WebhookSecret)
	opts := service.SettlementOptions{
		Currency:    cfg.Payments.Currency,
		FeeRate:     feeRate,
		Strategy:    cfg.Payments.Settlement,
		FrontendURL: cfg.Payments.FrontendURL,
		Timeout:     cfg.Payments.Timeout,
	}

	// 6. metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 7. repo & services; the server never publishes to kafka, the poller does
	repository := repo.NewRepository(gdb, rdb, nil, log)
	h := &httptransport.Handler{
		Checkout:  service.NewCheckoutService(repository, proc, opts, m, log),
		Webhooks:  service.NewWebhookService(repository, proc, verifier, opts, m, log),
		Purchases: service.NewPurchaseService(repository),
		Sellers:   service.NewSellerService(repository, proc, log),
		Balance:   service.NewBalanceService(repository, proc, cfg.Auth.AdminUserIDs, cfg.Redis.BalanceTTL, log),
		Catalog:   service.NewCatalogService(repository, log),
	}

	// 8. gin router
	router := httptransport.NewRouter(h, httptransport.RouterDeps{
		RateLimit: cfg.RateLimit,
		Verifier:  auth.NewVerifier(cfg.Auth.AccessTokenSecret),
		Users:     repository,
		Gatherer:  reg,
		Log:       log,
	})

	// 9. serve until signalled
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}
	go func() {
		log.Infow("bookmarket-server listening", "addr", srv.Addr, "settlement", opts.Strategy, "fee_rate", feeRate.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown", "error", err)
	}
	if err := rdb.Close(); err != nil {
		log.Warnw("close redis", "error", err)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}
