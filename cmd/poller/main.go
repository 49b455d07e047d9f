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

	"github.com/richardliu001/bookmarket-service/internal/config"
	"github.com/richardliu001/bookmarket-service/internal/logger"
	"github.com/richardliu001/bookmarket-service/internal/metrics"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("bookmarket-poller", cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer kw.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(cfg.Outbox.MetricsAddr, reg, log)

	repo := repo.NewRepository(gdb, nil, kw, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Outbox.PollInterval)
	defer ticker.Stop()

	log.Infow("bookmarket-poller started", "topic", cfg.Kafka.Topic, "interval", cfg.Outbox.PollInterval)
	for {
		select {
		case <-ctx.Done():
			log.Info("bookmarket-poller stopped")
			return
		case <-ticker.C:
			relay(ctx, repo, cfg.Outbox.BatchSize, m, log)
		}
	}
}

// relay publishes one batch in order and stops at the first failure so a
// later event never overtakes an earlier one.
func relay(ctx context.Context, r repo.RepositoryInterface, batch int, m *metrics.Metrics, log *zap.SugaredLogger) {
	events, err := r.PollOutbox(ctx, batch)
	if err != nil {
		log.Errorw("poll outbox", "error", err)
		return
	}
	for _, evt := range events {
		if err := r.PublishEvent(ctx, evt); err != nil {
			m.OutboxPublished.WithLabelValues("failed").Inc()
			log.Errorw("publish outbox event", "id", evt.ID, "event_type", evt.EventType, "error", err)
			return
		}
		if err := r.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			log.Errorw("mark outbox event processed", "id", evt.ID, "error", err)
			return
		}
		m.OutboxPublished.WithLabelValues("published").Inc()
		log.Debugw("outbox event sent", "id", evt.ID, "event_type", evt.EventType)
	}
}

func serveMetrics(addr string, g prometheus.Gatherer, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("metrics listener", "error", err)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}
