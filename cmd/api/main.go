package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
	"github.com/ariefcatur/marketplace-orders/internal/config"
	"github.com/ariefcatur/marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/memstore"
	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/outbox"
	"github.com/ariefcatur/marketplace-orders/internal/postgres"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// outboxStore is what the relay needs from either store driver.
type outboxStore interface {
	checkout.Store
	outbox.Source
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := obs.NewLogger(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var store outboxStore
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		store = memstore.New(cfg.LockTimeout)
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			log.Error("db connect", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("db migrate", "error", err)
			os.Exit(1)
		}
		store = postgres.NewStore(db, cfg.LockTimeout)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := &checkout.Service{
		Store:          store,
		Logger:         log,
		Metrics:        metrics.NewCheckout(reg),
		ServiceName:    cfg.ServiceName,
		DefaultAddress: cfg.DefaultShippingAddress,
	}
	oh := &httpx.OrdersHandler{Svc: svc, Logger: log}

	// Redis (opsional)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable; cache and idempotency keys disabled", "error", err)
		} else {
			oh.Cache = &redisx.StatusCache{R: rdb}
			oh.Idem = &redisx.Idempotency{R: rdb}
		}
	}

	var wg sync.WaitGroup

	// Outbox relay -> Kafka
	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers)
		defer prod.Close()
		relay := &outbox.Relay{
			Source:    store,
			Publisher: prod,
			Interval:  cfg.OutboxInterval,
			Batch:     cfg.OutboxBatch,
			Logger:    log.With("component", "outbox"),
			Metrics:   metrics.NewRelay(reg),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	} else {
		log.Warn("KAFKA_BROKERS empty; events stay in the outbox")
	}

	router := httpx.NewRouter(httpx.RouterOptions{
		Timeout:  cfg.RequestTimeout,
		Metrics:  metrics.NewServerMetrics(reg, "api"),
		Gatherer: reg,
	})
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	wg.Wait() // relay selesai sebelum producer ditutup
}
