package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/projector"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-projector"
	log := obs.NewLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		log.Error("KAFKA_BROKERS and REDIS_ADDR are required")
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Error("redis", "error", err)
		os.Exit(1)
	}

	svc := &projector.Service{
		Cache:  &redisx.StatusCache{R: rdb},
		Dedup:  &redisx.Dedup{R: rdb, Service: service},
		Logger: log,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.EventsGroup, orders.AllTopics, cfg.EventsWorkers, log)
	log.Info("events consumer started", "group", cfg.EventsGroup, "topics", orders.AllTopics, "workers", cfg.EventsWorkers)
	if err := cons.Start(ctx, svc.HandleMessage); err != nil {
		log.Error("consumer exit", "error", err)
		os.Exit(1)
	}
	log.Info("shutting down consumer...")
}
