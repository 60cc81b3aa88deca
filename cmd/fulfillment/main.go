package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bookmart/orders/internal/config"
	"github.com/bookmart/orders/internal/fulfillment"
	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/postgres"
	"github.com/bookmart/orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start()

	worker := fulfillment.NewWorker(
		fulfillment.NewPGStore(db),
		fulfillment.WithProducer(prod),
		fulfillment.WithStatusCache(redisx.NewCache(rdb)),
		fulfillment.WithServiceName(cfg.ServiceName+"-fulfillment"),
		fulfillment.WithPollInterval(cfg.FulfillmentPollInterval),
		fulfillment.WithBatchSize(cfg.FulfillmentBatchSize),
	)

	go worker.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down worker")
	cancel()
	prod.Close()
	prod.WaitClosed()
}
