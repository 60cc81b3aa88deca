package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bookmart/orders/internal/config"
	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/notifier"
	"github.com/bookmart/orders/internal/orders"
	"github.com/bookmart/orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Cache:       redisx.NewCache(rdb),
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "order-notifier")
	workers := getint("NOTIFIER_WORKERS", 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.StatusTopics, workers)

	go func() {
		slog.Info("notifier consumer started", "group", group, "workers", workers)
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			slog.Error("consumer exited", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	slog.Info("shutting down notifier")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
