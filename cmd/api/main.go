package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bookmart/orders/internal/books"
	"github.com/bookmart/orders/internal/cart"
	"github.com/bookmart/orders/internal/config"
	"github.com/bookmart/orders/internal/httpx"
	kafkax "github.com/bookmart/orders/internal/kafka"
	"github.com/bookmart/orders/internal/orders"
	"github.com/bookmart/orders/internal/postgres"
	"github.com/bookmart/orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start()

	// Order core
	svc := orders.MustNewService(
		orders.WithUnitOfWork(func() orders.UnitOfWork { return postgres.NewUnitOfWork(db) }),
		orders.WithProducer(prod),
		orders.WithStatusCache(cache),
		orders.WithServiceName(cfg.ServiceName),
		orders.WithFulfillmentDelays(cfg.ShipAfter, cfg.DeliverAfter),
	)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service: svc,
		Books:   books.NewRepo(db),
		Carts:   cart.NewRepo(db),
		Cache:   cache,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		slog.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
