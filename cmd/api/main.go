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

	"github.com/ariefcatur/go-shop-backend.git/internal/cart"
	"github.com/ariefcatur/go-shop-backend.git/internal/catalog"
	"github.com/ariefcatur/go-shop-backend.git/internal/config"
	"github.com/ariefcatur/go-shop-backend.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-backend.git/internal/kafka"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
	"github.com/ariefcatur/go-shop-backend.git/internal/payment"
	"github.com/ariefcatur/go-shop-backend.git/internal/postgres"
	"github.com/ariefcatur/go-shop-backend.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			slog.Error("migrate", "err", err)
			os.Exit(1)
		}
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	placed.Start(ctx)
	paid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	paid.Start(ctx)
	status := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStatusChanged, 1024)
	status.Start(ctx)

	var provider orders.PaymentProvider
	switch cfg.PaymentProvider {
	case "stripe":
		provider = payment.NewStripe(cfg.StripeAPIKey)
	default:
		provider = payment.Mock{}
	}

	svc := &orders.Service{
		Store:          &orders.Repo{DB: db},
		Payments:       provider,
		PlacedEvents:   placed,
		PaidEvents:     paid,
		StatusEvents:   status,
		ServiceName:    cfg.ServiceName,
		PaymentTimeout: cfg.PaymentTimeout,
	}
	catalogRepo := &catalog.Repo{DB: db}

	router := httpx.NewRouter(httpx.Deps{
		Orders:    svc,
		Carts:     &cart.Repo{DB: db},
		Catalog:   catalogRepo,
		AdminCat:  catalogRepo,
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		slog.Info("HTTP listening", "addr", cfg.HTTPAddr, "payment_provider", cfg.PaymentProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen", "err", err)
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

	for _, p := range []*kafkax.Producer{placed, paid, status} {
		p.Close()
	}
	cancel()
	for _, p := range []*kafkax.Producer{placed, paid, status} {
		p.WaitClosed()
	}
}
