package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-shop-backend.git/internal/config"
	kafkax "github.com/ariefcatur/go-shop-backend.git/internal/kafka"
	"github.com/ariefcatur/go-shop-backend.git/internal/notifier"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
	"github.com/ariefcatur/go-shop-backend.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notifier",
		SMTPAddr:    cfg.SMTPAddr,
		From:        cfg.SMTPFrom,
		To:          cfg.NotifyEmail,
		User:        cfg.SMTPUser,
		Pass:        cfg.SMTPPass,
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPaid, workers)

	go func() {
		slog.Info("notifier consumer started", "group", group, "topic", orders.TopicOrderPaid, "workers", workers)
		if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
			slog.Error("consumer exit", "err", err)
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
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
