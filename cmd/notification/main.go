package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/orderflow/orderflow-go/internal/config"
	"github.com/orderflow/orderflow-go/internal/events"
	kafkax "github.com/orderflow/orderflow-go/internal/kafka"
	"github.com/orderflow/orderflow-go/internal/logging"
	"github.com/orderflow/orderflow-go/internal/notification"
	"github.com/orderflow/orderflow-go/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notification.Service{
		Dedup:  &notification.RedisDeduper{Redis: rdb, Service: cfg.ServiceName},
		Mailer: &notification.LogMailer{Log: log},
		Log:    log,
	}

	group := getenv("NOTIFICATION_GROUP", "notification-svc")
	workers := mustAtoi(os.Getenv("NOTIFICATION_WORKERS"), 4)

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{events.TopicOrderCreated, events.TopicOrderCancelled} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers, log)
		log.Info().Str("topic", topic).Str("group", group).Int("workers", workers).Msg("consumer started")
		g.Go(func() error { return cons.Start(gctx, svc.HandleOrderEvent) })
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down consumers...")
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}
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
