package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/orderflow/orderflow-go/internal/catalogclient"
	"github.com/orderflow/orderflow-go/internal/config"
	"github.com/orderflow/orderflow-go/internal/httpx"
	kafkax "github.com/orderflow/orderflow-go/internal/kafka"
	"github.com/orderflow/orderflow-go/internal/logging"
	"github.com/orderflow/orderflow-go/internal/metrics"
	"github.com/orderflow/orderflow-go/internal/orders"
	"github.com/orderflow/orderflow-go/internal/outbox"
	"github.com/orderflow/orderflow-go/internal/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)
	if cfg.ServiceToken == "" {
		log.Fatal().Msg("SERVICE_TOKEN is not set; the reservation reaper cannot authenticate to the catalog")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer prod.Close()

	cat := catalogclient.New(cfg.CatalogBaseURL)
	svc := &orders.Service{
		Repo:     &orders.PGRepo{DB: db},
		Journal:  &orders.PGJournal{DB: db},
		Catalog:  cat,
		Metrics:  metrics.NewOrderMetrics(cfg.ServiceName),
		Log:      log,
		Producer: cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&orders.Handler{Svc: svc}).Register(router, cfg.JWTSecret)

	relay := &outbox.Relay{
		Pool:      db,
		Publisher: prod,
		Interval:  cfg.OutboxInterval,
		Log:       log,
	}
	reaper := &orders.Reaper{
		Journal:  &orders.PGJournal{DB: db},
		Catalog:  cat,
		Token:    cfg.ServiceToken,
		TTL:      cfg.ReservationTTL,
		Interval: cfg.ReservationTTL / 2,
		Log:      log,
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker exit")
	}
}
