package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
	"github.com/zambezimeats/checkout/internal/config"
	kafkax "github.com/zambezimeats/checkout/internal/kafka"
	"github.com/zambezimeats/checkout/internal/postgres"
	"github.com/zambezimeats/checkout/internal/reconcile"
	"github.com/zambezimeats/checkout/internal/redisx"
	"github.com/zambezimeats/checkout/internal/stock"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	releasedProd := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicStockReleased, 1024)
	releasedProd.Start(ctx)

	clk := clock.NewSystem()
	store := &stock.PostgresStore{DB: db}
	manager := stock.NewManager(store, &stock.RedisCache{Client: rdb}, clk, log,
		stock.WithTTL(cfg.ReserveTTL))

	worker := reconcile.NewWorker(store, manager, releasedProd, clk, log,
		cfg.SweepEvery, cfg.ServiceName+"-reconciler")

	notifier := &reconcile.Notifier{Redis: rdb, Log: log, Service: cfg.ServiceName + "-notifier"}
	group := getenv("NOTIFIER_GROUP", "checkout-notifier")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, checkout.TopicStatusChanged, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("interval", cfg.SweepEvery).Info("reservation sweep started")
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.WithFields(logrus.Fields{"group": group, "workers": workers}).Info("notifier consumer started")
		return cons.Start(gctx, notifier.HandleStatusChanged)
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("exit")
	}

	releasedProd.Close()
	releasedProd.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
