package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
	"github.com/zambezimeats/checkout/internal/config"
	"github.com/zambezimeats/checkout/internal/delivery"
	"github.com/zambezimeats/checkout/internal/httpx"
	"github.com/zambezimeats/checkout/internal/invoice"
	kafkax "github.com/zambezimeats/checkout/internal/kafka"
	"github.com/zambezimeats/checkout/internal/orders"
	"github.com/zambezimeats/checkout/internal/payment"
	"github.com/zambezimeats/checkout/internal/postgres"
	"github.com/zambezimeats/checkout/internal/promo"
	"github.com/zambezimeats/checkout/internal/redisx"
	"github.com/zambezimeats/checkout/internal/stock"
	"github.com/zambezimeats/checkout/migrations"
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

	if err := migrations.Apply(ctx, db); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	createdProd := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024)
	createdProd.Start(ctx)
	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicStatusChanged, 1024)
	statusProd.Start(ctx)

	clk := clock.NewSystem()
	stockStore := &stock.PostgresStore{DB: db}
	manager := stock.NewManager(stockStore, &stock.RedisCache{Client: rdb}, clk, log,
		stock.WithTTL(cfg.ReserveTTL))

	zoneStore := &delivery.PostgresStore{DB: db}
	resolver := delivery.NewResolver(zoneStore)
	promos := promo.NewValidator(&promo.PostgresStore{DB: db}, clk)

	orderRepo := &orders.Repo{DB: db}
	orderSvc := orders.NewService(orders.ServiceParams{
		Repo:            orderRepo,
		Catalog:         stockStore,
		Reserver:        manager,
		Zones:           resolver,
		Promos:          promos,
		Cache:           &orders.RedisStatusCache{Client: rdb, Log: log},
		CreatedProducer: createdProd,
		StatusProducer:  statusProd,
		Clock:           clk,
		Log:             log,
		ServiceName:     cfg.ServiceName,
		Currency:        cfg.Currency,
	})

	dispatcher := payment.NewDispatcher(&payment.PostgresRepo{DB: db}, manager, orderSvc, clk, log,
		payment.WithIdemCache(&payment.RedisIdem{Client: rdb, Log: log}))
	dispatcher.Register(checkout.MethodCashOnDelivery, payment.CashOnDelivery{})
	dispatcher.Register(checkout.MethodCard, payment.Hosted{Provider: "card"})
	dispatcher.Register(checkout.MethodWallet, payment.Hosted{Provider: "wallet"})
	dispatcher.Register(checkout.MethodDeferred, payment.Hosted{Provider: "deferred"})

	invoices := invoice.NewGenerator(&invoice.PostgresRepo{DB: db}, orderRepo, clk)

	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{
		Orders:   orderSvc,
		Payments: dispatcher,
		Zones:    resolver,
		ZoneRepo: zoneStore,
		Promos:   promos,
		Invoices: invoices,
		Redis:    rdb,
		Log:      log,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
		case <-gctx.Done():
		}
		log.Info("shutting down...")

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("exit")
	}

	createdProd.Close()
	statusProd.Close()
	cancel()
	createdProd.WaitClosed()
	statusProd.WaitClosed()
}
