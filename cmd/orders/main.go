package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/clients"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/events"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/server"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/service"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/tracing"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/worker"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	logger := logging.New("storefront-orders")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", logging.Fields{"error": err.Error()})
	}

	tp, err := tracing.Init(cfg.Tracing, handlers.Version)
	if err != nil {
		logger.Fatal("Failed to initialise tracing", logging.Fields{"error": err.Error()})
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		logger.Fatal("Failed to run migrations", logging.Fields{"error": err.Error()})
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store := repository.NewPostgresStore(db, logger.With("repository"))

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	orderCache := repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL, logger.With("cache"))

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to event broker", logging.Fields{
			"broker": cfg.Events.Broker,
			"error":  err.Error(),
		})
	}
	if publisher == nil {
		cfg.Features.EnableOrderEvents = false
	} else {
		defer publisher.Close()
	}

	paymentClient := clients.NewHTTPPaymentClient(cfg.Payment, logger.With("payment-client"))
	verifier := clients.NewWebhookVerifier(cfg.Webhook.SigningSecret, cfg.Webhook.Tolerance)

	orderService := service.NewOrderService(store, orderCache, cfg, m, logger.With("order-service"))
	paymentService := service.NewPaymentService(store, orderCache, paymentClient, cfg, m, logger.With("payment-service"))
	webhookService := service.NewWebhookService(store, orderCache, verifier, cfg, m, logger.With("webhook-service"))

	h := handlers.NewHandlers(
		orderService,
		paymentService,
		webhookService,
		cfg,
		logger.With("handlers"),
		handlers.ReadinessCheck{Name: "database", Check: store.Ping},
		handlers.ReadinessCheck{Name: "redis", Check: orderCache.Ping},
	)
	srv := server.New(cfg, h, m, prometheus.DefaultGatherer, logger.With("http"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if publisher != nil {
		relay := worker.NewOutboxRelay(store.Outbox(), publisher, cfg.Outbox, m, logger.With("outbox-relay"))
		g.Go(func() error { return relay.Run(gctx) })
	}
	sweeper := worker.NewRetentionSweeper(store.WebhookEvents(), cfg.Webhook, m, logger.With("retention"))
	g.Go(func() error { return sweeper.Run(gctx) })

	logger.Info("Service started", logging.Fields{
		"port":           cfg.Server.Port,
		"events_broker":  cfg.Events.Broker,
		"order_events":   cfg.Features.EnableOrderEvents,
		"order_caching":  cfg.Features.EnableOrderCaching,
		"tracing":        cfg.Tracing.Enabled,
		"webhook_window": cfg.Webhook.Tolerance.String(),
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", logging.Fields{"error": err.Error()})
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(flushCtx); err != nil {
		logger.Warn("Failed to flush traces", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})
	return db, nil
}

// newPublisher returns nil when outbound events are disabled.
func newPublisher(cfg *config.Config, logger *logging.Logger) (events.Publisher, error) {
	switch cfg.Events.Broker {
	case config.BrokerKafka:
		return events.NewKafkaPublisher(cfg.Kafka, logger.With("kafka")), nil
	case config.BrokerRabbitMQ:
		p, err := events.NewAMQPPublisher(cfg.RabbitMQ, logger.With("amqp"))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
