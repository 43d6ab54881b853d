package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/scraplink/scraplink-backend/api/routes"
	"github.com/scraplink/scraplink-backend/internal/cart"
	"github.com/scraplink/scraplink-backend/internal/inventory"
	"github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/internal/payments"
	"github.com/scraplink/scraplink-backend/internal/refunds"
	"github.com/scraplink/scraplink-backend/internal/users"
	gatewaywebhook "github.com/scraplink/scraplink-backend/internal/webhooks/gateway"
	"github.com/scraplink/scraplink-backend/pkg/config"
	"github.com/scraplink/scraplink-backend/pkg/db"
	"github.com/scraplink/scraplink-backend/pkg/gateway"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/metrics"
	"github.com/scraplink/scraplink-backend/pkg/migrate"
	"github.com/scraplink/scraplink-backend/pkg/outbox"
	"github.com/scraplink/scraplink-backend/pkg/pricing"
	"github.com/scraplink/scraplink-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngineMetrics(registry)

	gatewayClient, err := gateway.NewHTTPClient(cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	pricingPolicy, err := pricing.NewPolicy(cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to parse pricing config", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	orderRepo := orders.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	refundRepo := refunds.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)
	inventoryRepo := inventory.NewRepository(gormDB)

	snapshotReader, err := cart.NewSnapshotReader(cartRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart snapshot reader", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(dbClient, orderRepo, cartRepo, snapshotReader, inventoryRepo, pricingPolicy, outboxService, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(dbClient, paymentRepo, orderRepo, userRepo, gatewayClient, outboxService, cfg.Gateway, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	refundsService, err := refunds.NewService(dbClient, refundRepo, paymentRepo, orderRepo, gatewayClient, outboxService, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "gateway-callback")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		TransactionRunner: dbClient,
		PaymentRepo:       paymentRepo,
		OrderRepo:         orderRepo,
		Events:            outboxService,
		Guard:             webhookGuard,
		Metrics:           engineMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DBPinger:        dbClient,
			RedisClient:     redisClient,
			OrdersService:   ordersService,
			PaymentsService: paymentsService,
			RefundsService:  refundsService,
			WebhookService:  webhookService,
			MetricsGatherer: registry,
		}),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
