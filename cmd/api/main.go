package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/andrelucena/vitrine-backend/api/routes"
	authsvc "github.com/andrelucena/vitrine-backend/internal/auth"
	cartsvc "github.com/andrelucena/vitrine-backend/internal/cart"
	checkoutsvc "github.com/andrelucena/vitrine-backend/internal/checkout"
	shippingsvc "github.com/andrelucena/vitrine-backend/internal/shipping"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	"github.com/andrelucena/vitrine-backend/pkg/config"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/metrics"
	"github.com/andrelucena/vitrine-backend/pkg/payment"
	"github.com/andrelucena/vitrine-backend/pkg/redis"
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

	commerceClient, err := commerce.NewClient(cfg.Commerce)
	if err != nil {
		logg.Error(context.Background(), "failed to create commerce client", err)
		os.Exit(1)
	}

	paymentClient, err := payment.NewClient(context.Background(), cfg.Payment, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	shippingConfig, err := parseShippingConfig(cfg.Shipping)
	if err != nil {
		logg.Error(context.Background(), "invalid shipping config", err)
		os.Exit(1)
	}

	shippingService, err := shippingsvc.NewService(commerceClient, shippingConfig, checkoutMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	authService, err := authsvc.NewService(commerceClient, cfg.JWT, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(redisClient, cartService, shippingService, paymentClient, commerceClient, checkoutMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"payment_env": paymentClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			redisClient,
			commerceClient,
			registry,
			authService,
			cartService,
			shippingService,
			checkoutService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func parseShippingConfig(cfg config.ShippingConfig) (shippingsvc.Config, error) {
	threshold, err := decimal.NewFromString(cfg.FreeShippingThreshold)
	if err != nil {
		return shippingsvc.Config{}, err
	}
	fallback, err := decimal.NewFromString(cfg.FallbackCost)
	if err != nil {
		return shippingsvc.Config{}, err
	}
	surcharge, err := decimal.NewFromString(cfg.PerItemSurcharge)
	if err != nil {
		return shippingsvc.Config{}, err
	}
	return shippingsvc.Config{
		FreeShippingThreshold: threshold,
		FallbackCost:          fallback,
		PerItemSurcharge:      surcharge,
		QuoteTimeout:          cfg.QuoteTimeout,
	}, nil
}
