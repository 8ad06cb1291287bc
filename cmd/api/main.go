package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/elberthomay/storefront/internal/auth"
	"github.com/elberthomay/storefront/internal/cart"
	"github.com/elberthomay/storefront/internal/inventory"
	"github.com/elberthomay/storefront/internal/messaging"
	"github.com/elberthomay/storefront/internal/orders"
	"github.com/elberthomay/storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "order.timeouts")
		defer func() { _ = producer.Close() }()
	}

	timeouts := orders.TimeoutConfig{
		Awaiting:   minutesFromEnv(logger, "ORDER_AWAITING_TIMEOUT_MINUTES", 1440),
		Confirmed:  minutesFromEnv(logger, "ORDER_CONFIRMED_TIMEOUT_MINUTES", 4320),
		Delivering: minutesFromEnv(logger, "ORDER_DELIVERING_TIMEOUT_MINUTES", 10080),
	}

	orderMetrics, err := telemetry.NewOrderMetrics()
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		os.Exit(1)
	}

	sessionRepo := auth.NewSessionRepository(db)
	itemRepo := inventory.NewItemRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)

	placement := orders.NewPlacementService(db, cartRepo, itemRepo, orderRepo, publisherOrNil(producer), timeouts, orderMetrics, logger)
	lifecycle := orders.NewLifecycleService(orderRepo, publisherOrNil(producer), timeouts, logger)
	query := orders.NewQueryService(orderRepo)

	authMiddleware := auth.NewMiddleware(sessionRepo, logger)
	itemHandler := inventory.NewHandler(itemRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	orderHandler := orders.NewHandler(placement, lifecycle, query, orderRepo, logger)

	route := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(authMiddleware.Require(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("GET /api/item/{id}", telemetry.WithHTTPRoute(itemHandler.HandleGet))
	mux.HandleFunc("POST /api/item", route(itemHandler.HandleCreate))
	mux.HandleFunc("PATCH /api/item/{id}", route(itemHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/item/{id}", route(itemHandler.HandleDelete))

	mux.HandleFunc("GET /api/cart", route(cartHandler.HandleList))
	mux.HandleFunc("POST /api/cart", route(cartHandler.HandleAdd))
	mux.HandleFunc("PATCH /api/cart/{itemId}", route(cartHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/cart/{itemId}", route(cartHandler.HandleDelete))

	mux.HandleFunc("POST /api/order/{$}", route(orderHandler.HandlePlace))
	mux.HandleFunc("GET /api/order", route(orderHandler.HandleListMine))
	mux.HandleFunc("GET /api/order/shop/{shopId}", route(orderHandler.HandleListShop))
	mux.HandleFunc("GET /api/order/{orderId}", route(orderHandler.HandleGet))
	mux.HandleFunc("POST /api/order/{orderId}/confirm", route(orderHandler.HandleConfirm))
	mux.HandleFunc("POST /api/order/{orderId}/cancel", route(orderHandler.HandleCancel))
	mux.HandleFunc("POST /api/order/{orderId}/deliver", route(orderHandler.HandleDeliver))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting api server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// publisherOrNil avoids handing services a non-nil interface holding a nil
// *messaging.Producer.
func publisherOrNil(p *messaging.Producer) orders.TimeoutPublisher {
	if p == nil {
		return nil
	}
	return p
}

func minutesFromEnv(logger *slog.Logger, name string, def int) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Duration(def) * time.Minute
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 1 {
		logger.Error("invalid timeout minutes", "name", name, "value", raw)
		os.Exit(1)
	}
	return time.Duration(minutes) * time.Minute
}
