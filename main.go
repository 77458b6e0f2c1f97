package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/application/materialize"
	apppurchase "github.com/Zhima-Mochi/gameshop/internal/application/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/application/storefront"
	"github.com/Zhima-Mochi/gameshop/internal/config"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/asset"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/gameshop/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/gameshop/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gameshop:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		LogFile: cfg.LogFile,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := oteltrace.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.New(reg, "", "").RegisterSpecs(observability.CounterSpecs, observability.HistogramSpecs)

	tel := infraobs.New(infraobs.Options{
		Tracer:     oteltrace.New(cfg.ServiceName),
		Logger:     zaplogger.Wrap(baseLogger),
		Counters:   counters,
		Histograms: histograms,
	})

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	sessions := memory.NewSessionRepository(cfg.StartingGold, cfg.InventoryCapacity)
	transactions := memory.NewTransactionRepository()
	gateway := payment.NewSimulator(tel,
		payment.WithDelay(cfg.PaymentDelay),
		payment.WithDeclineRate(cfg.PaymentDeclineRate),
	)

	// In-memory event bus carrying purchase outcomes to the presentation side
	bus := outbox.NewBus(tel)
	bus.Start(ctx)

	coordinator := apppurchase.NewCoordinator(cat, sessions, transactions, gateway, bus, id.NewUUIDGenerator(), tel,
		apppurchase.WithAuthorizeTimeout(cfg.AuthorizeTimeout),
	)

	materializer := asset.NewLogMaterializer(tel.Logger())
	materializeWorker := materialize.NewWorker(
		workerpresentation.NewSubscriber(bus, tel, "materialize_worker"),
		materialize.NewMaterializeUseCase(materializer, tel),
		tel,
	)
	materializeWorker.Start()

	handler := httppresentation.NewHandler(
		coordinator,
		storefront.NewQueries(cat, sessions, tel),
		materialize.NewRefreshInventoryUseCase(sessions, materializer, tel),
		httppresentation.NewIPRateLimiter(cfg.PurchaseRateLimit, cfg.PurchaseRateBurst),
		tel,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.Int("catalog_items", cat.Len()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("http_server_shutdown_error", zap.Error(err))
			errs = append(errs, err)
		} else {
			systemLogger.Info("http_server_stopped")
		}
		// in-flight purchases publish their outcome before the bus drains
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("purchase_coordinator_shutdown_error", zap.Error(err))
			errs = append(errs, err)
		}
		if err := bus.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			systemLogger.Warn("tracer_shutdown_error", zap.Error(err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
