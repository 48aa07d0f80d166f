package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-ledger/internal/domain/analytics"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/segment"
	"github.com/xenking/sales-ledger/internal/handler"
	"github.com/xenking/sales-ledger/internal/scheduler"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
	"github.com/xenking/sales-ledger/pkg/health"
	"github.com/xenking/sales-ledger/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the segmentation scheduler and the
// HTTP server, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Stores.
	productStore := postgres.NewProductStore(pool)
	orderStore := postgres.NewOrderStore(pool)
	customerStore := postgres.NewCustomerStore(pool)
	rollupStore := postgres.NewRollupStore(pool)

	// Domain services.
	orderService := order.NewService(orderStore, customerStore)
	segmentService := segment.NewService(customerStore, customerStore, lg.Named("segment"))
	rollupService := analytics.NewService(rollupStore)

	// Periodic segmentation pass. The service itself refuses overlapping
	// runs, so a manual trigger racing the timer is just a skipped tick.
	segmentRunner := scheduler.New("segment-recompute", cfg.Segments.Interval,
		func(ctx context.Context) error {
			_, err := segmentService.Recompute(ctx)
			if errors.Is(err, segment.ErrRecomputeActive) {
				zctx.From(ctx).Info("segment recompute already running, tick skipped")
				return nil
			}
			return err
		}, lg)
	segmentRunner.Start(ctx)

	// HTTP surface: health endpoints + API routes on one mux.
	h := handler.New(orderService, productStore, segmentService, rollupService)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("sales-ledger", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		segmentRunner.Wait()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
