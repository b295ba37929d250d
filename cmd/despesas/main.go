package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"despesas/internal/backend"
	"despesas/internal/cache"
	"despesas/internal/config"
	"despesas/internal/currency"
	apphttp "despesas/internal/http"
	"despesas/internal/ledger"
	applog "despesas/internal/log"
	"despesas/internal/middleware/ratelimit"
)

func main() {
	// Load .env for local development; missing files are ignored.
	if err := config.LoadDotenv(); err != nil {
		applog.Default(applog.ComponentApp).Warn("Failed to load .env", applog.FieldError, err)
	}

	cfg := config.Load()
	logger := applog.New(applog.Config{Level: applog.ParseLevel(cfg.LogLevel), Component: applog.ComponentApp})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	if res.Notifier != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(res.Notifier))
	}
	led, err := ledger.Open(ctx, res.Store, ledgerOpts...)
	if err != nil {
		return err
	}

	rateCache := cache.NewLRUCache[currency.RateTable](16, cfg.RatesCacheTTL)
	caches := cache.NewManager()
	caches.Register(rateCache)
	caches.StartCleanup(cfg.RatesCacheTTL)
	defer caches.Stop()

	client := currency.NewClient(cfg.RatesBaseURL,
		currency.WithHTTPClient(&http.Client{Timeout: cfg.RatesTimeout}),
		currency.WithCache(rateCache),
		currency.WithClientLogger(logger))
	tracker := currency.NewTracker(
		currency.NewConverter(client, cfg.RatesSourceCurrency, logger),
		currency.WithTimeout(cfg.RatesTimeout),
		currency.WithTrackerLogger(logger))
	defer tracker.Wait()

	srv := apphttp.NewServer(":"+cfg.Port, led, tracker,
		apphttp.WithLogger(logger),
		apphttp.WithTrustedProxies(cfg.TrustedProxies...),
		apphttp.WithRateLimit(ratelimit.Config{RequestsPerWindow: cfg.RateLimitPerMinute, Window: time.Minute}),
		apphttp.WithConversionWait(cfg.RatesTimeout+time.Second))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting despesas server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"records", len(led.List()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
