package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"budget/internal/auth"
	"budget/internal/backend"
	"budget/internal/cache"
	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/core"
	apphttp "budget/internal/http"
	blog "budget/internal/log"
	"budget/internal/services"
	"budget/web"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, logger, err := cli.Bootstrap(blog.ComponentHTTP)
	if err != nil {
		cli.Fatal(logger, "Startup failed", err)
	}
	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Server error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *blog.Logger) error {
	port := cfg.Port
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	// the store outlives the HTTP server
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", blog.FieldError, err)
		}
	}()

	dashboards := cache.NewLRUCache[core.Summary](cfg.DashboardCacheSize, cfg.DashboardCacheTTL)
	caches := cache.NewManager()
	caches.Register("dashboard", dashboards)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	authService := auth.NewService(res.Store, cfg.SessionTTL)
	transactions := services.NewTransactionService(res.Store, res.Publisher, dashboards)

	static, err := web.Static()
	if err != nil {
		return fmt.Errorf("mount embedded front end: %w", err)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + port,
		Auth:               authService,
		Transactions:       transactions,
		Ready:              res.Store,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookie:       cfg.SecureCookie,
		Static:             static,
		TrustedProxies:     cfg.TrustedProxies,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting budget server",
			"port", port,
			"backend", cfg.DataBackend,
			"amqp_enabled", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", port, err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := authService.SweepExpired(gctx)
				if err != nil {
					logger.Error("Session sweep failed", blog.FieldError, err)
					continue
				}
				if n > 0 {
					logger.Info("Expired sessions removed", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		m := srv.Metrics()
		logger.Info("HTTP server stopped",
			"total_requests", m.TotalRequests,
			"server_errors", m.ServerErrors)
		return nil
	})

	return g.Wait()
}
