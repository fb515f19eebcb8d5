package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"estoque/internal/backend"
	"estoque/internal/cache"
	"estoque/internal/cli"
	"estoque/internal/core"
	"estoque/internal/dashboard"
	apphttp "estoque/internal/http"
	applog "estoque/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.SlogLevel(), applog.ComponentApp)

	formatter, err := core.NewFormatter(cfg.CurrencyLocale, cfg.CurrencySymbol)
	if err != nil {
		logger.Error("Invalid currency settings", applog.FieldError, err)
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	caches := cache.NewManager(logger)
	caches.Register(res.Identity.OwnerCache())
	caches.StartCleanup(10 * time.Minute)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		Records:       res.Records,
		Identity:      res.Identity,
		Dashboards:    dashboard.NewLive(res.Records, res.Identity, res.Records.BuildDashboard),
		Formatter:     formatter,
		Logger:        logger,
		AuthRateLimit: cfg.AuthRateLimit,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting estoque server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.ReportTimezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
