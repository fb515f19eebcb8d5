package main

import (
	"context"
	"errors"
	"os"
	"time"

	"estoque/internal/amqp"
	"estoque/internal/backend"
	"estoque/internal/cli"
	applog "estoque/internal/log"
	"estoque/internal/sheets"
	gsheet "estoque/internal/sheets/google"
	memsheet "estoque/internal/sheets/memory"
	"estoque/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.SlogLevel(), applog.ComponentWorker)

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting estoque-worker")

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	// The worker only reads records; it never publishes change events.
	backendConfig.AMQPURL = ""

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	res, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	}()

	var mirror sheets.MirrorWriter
	if cfg.MirrorEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetPrefix:     cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memsheet.New()
		logger.Warn("Google Sheets disabled, mirroring to memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(res.Store, mirror, cfg.MirrorConcurrency)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on changes made while the worker was down.
	if err := mirrorWorker.StartupSync(ctx, res.Store); err != nil {
		logger.Error("Startup sync failed", applog.FieldError, err, applog.FieldOperation, applog.OpStartup)
	}

	if err := amqpClient.ConsumeRecordChanged(ctx, mirrorWorker.HandleRecordChanged); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
