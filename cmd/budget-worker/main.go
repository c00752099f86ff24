package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"budget/internal/amqp"
	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/ledger"
	"budget/internal/ledger/sheets"
	blog "budget/internal/log"
	"budget/internal/storage"
	"budget/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(blog.ComponentWorker)
	if err != nil {
		cli.Fatal(logger, "Startup failed", err)
	}
	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Worker error", err)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *blog.Logger) error {
	if cfg.DataBackend != "sqlite" {
		return fmt.Errorf("budget-worker reads transactions from SQLite; DATA_BACKEND is %q", cfg.DataBackend)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	defer repo.Close()

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	w := worker.NewExportWorker(repo, exporter, repo, cfg.SyncBatchSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Run(gctx, cfg.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// pending rows are still picked up by the periodic pass
			logger.Error("Failed to initialize AMQP client, running on periodic sync only", blog.FieldError, err)
		} else {
			defer client.Close()
			logger.Info("Consuming transaction events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			g.Go(func() error {
				if err := client.Consume(gctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("consume events: %w", err)
				}
				return nil
			})
		}
	} else {
		logger.Info("AMQP disabled - relying on periodic sync", "interval", cfg.SyncInterval)
	}

	logger.Info("Worker started",
		"db_path", cfg.SQLiteDBPath,
		"batch_size", cfg.SyncBatchSize,
		"sheets_enabled", cfg.SheetsEnabled())

	return g.Wait()
}

// newExporter returns the Google Sheets client, or an in-memory recorder
// when no spreadsheet is configured so rows are still marked as synced.
func newExporter(ctx context.Context, cfg *config.Config, logger *blog.Logger) (ledger.TransactionExporter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return sheets.NewRecorder(), nil
	}

	creds, err := cfg.GoogleCredentials()
	if err != nil {
		return nil, err
	}
	client, err := sheets.New(ctx, sheets.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
