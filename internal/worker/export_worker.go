package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/ledger"
	"budget/internal/storage"
)

// SyncStore is the slice of the SQLite repository the export worker needs.
type SyncStore interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]storage.PendingSyncTransaction, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
	RetrySyncErrors(ctx context.Context) (int64, error)
}

// SessionSweeper drops expired login sessions.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ExportWorker mirrors transactions from SQLite to an external ledger.
type ExportWorker struct {
	store     SyncStore
	exporter  ledger.TransactionExporter
	sessions  SessionSweeper
	batchSize int
}

func NewExportWorker(store SyncStore, exporter ledger.TransactionExporter, sessions SessionSweeper, batchSize int) *ExportWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		sessions:  sessions,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single transaction event from AMQP. Failed exports
// of created rows are discarded because the pending pass picks them up again;
// other failures requeue the message.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event", ev.Event,
		"transaction_id", ev.TransactionID,
		"owner_id", ev.OwnerID)

	switch ev.Event {
	case amqp.EventCreated:
		t, err := w.store.GetTransaction(ctx, ev.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			// deleted before we got to it; the delete event cleans up
			slog.InfoContext(ctx, "Transaction gone before export, skipping", "transaction_id", ev.TransactionID)
			return nil
		}
		if err != nil {
			return amqp.Discard(fmt.Errorf("get transaction: %w", err))
		}
		if err := w.export(ctx, t); err != nil {
			return amqp.Discard(err)
		}
		return nil

	case amqp.EventDeleted:
		if err := w.exporter.Remove(ctx, ev.TransactionID); err != nil {
			return fmt.Errorf("remove exported transaction: %w", err)
		}
		slog.InfoContext(ctx, "Removed exported transaction", "transaction_id", ev.TransactionID)
		return nil
	}
	return fmt.Errorf("unknown event %q", ev.Event)
}

// ProcessPending exports transactions whose events were lost. Failed exports
// from earlier runs are retried.
func (w *ExportWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger recovery pass when the worker boots.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	if n, err := w.store.RetrySyncErrors(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset sync errors", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Retrying failed exports", "count", n)
	}

	pending, err := w.store.GetPendingSyncTransactions(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		t, err := w.store.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get transaction", "transaction_id", p.ID, "error", err)
			failed++
			continue
		}
		if err := w.export(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "transaction_id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// SweepSessions removes expired sessions.
func (w *ExportWorker) SweepSessions(ctx context.Context) (int64, error) {
	if w.sessions == nil {
		return 0, nil
	}
	n, err := w.sessions.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired sessions removed", "count", n)
	}
	return n, nil
}

// Run performs the startup check and then repeats the pending pass and the
// session sweep every interval until ctx is cancelled.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sync check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Pending export pass failed", "error", err)
			}
			if _, err := w.SweepSessions(ctx); err != nil {
				slog.ErrorContext(ctx, "Session sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.Export(ctx, t)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", t.ID, "error", markErr)
		}
		return fmt.Errorf("export transaction: %w", err)
	}

	// Don't return error here - the export actually worked
	if err := w.store.MarkSynced(ctx, t.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "transaction_id", t.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"transaction_id", t.ID,
		"ref", ref,
		"amount_cents", t.Amount.Cents)
	return nil
}
