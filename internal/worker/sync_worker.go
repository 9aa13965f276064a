package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dompet/internal/amqp"
	"dompet/internal/services"
)

// Consumer delivers sync messages to a handler until ctx is done.
type Consumer interface {
	ConsumeTransactionSync(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker exports transactions announced over AMQP and recovers the
// ones whose message never arrived.
type SyncWorker struct {
	processor *services.SyncProcessor
	batchSize int
}

func NewSyncWorker(processor *services.SyncProcessor, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = services.DefaultSyncProcessorConfig().BatchSize
	}
	return &SyncWorker{
		processor: processor,
		batchSize: batchSize,
	}
}

// HandleSyncMessage exports the row a message points at. Exporter failures
// are acknowledged: the row is already marked as errored and is retried by
// the processor. Anything else is returned so the broker redelivers.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version,
		"op", string(msg.Op))

	res, err := w.processor.Export(ctx, msg.ID, msg.Version)
	if errors.Is(err, services.ErrExport) {
		slog.ErrorContext(ctx, "Export failed, left for retry", "id", msg.ID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle sync message: %w", err)
	}
	if res == services.Superseded {
		slog.InfoContext(ctx, "Transaction changed during export", "id", msg.ID)
	}
	return nil
}

// ProcessPending exports one batch of rows still waiting. It is the backup
// path for lost messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	n, err := w.processor.ProcessBatch(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("process pending transactions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Processed pending transactions", "count", n)
	}
	return nil
}

// StartupSyncCheck drains a larger batch at startup to recover from worker
// downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.processor.ProcessBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", n)
	return nil
}

// Run performs the startup check, starts the sweep and consumes messages
// until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		slog.WarnContext(ctx, "Startup sync check failed", "error", err)
	}

	if err := w.processor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := w.processor.Stop(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "Failed to stop sync processor", "error", err)
		}
	}()

	if consumer == nil {
		<-ctx.Done()
		return nil
	}
	err := consumer.ConsumeTransactionSync(ctx, w.HandleSyncMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
