package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dompet/internal/ports"
	"dompet/internal/sheets"
	"dompet/internal/storage"
)

// SyncStore is the part of the SQLite repository the processor needs.
type SyncStore interface {
	GetForSync(ctx context.Context, id string) (storage.SyncRecord, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id string, version int64) (bool, error)
	MarkSyncError(ctx context.Context, id string) error
	RetrySyncErrors(ctx context.Context) (int64, error)
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often pending rows are swept (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of rows exported per sweep (default: 10)
	BatchSize int

	// RetryInterval is how often rows in the error state are queued again
	// (default: 1h)
	RetryInterval time.Duration

	// Observe, when set, is told the outcome of every export attempt.
	Observe func(outcome string)
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:  time.Minute,
		BatchSize:     10,
		RetryInterval: time.Hour,
	}
}

// ErrExport marks failures of the exporter itself, as opposed to failures
// reading the row. The row has already been marked as errored.
var ErrExport = errors.New("export failed")

// ExportResult says what happened to a single export attempt.
type ExportResult int

const (
	Exported ExportResult = iota
	// Skipped means the row is gone or a newer version exists.
	Skipped
	// Superseded means the export succeeded but the row changed meanwhile;
	// it stays pending.
	Superseded
)

func (r ExportResult) String() string {
	switch r {
	case Exported:
		return "exported"
	case Superseded:
		return "superseded"
	default:
		return "skipped"
	}
}

// SyncProcessor exports changed transactions. It serves both the AMQP
// consumer (one message at a time) and a polling sweep that catches rows
// whose message was lost.
type SyncProcessor struct {
	store    SyncStore
	exporter sheets.Exporter
	config   SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(store SyncStore, exporter sheets.Exporter, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	return &SyncProcessor{
		store:    store,
		exporter: exporter,
		config:   config,
	}
}

// Export reads the row and writes it out. version is the version the caller
// was told about; zero means "whatever is current". Export failures mark the
// row as errored and are returned.
func (p *SyncProcessor) Export(ctx context.Context, id string, version int64) (ExportResult, error) {
	res, err := p.export(ctx, id, version)
	if p.config.Observe != nil {
		outcome := res.String()
		if err != nil {
			outcome = "error"
		}
		p.config.Observe(outcome)
	}
	return res, err
}

func (p *SyncProcessor) export(ctx context.Context, id string, version int64) (ExportResult, error) {
	rec, err := p.store.GetForSync(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction to export no longer exists", "id", id)
		return Skipped, nil
	}
	if err != nil {
		return Skipped, fmt.Errorf("read transaction %s: %w", id, err)
	}
	if version > 0 && rec.Version > version {
		slog.DebugContext(ctx, "Skipping stale sync request",
			"id", id, "requested_version", version, "current_version", rec.Version)
		return Skipped, nil
	}

	op := sheets.OpUpsert
	if rec.Deleted {
		op = sheets.OpDelete
	}
	row := sheets.Row{Transaction: rec.Transaction, Version: rec.Version, Op: op}
	if err := p.exporter.Export(ctx, row); err != nil {
		if markErr := p.store.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return Skipped, fmt.Errorf("export transaction %s: %w: %w", id, ErrExport, err)
	}

	ok, err := p.store.MarkSynced(ctx, id, rec.Version)
	if err != nil {
		// The export itself worked; the sweep will export it again at worst.
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
		return Exported, nil
	}
	if !ok {
		return Superseded, nil
	}
	slog.InfoContext(ctx, "Exported transaction", "id", id, "version", rec.Version, "op", string(op))
	return Exported, nil
}

// ProcessBatch exports up to limit pending rows and returns how many were
// exported.
func (p *SyncProcessor) ProcessBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = p.config.BatchSize
	}
	pending, err := p.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(pending))

	exported := 0
	for _, item := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		res, err := p.Export(ctx, item.ID, item.Version)
		if err != nil {
			slog.WarnContext(ctx, "Sync processing failed", "id", item.ID, "error", err)
			continue
		}
		if res == Exported {
			exported++
		}
	}
	return exported, nil
}

// Start begins the sweep loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it, or for ctx.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	retryTicker := time.NewTicker(p.config.RetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if _, err := p.ProcessBatch(ctx, 0); err != nil {
				slog.ErrorContext(ctx, "Sync sweep failed", "error", err)
			}
		case <-retryTicker.C:
			if _, err := p.store.RetrySyncErrors(ctx); err != nil {
				slog.ErrorContext(ctx, "Failed to requeue errored transactions", "error", err)
			}
		}
	}
}
