package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	_ "time/tzdata"

	"dompet/internal/amqp"
	"dompet/internal/assistant"
	"dompet/internal/backend"
	"dompet/internal/cli"
	"dompet/internal/config"
	"dompet/internal/log"
	"dompet/internal/metrics"
	"dompet/internal/scheduler"
	"dompet/internal/services"
	"dompet/internal/sheets"
	gsheet "dompet/internal/sheets/google"
	"dompet/internal/storage"
	"dompet/internal/worker"
)

func main() {
	cfg := cli.MustConfig()
	logger := cli.SetupLogger(cfg, os.Stdout, log.ComponentWorker)

	logger.Info("Starting dompet-worker")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	m := metrics.New()

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	// Without AMQP the sweep alone exports pending rows.
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("AMQP disabled - relying on periodic sync only")
	}

	sched, err := newScheduler(cfg, sqliteRepo, m, logger)
	if err != nil {
		logger.Error("Failed to schedule insight job", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	if cfg.WorkerMetricsPort != "" {
		srv := newMetricsServer(":"+cfg.WorkerMetricsPort, m)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	processor := services.NewSyncProcessor(sqliteRepo, exporter, services.SyncProcessorConfig{
		PollInterval:  cfg.SyncInterval,
		BatchSize:     cfg.SyncBatchSize,
		RetryInterval: cfg.SyncRetryInterval,
		Observe:       m.SyncExport,
	})
	syncWorker := worker.NewSyncWorker(processor, cfg.SyncBatchSize)

	if err := syncWorker.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Exporter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return sheets.LogExporter{Logger: logger.WithComponent(log.ComponentSheets).Logger}, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Location:        cfg.Location(),
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx, time.Now().In(cfg.Location()).Year()); err != nil {
		logger.Warn("Failed to write sheet header", "error", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// newScheduler registers the daily insight job against the SQLite store the
// server writes to.
func newScheduler(cfg *config.Config, repo *storage.SQLiteRepository, m *metrics.Metrics, logger *log.Logger) (*scheduler.Scheduler, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	aiLogger := logger.WithComponent(log.ComponentAssistant).Logger
	svc := assistant.NewService(repo, repo, backendCfg.Generator,
		assistant.WithFallback(assistant.StaticGenerator{}),
		assistant.WithLocation(cfg.Location()),
		assistant.WithLogger(aiLogger),
	)

	sched := scheduler.New(cfg.Location(), logger.WithComponent(log.ComponentScheduler).Logger)
	err = sched.Add("daily_insight", cfg.InsightCron, func(ctx context.Context) error {
		_, err := svc.CreateDaily(ctx)
		m.AIResponseCreated("cron", err)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
