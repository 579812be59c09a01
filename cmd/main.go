package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"ripandrun-ingest/internal/config"
	"ripandrun-ingest/internal/filequeue"
	"ripandrun-ingest/internal/imapclient"
	"ripandrun-ingest/internal/locparse"
	"ripandrun-ingest/internal/logging"
	"ripandrun-ingest/internal/mailpoller"
	"ripandrun-ingest/internal/models"
	"ripandrun-ingest/internal/recognition"
	"ripandrun-ingest/internal/record"
	"ripandrun-ingest/internal/store"
	"ripandrun-ingest/internal/watermark"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Log.Fatalf("Error reading configuration file: %v", err)
	}

	if err := ensureDirs(cfg); err != nil {
		logging.Log.Fatalf("Error preparing directories: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wmStore, err := newWatermarkStore(ctx, cfg)
	if err != nil {
		logging.Log.Fatalf("Error opening watermark store: %v", err)
	}
	defer func() {
		_ = wmStore.Close()
	}()

	incidentStore, err := newIncidentStore(ctx, cfg)
	if err != nil {
		logging.Log.Fatalf("Error opening incident store: %v", err)
	}
	defer func() {
		_ = incidentStore.Close()
	}()

	poller := mailpoller.New(cfg, wmStore, func() imapclient.Client {
		return imapclient.NewStandardClient()
	})

	recognizer := recognition.NewHTTPClient(cfg.Recognition)
	builder := record.NewBuilder(locparse.New(nil), cfg.DefaultUnitID)
	queue := filequeue.New(cfg, recognizer, builder, incidentStore)

	logging.Log.Info("Starting rip-and-run ingestion pipeline")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	<-ctx.Done()
	logging.Log.Info("Shutdown signal received, waiting for loops to finish")
	wg.Wait()
	logging.Log.Info("Pipeline stopped")
}

func ensureDirs(cfg *models.Config) error {
	for _, dir := range []string{cfg.Paths.Drop, cfg.Paths.Quarantine} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func newWatermarkStore(ctx context.Context, cfg *models.Config) (watermark.Store, error) {
	if cfg.Watermark.Backend == "redis" {
		return watermark.NewRedisStore(ctx, cfg.Watermark.RedisURL, cfg.Watermark.RedisTTL)
	}
	return watermark.NewFileStore(cfg.Paths.State, cfg.Watermark.Retention)
}

func newIncidentStore(ctx context.Context, cfg *models.Config) (store.Store, error) {
	if cfg.Storage.Backend == "postgres" {
		return store.NewPostgresStore(ctx, cfg.Storage.DSN)
	}
	return store.NewSQLiteStore(cfg.Storage.DSN)
}
