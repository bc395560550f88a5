// File: cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log" // Standard log for critical startup/shutdown messages before/after zap is active
	"os"
	"os/signal"
	"syscall"

	"live_learning_backend/internal/config"
	"live_learning_backend/internal/platform/database"
	platformElasticsearch "live_learning_backend/internal/platform/elasticsearch"
	"live_learning_backend/internal/platform/logger"

	"go.uber.org/zap"
)

func main() {
	syncContentCmd := flag.NewFlagSet("sync-content", flag.ExitOnError)
	batchSize := syncContentCmd.Int("batch-size", 100, "Batch size for syncing content")
	esRefresh := syncContentCmd.String("es-refresh", "false", "Elasticsearch refresh policy (true, false, wait_for)")

	if len(os.Args) > 1 && os.Args[1] == "sync-content" {
		if err := syncContentCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("FATAL: Invalid sync-content flags: %v", err)
		}
		if err := runContentSync(*batchSize, *esRefresh); err != nil {
			log.Fatalf("FATAL: Content synchronization failed: %v", err)
		}
		return
	}

	startServer()
}

func startServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	server, cleanup, err := initializeServer(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize server: %v", err)
	}
	defer cleanup()

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("FATAL: Server failed to start or crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received signal '%s'. Shutting down server...", sig)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown due to error: %v", err)
	} else {
		log.Println("INFO: Server shutdown complete.")
	}
	log.Println("INFO: Application exiting.")
}

// runContentSync pushes every stored content document into the search index.
func runContentSync(batchSize int, esRefresh string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	appLogger, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	if cfg.ElasticsearchURL == "" {
		return fmt.Errorf("ELASTICSEARCH_URL must be set for sync-content")
	}

	db, closeDB, err := database.NewGORM(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	firebaseApp, closeFirebase, err := provideFirebaseApp(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeFirebase()

	docs, err := provideDocstore(cfg, db, firebaseApp)
	if err != nil {
		return err
	}
	index, err := provideContentIndex(cfg, appLogger)
	if err != nil {
		return err
	}
	index.WithRefresh(esRefresh)
	service := provideContentService(docs, index, appLogger)

	appLogger.Info("Starting content synchronization to Elasticsearch...",
		zap.Int("batchSize", batchSize),
		zap.String("esRefreshPolicy", esRefresh),
	)
	batchNumber := 0
	sent, failed, err := service.Reindex(context.Background(), batchSize, func(ctx context.Context, batch []platformElasticsearch.ContentDoc) (int, error) {
		batchNumber++
		batchFailed, err := index.BulkIndex(ctx, batch)
		appLogger.Info("Batch processed.",
			zap.Int("batchNumber", batchNumber),
			zap.Int("documentCount", len(batch)),
			zap.Int("failedInBatch", batchFailed),
		)
		return batchFailed, err
	})
	if err != nil {
		return err
	}

	appLogger.Info("Content synchronization process finished.",
		zap.Int("totalSent", sent),
		zap.Int("totalFailed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d content documents failed to sync", failed)
	}
	return nil
}
