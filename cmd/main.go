package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"issuemigrate/internal/app"
	"issuemigrate/internal/config"
	"issuemigrate/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "issuemigrate",
	Short: "Migrate entities from an issue tracker to a project-management system",
	Long:  `A concurrent, resumable entity migration tool with durable checkpoints, failure classification into recovery plans, and progress tracking.`,
	RunE:  runMigration,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Source flags
	rootCmd.Flags().String("src-endpoint", "", "Source tracker API endpoint")
	rootCmd.Flags().String("src-token", "", "Source tracker API token")

	// Destination flags
	rootCmd.Flags().String("dst-endpoint", "", "Target system API endpoint")
	rootCmd.Flags().String("dst-token", "", "Target system API token")

	// Archive flags
	rootCmd.Flags().String("archive-endpoint", "", "S3-compatible endpoint for batch archives (optional)")
	rootCmd.Flags().String("archive-access-key", "", "Archive access key")
	rootCmd.Flags().String("archive-secret-key", "", "Archive secret key")
	rootCmd.Flags().String("archive-bucket", "", "Archive bucket name")
	rootCmd.Flags().Bool("archive-secure", true, "Use HTTPS for archive endpoint")

	// Migration flags
	rootCmd.Flags().String("entity-types", "users,projects,issues", "Comma-separated entity types to migrate, in order")
	rootCmd.Flags().Int("batch-size", 100, "Entities per checkpointed batch")
	rootCmd.Flags().Int("concurrency", 4, "Number of concurrent workers")
	rootCmd.Flags().Int("retries", 5, "Maximum retry attempts per entity")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().String("state-dir", "./state/checkpoints", "Checkpoint state directory")
	rootCmd.Flags().String("catalog", "./state/catalog.db", "Migration run catalog database file")
	rootCmd.Flags().Bool("resume", false, "Resume the most recent unfinished migration")
	rootCmd.Flags().Bool("dry-run", false, "List entities without migrating")
	rootCmd.Flags().String("metrics-addr", ":8080", "Metrics HTTP listen address")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
}

func runMigration(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	migrator, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	// Run migration
	err = migrator.Run(ctx)

	// Close migrator resources after migration completes or is cancelled
	if closeErr := migrator.Close(); closeErr != nil {
		log.Error("Error closing migrator", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
