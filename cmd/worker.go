package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	attendancedb "github.com/frahmantamala/attendance-management/internal/attendance/postgres"
	"github.com/frahmantamala/attendance-management/internal/settings"
	settingsdb "github.com/frahmantamala/attendance-management/internal/settings/postgres"
	"github.com/frahmantamala/attendance-management/internal/sheetsync"
	"github.com/frahmantamala/attendance-management/pkg/logger"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers such as the spreadsheet mirror.`,
}

var sheetSyncWorkerCmd = &cobra.Command{
	Use:   "sheetsync",
	Short: "Start the spreadsheet mirror worker",
	Long:  `Periodically exports new attendance records to the external spreadsheet API.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSheetSyncWorker()
	},
}

var (
	sheetMaxWorkers   int
	sheetJobQueueSize int
	sheetAPIURL       string
	sheetAPIKey       string
)

func startSheetSyncWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := gorm.Open(gormpostgres.Open(config.Database.Source), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}

	sinkConfig := sheetsync.Config{
		APIURL:         getStringFlag(sheetAPIURL, config.SheetSync.APIURL),
		APIKey:         getStringFlag(sheetAPIKey, config.SheetSync.APIKey),
		RequestTimeout: config.SheetSync.RequestTimeout,
		MaxWorkers:     getIntFlag(sheetMaxWorkers, config.SheetSync.MaxWorkers),
		JobQueueSize:   getIntFlag(sheetJobQueueSize, config.SheetSync.JobQueueSize),
	}

	lg.Info("starting sheet sync worker",
		"max_workers", sinkConfig.MaxWorkers,
		"job_queue_size", sinkConfig.JobQueueSize,
		"api_url", sinkConfig.APIURL,
		"interval", config.SheetSync.SyncInterval.String())

	sink := sheetsync.NewHTTPSink(sinkConfig, lg)

	attendanceRepo := attendancedb.NewAttendanceRepository(db)
	settingsService := settings.NewService(settingsdb.NewSettingsRepository(db), lg)
	exporter := sheetsync.NewExporter(attendanceRepo, settingsService, sink, config.SheetSync.BatchSize, config.SheetSync.SyncInterval, lg)

	ctx, cancel := context.WithCancel(context.Background())
	go exporter.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("sheet sync worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down sheet sync worker", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		sink.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("sheet sync worker shutdown complete")
	case <-shutdownCtx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sheetSyncWorkerCmd.Flags().IntVar(&sheetMaxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	sheetSyncWorkerCmd.Flags().IntVar(&sheetJobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	sheetSyncWorkerCmd.Flags().StringVar(&sheetAPIURL, "api-url", "", "Spreadsheet API URL (overrides config)")
	sheetSyncWorkerCmd.Flags().StringVar(&sheetAPIKey, "api-key", "", "Spreadsheet API key (overrides config)")

	workerCmd.AddCommand(sheetSyncWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
