package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/atelier/internal/checkout"
	checkoutPostgres "github.com/frahmantamala/atelier/internal/checkout/postgres"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
	"github.com/frahmantamala/atelier/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that maintain payment state outside the request path.`,
}

var expiryWorkerCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Expire and purge stale pending checkouts",
	Long:  `Run the pending checkout sweeper on payment.sweep_schedule, or once with --once`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startExpiryWorker(); err != nil {
			fmt.Fprintf(os.Stderr, "expiry worker: %v\n", err)
			os.Exit(1)
		}
	},
}

var sweepOnce bool

func startExpiryWorker() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	sqlxDB, db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlxDB.Close()

	sweeper := checkout.NewSweeper(checkoutPostgres.NewPendingRepository(db), cfg.Payment, log)
	if cfg.Payment.StripeEnabled() {
		sweeper.WithIntentCanceler(enrollmentDatamodel.MethodStripe, gateway.NewStripeClient(cfg.Payment.Stripe, log))
	}

	if sweepOnce {
		expired, purged, err := sweeper.Sweep(context.Background())
		if err != nil {
			return err
		}
		log.Info("sweep finished", "expired", expired, "purged", purged)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	log.Info("expiry worker is running. Press Ctrl+C to stop.", "schedule", cfg.Payment.SweepSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received signal, shutting down expiry worker", "signal", sig)

	cancel()
	select {
	case <-sweeper.Stop().Done():
		log.Info("expiry worker shutdown complete")
	case <-time.After(30 * time.Second):
		log.Warn("shutdown timeout reached, forcing exit")
	}
	return nil
}

func init() {
	expiryWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")
	workerCmd.AddCommand(expiryWorkerCmd)
}
