package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/pgvault/internal/api"
	"github.com/martijn/pgvault/internal/scheduler"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and scheduler",
	Long:  "Start the REST API server and, unless disabled, the backup scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		var sched *scheduler.Scheduler
		if cfg.SchedulerEnabled {
			sched = scheduler.New(services.ScheduleRepo, services.ScheduleService, logger)
			services.ScheduleService.SetNotifier(sched)
			if err := sched.Start(cmd.Context()); err != nil {
				return fmt.Errorf("scheduler error: %w", err)
			}
		} else {
			logger.Info("scheduler disabled")
		}

		// Initialize Gin server
		server := api.NewServer(
			cfg,
			services.AuthService,
			services.DatabaseService,
			services.BackupService,
			services.RestoreService,
			services.ScheduleService,
			services.RetentionService,
			logger,
		)

		// Start server in goroutine
		serverErr := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()

		// Wait for interrupt signal or server error
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		fmt.Println("Server is ready. Press Ctrl+C to stop.")

		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case <-sigChan:
			fmt.Println("\nShutting down gracefully...")
		}

		// Let in-flight backups finish before the API goes away
		if sched != nil {
			sched.Stop(30 * time.Second)
		}

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
