package cli

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/api/util"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
	"github.com/martijn/pgvault/internal/crypto"
)

var (
	restoreBackupID  string
	restoreRemoteKey string
	restoreSourceEnv string
	restoreTarget    string
	restoreHost      string
	restorePort      int
	restoreDBName    string
	restoreUsername  string
	restoreSSLMode   string
	restoreTargetEnv string
	restoreConfirm   bool
	restoreTimeout   time.Duration
	restoreListLimit int
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Run and inspect restores",
}

var restoreRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Restore a backup into a target database",
	Long: `Restore a backup artifact into a target database.

The source is either a backup id (--backup) or a raw object key in remote
storage (--remote-key). The target is either a registered database
(--target) or manually entered credentials (--host, --port, --db-name,
--username plus a password prompt). Production targets always require
--confirm and manual credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		req, err := buildRestoreRequest(cmd, services)
		if err != nil {
			return err
		}

		restore, decision, err := services.RestoreService.Submit(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("restore rejected: %w", err)
		}

		switch decision.Outcome {
		case domain.OutcomeBlocked:
			return fmt.Errorf("restore blocked: %s", decision.Reason)
		case domain.OutcomeConfirmationRequired:
			return fmt.Errorf("%s (re-run with --confirm)", decision.Reason)
		}

		fmt.Printf("Restore %s accepted into %s\n", restore.ID, restore.TargetSummary)
		return pollRestore(cmd, services, restore.ID)
	},
}

// pollRestore waits for the job to reach a terminal state, up to the
// timeout. Hitting the timeout is reported as such, not as a failure; the
// job keeps its state and stays queryable.
func pollRestore(cmd *cobra.Command, services *Services, id string) error {
	deadline := time.Now().Add(restoreTimeout)
	for {
		restore, err := services.RestoreService.GetRestore(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to poll restore: %w", err)
		}

		if restore.IsComplete() {
			if restore.Status == domain.RestoreStatusFailed {
				errMsg := "unknown error"
				if restore.Error != nil {
					errMsg = *restore.Error
				}
				return fmt.Errorf("restore failed: %s", errMsg)
			}
			fmt.Printf("Restore completed")
			if restore.DurationMs != nil {
				fmt.Printf(" in %s", (time.Duration(*restore.DurationMs) * time.Millisecond).Round(time.Millisecond))
			}
			fmt.Println()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for restore %s (status %s); it may still complete",
				restoreTimeout, id, restore.Status)
		}
		time.Sleep(time.Second)
	}
}

func buildRestoreRequest(cmd *cobra.Command, services *Services) (service.RestoreRequest, error) {
	req := service.RestoreRequest{
		SourceEnvironment: restoreSourceEnv,
		TargetEnvironment: restoreTargetEnv,
		Confirmed:         restoreConfirm,
	}

	var artifactName string
	if restoreBackupID != "" {
		req.BackupID = &restoreBackupID
		if backup, err := services.BackupService.GetBackup(cmd.Context(), restoreBackupID); err == nil {
			artifactName = backup.FileName
		}
	}
	if restoreRemoteKey != "" {
		req.RemoteKey = &restoreRemoteKey
		artifactName = restoreRemoteKey
	}
	if (req.BackupID == nil) == (req.RemoteKey == nil) {
		return req, fmt.Errorf("exactly one of --backup and --remote-key is required")
	}

	if restoreTarget != "" {
		database, err := services.DatabaseService.GetDatabaseByName(cmd.Context(), restoreTarget)
		if err != nil {
			return req, fmt.Errorf("unknown database %q", restoreTarget)
		}
		req.TargetDatabaseID = &database.ID
	} else {
		if restoreHost == "" || restoreDBName == "" || restoreUsername == "" {
			return req, fmt.Errorf("either --target or --host, --db-name and --username are required")
		}
		if req.TargetEnvironment == "" {
			return req, fmt.Errorf("--target-env is required with manual credentials")
		}

		fmt.Printf("Password for %s@%s: ", restoreUsername, restoreHost)
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return req, fmt.Errorf("failed to read password: %w", err)
		}

		req.Target = &pgtool.ConnectionParams{
			Host:     restoreHost,
			Port:     restorePort,
			DBName:   restoreDBName,
			Username: restoreUsername,
			Password: string(password),
			SSLMode:  restoreSSLMode,
		}
	}

	// An encrypted artifact without a configured passphrase needs one now,
	// before the job starts.
	if cfg.EncryptionPassphrase == "" && crypto.IsEncryptedName(artifactName) {
		fmt.Print("Artifact passphrase: ")
		passphrase, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return req, fmt.Errorf("failed to read passphrase: %w", err)
		}
		req.Passphrase = string(passphrase)
	}

	return req, nil
}

var restoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent restore jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		restores, err := services.RestoreService.ListRestores(cmd.Context(), repository.RestoreFilter{
			ListFilter: util.ListFilter{
				Order:   []util.OrderClause{{Field: "start_time", Direction: util.OrderDesc}},
				Page:    1,
				PerPage: restoreListLimit,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to list restores: %w", err)
		}

		if len(restores) == 0 {
			fmt.Println("No restores found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTARGET\tSTATUS\tSTARTED\tDURATION")
		for _, r := range restores {
			duration := "-"
			if r.DurationMs != nil {
				duration = (time.Duration(*r.DurationMs) * time.Millisecond).Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.TargetSummary, r.Status,
				r.StartTime.Format(time.RFC3339), duration)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.AddCommand(restoreRunCmd)
	restoreCmd.AddCommand(restoreListCmd)

	restoreRunCmd.Flags().StringVar(&restoreBackupID, "backup", "", "Backup id to restore")
	restoreRunCmd.Flags().StringVar(&restoreRemoteKey, "remote-key", "", "Remote object key to restore")
	restoreRunCmd.Flags().StringVar(&restoreSourceEnv, "source-env", "", "Declared source environment for raw remote keys (prod|dev)")
	restoreRunCmd.Flags().StringVar(&restoreTarget, "target", "", "Registered target database name (stored credentials)")
	restoreRunCmd.Flags().StringVar(&restoreHost, "host", "", "Target host (manual credentials)")
	restoreRunCmd.Flags().IntVar(&restorePort, "port", 5432, "Target port")
	restoreRunCmd.Flags().StringVar(&restoreDBName, "db-name", "", "Target database name")
	restoreRunCmd.Flags().StringVar(&restoreUsername, "username", "", "Target username")
	restoreRunCmd.Flags().StringVar(&restoreSSLMode, "ssl-mode", "prefer", "Target SSL mode")
	restoreRunCmd.Flags().StringVar(&restoreTargetEnv, "target-env", "", "Declared target environment (prod|dev)")
	restoreRunCmd.Flags().BoolVar(&restoreConfirm, "confirm", false, "Confirm a restore into a production target")
	restoreRunCmd.Flags().DurationVar(&restoreTimeout, "timeout", 30*time.Minute, "Maximum time to wait for completion")

	restoreListCmd.Flags().IntVar(&restoreListLimit, "limit", 20, "Maximum number of restores to show")
}
