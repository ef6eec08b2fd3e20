package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/pgvault/internal/api/util"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
)

var (
	backupName      string
	backupLocalOnly bool
	backupListLimit int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run and inspect backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run <database-name>",
	Short: "Run a backup and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		database, err := services.DatabaseService.GetDatabaseByName(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("unknown database %q", args[0])
		}

		backup, err := services.BackupService.RunBackup(cmd.Context(), service.RunParams{
			DatabaseID: database.ID,
			Name:       backupName,
			LocalOnly:  backupLocalOnly,
		})
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup completed\n")
		fmt.Printf("ID:   %s\n", backup.ID)
		fmt.Printf("File: %s\n", backup.FileName)
		if backup.Size != nil {
			fmt.Printf("Size: %s\n", formatSize(*backup.Size))
		}
		if backup.RemoteKey != nil {
			fmt.Printf("Remote: %s\n", *backup.RemoteKey)
		}

		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		backups, err := services.BackupService.ListBackups(cmd.Context(), repository.BackupFilter{
			ListFilter: util.ListFilter{
				Order:   []util.OrderClause{{Field: "start_time", Direction: util.OrderDesc}},
				Page:    1,
				PerPage: backupListLimit,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		if len(backups) == 0 {
			fmt.Println("No backups found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tDATABASE\tSTATUS\tSIZE\tSTARTED")
		for _, b := range backups {
			size := "-"
			if b.Size != nil {
				size = formatSize(*b.Size)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				b.ID, b.DatabaseName, b.Status, size,
				b.StartTime.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)

	backupRunCmd.Flags().StringVar(&backupName, "name", "", "Custom artifact name")
	backupRunCmd.Flags().BoolVar(&backupLocalOnly, "local-only", false, "Skip the remote upload")

	backupListCmd.Flags().IntVar(&backupListLimit, "limit", 20, "Maximum number of backups to show")
}
