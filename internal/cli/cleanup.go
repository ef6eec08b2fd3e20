package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupDatabase string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run retention cleanup",
	Long:  "Expire backups that fall outside the daily/weekly/monthly retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		policy := services.RetentionService.Policy()
		if !policy.Enabled() {
			fmt.Println("Retention is disabled; nothing to clean up")
			return nil
		}

		var removed int
		if cleanupDatabase != "" {
			database, err := services.DatabaseService.GetDatabaseByName(cmd.Context(), cleanupDatabase)
			if err != nil {
				return fmt.Errorf("unknown database %q", cleanupDatabase)
			}
			removed, err = services.RetentionService.CleanupDatabase(cmd.Context(), database.ID)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
		} else {
			removed, err = services.RetentionService.CleanupAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
		}

		fmt.Printf("Retention cleanup removed %d backup(s) (keep daily=%d weekly=%d monthly=%d)\n",
			removed, policy.KeepDaily, policy.KeepWeekly, policy.KeepMonthly)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVar(&cleanupDatabase, "database", "", "Clean up a single database by name")
}
