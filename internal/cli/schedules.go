package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect backup schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		schedules, err := services.ScheduleService.ListSchedules(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list schedules: %w", err)
		}

		if len(schedules) == 0 {
			fmt.Println("No schedules found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDATABASE ID\tCRON\tENABLED\tLAST RUN")
		for _, s := range schedules {
			lastRun := "-"
			if s.LastRunAt != nil {
				lastRun = s.LastRunAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%t\t%s\n",
				s.ID, s.Name, s.DatabaseID, s.CronExpr, s.Enabled, lastRun)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(schedulesCmd)
	schedulesCmd.AddCommand(schedulesListCmd)
}
