package cli

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/martijn/pgvault/internal/core/domain"
)

var (
	databaseHost    string
	databasePort    int
	databaseDBName  string
	databaseUser    string
	databaseSchema  string
	databaseSSLMode string
	databaseEnv     string
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "Manage database targets",
	Long:  "Register, inspect, and remove the databases this instance backs up",
}

var databasesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a database target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		environment := domain.ParseEnvironment(databaseEnv)
		if environment == domain.EnvironmentUnknown {
			return fmt.Errorf("--environment must be prod or dev")
		}

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		fmt.Printf("Password for %s@%s: ", databaseUser, databaseHost)
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		database := domain.NewDatabase(name, databaseHost, databasePort, databaseDBName, databaseUser, "", environment)
		database.SSLMode = databaseSSLMode
		if databaseSchema != "" {
			database.Schema = &databaseSchema
		}

		if err := services.DatabaseService.RegisterDatabase(cmd.Context(), database, string(password)); err != nil {
			return fmt.Errorf("failed to register database: %w", err)
		}

		fmt.Printf("Database '%s' registered (environment=%s)\n", name, environment)
		return nil
	},
}

var databasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered database targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		databases, err := services.DatabaseService.ListDatabases(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list databases: %w", err)
		}

		if len(databases) == 0 {
			fmt.Println("No databases registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tHOST\tDATABASE\tENVIRONMENT")
		for _, d := range databases {
			fmt.Fprintf(w, "%d\t%s\t%s:%d\t%s\t%s\n",
				d.ID, d.Name, d.Host, d.Port, d.DBName, d.Environment)
		}
		return w.Flush()
	},
}

var databasesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a database target",
	Long:  "Remove a database target and its schedules. Backup records and artifacts are kept.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		database, err := services.DatabaseService.GetDatabaseByName(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("unknown database %q", name)
		}

		fmt.Printf("Are you sure you want to remove database '%s'? (yes/no): ", name)
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" {
			fmt.Println("Cancelled")
			return nil
		}

		if err := services.DatabaseService.DeleteDatabase(cmd.Context(), database.ID); err != nil {
			return fmt.Errorf("failed to remove database: %w", err)
		}

		fmt.Printf("Database '%s' removed\n", name)
		return nil
	},
}

var databasesTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Test the connection to a database target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		database, err := services.DatabaseService.GetDatabaseByName(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("unknown database %q", name)
		}

		info, err := services.DatabaseService.TestConnection(cmd.Context(), database.ID)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		fmt.Printf("Connection OK\n")
		fmt.Printf("Server: %s\n", info.Version)
		fmt.Printf("Tables: %d\n", len(info.Tables))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(databasesCmd)
	databasesCmd.AddCommand(databasesAddCmd)
	databasesCmd.AddCommand(databasesListCmd)
	databasesCmd.AddCommand(databasesRemoveCmd)
	databasesCmd.AddCommand(databasesTestCmd)

	databasesAddCmd.Flags().StringVar(&databaseHost, "host", "localhost", "Database host")
	databasesAddCmd.Flags().IntVar(&databasePort, "port", 5432, "Database port")
	databasesAddCmd.Flags().StringVar(&databaseDBName, "db-name", "", "Database name on the server")
	databasesAddCmd.Flags().StringVar(&databaseUser, "username", "", "Database username")
	databasesAddCmd.Flags().StringVar(&databaseSchema, "schema", "", "Restrict backups to one schema")
	databasesAddCmd.Flags().StringVar(&databaseSSLMode, "ssl-mode", "prefer", "SSL mode")
	databasesAddCmd.Flags().StringVar(&databaseEnv, "environment", "", "Declared environment (prod|dev)")
	databasesAddCmd.MarkFlagRequired("db-name")
	databasesAddCmd.MarkFlagRequired("username")
	databasesAddCmd.MarkFlagRequired("environment")
}
