package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/adapter/localfs"
	"github.com/martijn/pgvault/internal/adapter/notify"
	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/adapter/storage"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
	"github.com/martijn/pgvault/internal/infrastructure/sqlite"
	"github.com/martijn/pgvault/internal/logging"
	"github.com/martijn/pgvault/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pgvault",
	Short: "pgvault - PostgreSQL backup orchestration",
	Long: `pgvault is a backup orchestration and restore safety daemon for
PostgreSQL databases.

It provides:
- Scheduled pg_dump backups with optional client-side encryption
- Offsite replication to S3-compatible storage
- Grandfather-father-son retention policies
- Environment-aware restore authorization (dev never overwrites prod)
- REST API for remote management`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = logging.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/pgvault/config.yml)")
}

// initServices initializes all services
func initServices(ctx context.Context) (*Services, error) {
	// Initialize database
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	userRepo := sqlite.NewUserRepository(db)
	databaseRepo := sqlite.NewDatabaseRepository(db)
	backupRepo := sqlite.NewBackupRepository(db)
	restoreRepo := sqlite.NewRestoreRepository(db)
	scheduleRepo := sqlite.NewScheduleRepository(db)

	// Initialize adapters
	pgClient := pgtool.NewClient(cfg.PgDumpPath, cfg.PgRestorePath, cfg.PgConnectTimeout, logger)

	store, err := localfs.NewStore(cfg.BackupDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize backup store: %w", err)
	}

	var remote *storage.Client
	if cfg.S3Enabled {
		remote, err = storage.NewClient(ctx, storage.Options{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			Prefix:         cfg.S3Prefix,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize remote storage: %w", err)
		}
	}

	var mailer *notify.Mailer
	if cfg.EmailEnabled {
		mailer, err = notify.NewMailer(ctx, cfg.EmailRegion, cfg.EmailFrom, cfg.EmailTo)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize mailer: %w", err)
		}
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecretKey, cfg.JWTAlgorithm)
	databaseService := service.NewDatabaseService(databaseRepo, pgClient, cfg.CredentialsKey)
	retentionService := service.NewRetentionService(backupRepo, store, remote, service.Policy{
		KeepDaily:   cfg.RetentionKeepDaily,
		KeepWeekly:  cfg.RetentionKeepWeekly,
		KeepMonthly: cfg.RetentionKeepMonthly,
	}, logger)
	backupService := service.NewBackupService(backupRepo, databaseRepo, databaseService,
		pgClient, store, remote, retentionService, mailer, service.BackupOptions{
			Encrypt:    cfg.EncryptionEnabled,
			Passphrase: cfg.EncryptionPassphrase,
		}, logger)
	restoreService := service.NewRestoreService(restoreRepo, backupRepo, databaseRepo,
		databaseService, pgClient, store, remote, mailer, cfg.EncryptionPassphrase, logger)
	scheduleService := service.NewScheduleService(scheduleRepo, databaseRepo, backupService)

	return &Services{
		DB:               db,
		UserRepo:         userRepo,
		DatabaseRepo:     databaseRepo,
		BackupRepo:       backupRepo,
		RestoreRepo:      restoreRepo,
		ScheduleRepo:     scheduleRepo,
		AuthService:      authService,
		DatabaseService:  databaseService,
		RetentionService: retentionService,
		BackupService:    backupService,
		RestoreService:   restoreService,
		ScheduleService:  scheduleService,
	}, nil
}

// Services holds all initialized services
type Services struct {
	DB               *sqlite.DB
	UserRepo         repository.UserRepository
	DatabaseRepo     repository.DatabaseRepository
	BackupRepo       repository.BackupRepository
	RestoreRepo      repository.RestoreRepository
	ScheduleRepo     repository.ScheduleRepository
	AuthService      *service.AuthService
	DatabaseService  *service.DatabaseService
	RetentionService *service.RetentionService
	BackupService    *service.BackupService
	RestoreService   *service.RestoreService
	ScheduleService  *service.ScheduleService
}

// Close closes all resources
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
}
