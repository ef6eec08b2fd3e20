package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	// Required fields
	BackupDir      string `mapstructure:"backup_dir"`
	JWTSecretKey   string `mapstructure:"jwt_secret_key"`
	CredentialsKey string `mapstructure:"credentials_key"`

	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`

	// Optional JWT settings
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	// Artifact encryption (user-held passphrase)
	EncryptionEnabled    bool   `mapstructure:"encryption_enabled"`
	EncryptionPassphrase string `mapstructure:"encryption_passphrase"`

	// Offsite replication (S3-compatible)
	S3Enabled        bool   `mapstructure:"s3_enabled"`
	S3Endpoint       string `mapstructure:"s3_endpoint"`
	S3Region         string `mapstructure:"s3_region"`
	S3Bucket         string `mapstructure:"s3_bucket"`
	S3Prefix         string `mapstructure:"s3_prefix"`
	S3AccessKey      string `mapstructure:"s3_access_key"`
	S3SecretKey      string `mapstructure:"s3_secret_key"`
	S3ForcePathStyle bool   `mapstructure:"s3_force_path_style"`

	// Retention policy (counts of calendar buckets to keep)
	RetentionKeepDaily   int `mapstructure:"retention_keep_daily"`
	RetentionKeepWeekly  int `mapstructure:"retention_keep_weekly"`
	RetentionKeepMonthly int `mapstructure:"retention_keep_monthly"`

	// Failure/completion notifications (SES)
	EmailEnabled bool     `mapstructure:"email_enabled"`
	EmailRegion  string   `mapstructure:"email_region"`
	EmailFrom    string   `mapstructure:"email_from"`
	EmailTo      []string `mapstructure:"email_to"`

	// Scheduler
	SchedulerEnabled bool `mapstructure:"scheduler_enabled"`

	// PostgreSQL client tooling
	PgDumpPath       string `mapstructure:"pg_dump_path"`
	PgRestorePath    string `mapstructure:"pg_restore_path"`
	PgConnectTimeout int    `mapstructure:"pg_connect_timeout"`

	// Static paths
	ConfigPath string
	DBPath     string `mapstructure:"db_path"`
}

const (
	DefaultConfigPath           = "/etc/pgvault/config.yml"
	DefaultDBPath               = "/var/lib/pgvault/db.sqlite3"
	DefaultAPIHost              = "0.0.0.0"
	DefaultAPIPort              = 8436
	DefaultLogLevel             = "info"
	DefaultJWTAlgorithm         = "HS256"
	DefaultRetentionKeepDaily   = 7
	DefaultRetentionKeepWeekly  = 4
	DefaultRetentionKeepMonthly = 6
	DefaultPgDumpPath           = "pg_dump"
	DefaultPgRestorePath        = "pg_restore"
	DefaultPgConnectTimeout     = 10
)

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("api_host", DefaultAPIHost)
	viper.SetDefault("api_port", DefaultAPIPort)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	viper.SetDefault("db_path", DefaultDBPath)
	viper.SetDefault("retention_keep_daily", DefaultRetentionKeepDaily)
	viper.SetDefault("retention_keep_weekly", DefaultRetentionKeepWeekly)
	viper.SetDefault("retention_keep_monthly", DefaultRetentionKeepMonthly)
	viper.SetDefault("scheduler_enabled", true)
	viper.SetDefault("pg_dump_path", DefaultPgDumpPath)
	viper.SetDefault("pg_restore_path", DefaultPgRestorePath)
	viper.SetDefault("pg_connect_timeout", DefaultPgConnectTimeout)

	// Allow environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PGVAULT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}

	if c.JWTSecretKey == "" {
		return fmt.Errorf("jwt_secret_key is required")
	}

	if c.CredentialsKey == "" {
		return fmt.Errorf("credentials_key is required")
	}

	// Validate backup directory exists
	if _, err := os.Stat(c.BackupDir); os.IsNotExist(err) {
		return fmt.Errorf("backup_dir does not exist: %s", c.BackupDir)
	}

	if c.EncryptionEnabled && c.EncryptionPassphrase == "" {
		return fmt.Errorf("encryption_passphrase is required when encryption_enabled is true")
	}

	if c.S3Enabled && c.S3Bucket == "" {
		return fmt.Errorf("s3_bucket is required when s3_enabled is true")
	}

	if c.EmailEnabled {
		if c.EmailFrom == "" {
			return fmt.Errorf("email_from is required when email_enabled is true")
		}
		if len(c.EmailTo) == 0 {
			return fmt.Errorf("email_to is required when email_enabled is true")
		}
	}

	if c.RetentionKeepDaily < 0 || c.RetentionKeepWeekly < 0 || c.RetentionKeepMonthly < 0 {
		return fmt.Errorf("retention counts must not be negative")
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) IsDevMode() bool {
	return os.Getenv("PGVAULT_DEV_MODE") == "1"
}
