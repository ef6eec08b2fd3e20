package dto

import "time"

// TargetConnection carries manually entered target credentials. They are
// used for the restore run and never persisted.
type TargetConnection struct {
	Host     string  `json:"host" binding:"required"`
	Port     int     `json:"port" binding:"required,min=1,max=65535"`
	DBName   string  `json:"db_name" binding:"required"`
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Schema   *string `json:"schema,omitempty"`
	SSLMode  string  `json:"ssl_mode" binding:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// CreateRestoreRequest represents the restore submission. Exactly one of
// backup_id and remote_key selects the source; exactly one of
// target_database_id and target selects the destination.
type CreateRestoreRequest struct {
	BackupID          *string           `json:"backup_id,omitempty"`
	RemoteKey         *string           `json:"remote_key,omitempty"`
	SourceEnvironment string            `json:"source_environment" binding:"omitempty,oneof=prod dev unknown"`
	TargetDatabaseID  *int64            `json:"target_database_id,omitempty"`
	Target            *TargetConnection `json:"target,omitempty"`
	TargetEnvironment string            `json:"target_environment" binding:"omitempty,oneof=prod dev"`
	Passphrase        string            `json:"passphrase,omitempty"`
	Confirmed         bool              `json:"confirmed"`
}

// RestoreDecisionResponse represents one policy evaluation
type RestoreDecisionResponse struct {
	Outcome         string   `json:"outcome"`
	CredentialModes []string `json:"credential_modes,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// RestoreAcceptedResponse is returned when a restore job is started
type RestoreAcceptedResponse struct {
	Restore  RestoreResponse         `json:"restore"`
	Decision RestoreDecisionResponse `json:"decision"`
	Link     string                  `json:"link"`
}

// RestoreResponse represents a restore job
type RestoreResponse struct {
	ID                string     `json:"id"`
	BackupID          *string    `json:"backup_id,omitempty"`
	RemoteKey         *string    `json:"remote_key,omitempty"`
	SourceEnvironment string     `json:"source_environment"`
	TargetEnvironment string     `json:"target_environment"`
	TargetDatabaseID  *int64     `json:"target_database_id,omitempty"`
	TargetSummary     string     `json:"target_summary"`
	Status            string     `json:"status"`
	Error             *string    `json:"error,omitempty"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	DurationMs        *int64     `json:"duration_ms,omitempty"`
}

// RestoreListResponse represents a list of restore jobs
type RestoreListResponse struct {
	Items      []RestoreResponse `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}
