package dto

import "time"

// CreateBackupRequest represents the backup creation request
type CreateBackupRequest struct {
	DatabaseID int64  `json:"database_id" binding:"required"`
	Name       string `json:"name"`       // Optional custom artifact base name
	LocalOnly  bool   `json:"local_only"` // Skip the offsite upload for this run
}

// BackupResponse represents a backup
type BackupResponse struct {
	ID           string     `json:"id"`
	DatabaseID   int64      `json:"database_id"`
	DatabaseName string     `json:"database_name"`
	ScheduleID   *int64     `json:"schedule_id,omitempty"`
	FileName     string     `json:"file_name"`
	Size         *int64     `json:"size,omitempty"`
	Encrypted    bool       `json:"encrypted"`
	RemoteKey    *string    `json:"remote_key,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// BackupListResponse represents a list of backups
type BackupListResponse struct {
	Items      []BackupResponse `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

// StorageObjectResponse represents one object in remote storage
type StorageObjectResponse struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// StorageObjectListResponse represents the remote storage inventory
type StorageObjectListResponse struct {
	Items []StorageObjectResponse `json:"items"`
}
