package domain

import (
	"time"

	"github.com/google/uuid"
)

type BackupStatus string

const (
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup is a single backup artifact. The record is created with status
// running before any dump I/O happens, so a crash mid-backup leaves an
// observable row instead of silently losing the run. Once finalized the
// record is immutable except for deletion and the remote upload side effect.
type Backup struct {
	ID           string       `db:"id"`
	DatabaseID   int64        `db:"database_id"`
	DatabaseName string       `db:"database_name"` // kept for display after target deletion
	ScheduleID   *int64       `db:"schedule_id"`   // for scheduled backups
	FileName     string       `db:"file_name"`     // relative to the backup directory
	Size         *int64       `db:"size"`          // in bytes
	Encrypted    bool         `db:"encrypted"`
	RemoteKey    *string      `db:"remote_key"` // set once offsite upload succeeds
	Status       BackupStatus `db:"status"`
	Error        *string      `db:"error"`
	StartTime    time.Time    `db:"start_time"`
	EndTime      *time.Time   `db:"end_time"`
}

func NewBackup(databaseID int64, databaseName, fileName string, encrypted bool, scheduleID *int64) *Backup {
	return &Backup{
		ID:           uuid.New().String(),
		DatabaseID:   databaseID,
		DatabaseName: databaseName,
		ScheduleID:   scheduleID,
		FileName:     fileName,
		Encrypted:    encrypted,
		Status:       BackupStatusRunning,
		StartTime:    time.Now(),
	}
}

func (b *Backup) Complete(size int64) {
	now := time.Now()
	b.EndTime = &now
	b.Size = &size
	b.Status = BackupStatusCompleted
}

func (b *Backup) Fail(errorMessage string) {
	now := time.Now()
	b.EndTime = &now
	b.Status = BackupStatusFailed
	if errorMessage != "" {
		b.Error = &errorMessage
	}
}

func (b *Backup) SetRemoteKey(key string) {
	b.RemoteKey = &key
}

func (b *Backup) IsComplete() bool {
	return b.Status == BackupStatusCompleted || b.Status == BackupStatusFailed
}
