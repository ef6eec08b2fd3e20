package domain

import (
	"time"

	"github.com/google/uuid"
)

type RestoreStatus string

const (
	RestoreStatusPending   RestoreStatus = "pending"
	RestoreStatusRunning   RestoreStatus = "running"
	RestoreStatusCompleted RestoreStatus = "completed"
	RestoreStatusFailed    RestoreStatus = "failed"
)

// Restore is an asynchronous restore job. The record exists from the moment
// the restore is accepted, so a poll can never miss it, and its status moves
// monotonically: pending, running, then exactly one terminal state.
type Restore struct {
	ID                string        `db:"id"`
	BackupID          *string       `db:"backup_id"`  // source artifact, or
	RemoteKey         *string       `db:"remote_key"` // raw offsite object key
	SourceEnvironment Environment   `db:"source_environment"`
	TargetEnvironment Environment   `db:"target_environment"`
	TargetDatabaseID  *int64        `db:"target_database_id"` // stored-credential restores
	TargetSummary     string        `db:"target_summary"`     // host:port/dbname; inline credentials are never persisted
	Status            RestoreStatus `db:"status"`
	Error             *string       `db:"error"`
	StartTime         time.Time     `db:"start_time"`
	EndTime           *time.Time    `db:"end_time"`
	DurationMs        *int64        `db:"duration_ms"`
}

func NewRestore(sourceEnv, targetEnv Environment, targetSummary string) *Restore {
	return &Restore{
		ID:                uuid.New().String(),
		SourceEnvironment: sourceEnv,
		TargetEnvironment: targetEnv,
		TargetSummary:     targetSummary,
		Status:            RestoreStatusPending,
		StartTime:         time.Now(),
	}
}

func (r *Restore) Start() {
	r.Status = RestoreStatusRunning
}

func (r *Restore) Complete() {
	r.finish()
	r.Status = RestoreStatusCompleted
}

func (r *Restore) Fail(errorMessage string) {
	r.finish()
	r.Status = RestoreStatusFailed
	if errorMessage != "" {
		r.Error = &errorMessage
	}
}

func (r *Restore) IsComplete() bool {
	return r.Status == RestoreStatusCompleted || r.Status == RestoreStatusFailed
}

func (r *Restore) finish() {
	now := time.Now()
	r.EndTime = &now
	ms := now.Sub(r.StartTime).Milliseconds()
	r.DurationMs = &ms
}
