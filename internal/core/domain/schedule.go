package domain

import "time"

// Schedule triggers backups for one database on a cron expression
// (standard 5-field form). Disabled schedules stay stored but are not
// registered with the scheduler.
type Schedule struct {
	ID         int64      `db:"id"`
	DatabaseID int64      `db:"database_id"`
	Name       string     `db:"name"`
	CronExpr   string     `db:"cron_expr"`
	LocalOnly  bool       `db:"local_only"` // skip offsite upload for this schedule
	Enabled    bool       `db:"enabled"`
	LastRunAt  *time.Time `db:"last_run_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func NewSchedule(databaseID int64, name, cronExpr string, localOnly, enabled bool) *Schedule {
	now := time.Now()
	return &Schedule{
		DatabaseID: databaseID,
		Name:       name,
		CronExpr:   cronExpr,
		LocalOnly:  localOnly,
		Enabled:    enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Schedule) MarkRun(at time.Time) {
	s.LastRunAt = &at
}
