package dto

import "time"

// CreateScheduleRequest represents the schedule creation request
type CreateScheduleRequest struct {
	DatabaseID int64  `json:"database_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	CronExpr   string `json:"cron_expr" binding:"required"`
	LocalOnly  bool   `json:"local_only"`
	Enabled    bool   `json:"enabled"`
}

// UpdateScheduleRequest represents the schedule update request
type UpdateScheduleRequest struct {
	Name      *string `json:"name,omitempty"`
	CronExpr  *string `json:"cron_expr,omitempty"`
	LocalOnly *bool   `json:"local_only,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// ScheduleResponse represents a schedule
type ScheduleResponse struct {
	ID         int64      `json:"id"`
	DatabaseID int64      `json:"database_id"`
	Name       string     `json:"name"`
	CronExpr   string     `json:"cron_expr"`
	LocalOnly  bool       `json:"local_only"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ScheduleListResponse represents a list of schedules
type ScheduleListResponse struct {
	Items []ScheduleResponse `json:"items"`
}
