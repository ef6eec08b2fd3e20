package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
)

const scheduleColumns = `id, database_id, name, cron_expr, local_only, enabled, last_run_at, created_at, updated_at`

type scheduleRepository struct {
	db *DB
}

func NewScheduleRepository(db *DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *domain.Schedule) error {
	query := `
		INSERT INTO schedule (database_id, name, cron_expr, local_only, enabled, last_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lastRunAt sql.NullTime
	if schedule.LastRunAt != nil {
		lastRunAt = sql.NullTime{Valid: true, Time: *schedule.LastRunAt}
	}

	result, err := r.db.ExecContext(ctx, query,
		schedule.DatabaseID,
		schedule.Name,
		schedule.CronExpr,
		schedule.LocalOnly,
		schedule.Enabled,
		lastRunAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get schedule id: %w", err)
	}
	schedule.ID = id
	return nil
}

func (r *scheduleRepository) FindByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule WHERE id = ?`
	return r.scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *domain.Schedule) error {
	query := `
		UPDATE schedule
		SET database_id = ?, name = ?, cron_expr = ?, local_only = ?, enabled = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?
	`

	var lastRunAt sql.NullTime
	if schedule.LastRunAt != nil {
		lastRunAt = sql.NullTime{Valid: true, Time: *schedule.LastRunAt}
	}

	result, err := r.db.ExecContext(ctx, query,
		schedule.DatabaseID,
		schedule.Name,
		schedule.CronExpr,
		schedule.LocalOnly,
		schedule.Enabled,
		lastRunAt,
		schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("schedule not found: %d", schedule.ID)
	}

	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM schedule WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("schedule not found: %d", id)
	}

	return nil
}

func (r *scheduleRepository) List(ctx context.Context) ([]*domain.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedule ORDER BY id`)
}

func (r *scheduleRepository) FindAllEnabled(ctx context.Context) ([]*domain.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedule WHERE enabled = 1 ORDER BY id`)
}

func (r *scheduleRepository) list(ctx context.Context, query string) ([]*domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		schedule, err := r.scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func (r *scheduleRepository) scanSchedule(row *sql.Row) (*domain.Schedule, error) {
	var schedule domain.Schedule
	var lastRunAt sql.NullTime

	err := row.Scan(
		&schedule.ID,
		&schedule.DatabaseID,
		&schedule.Name,
		&schedule.CronExpr,
		&schedule.LocalOnly,
		&schedule.Enabled,
		&lastRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	return &schedule, nil
}

func (r *scheduleRepository) scanScheduleRow(rows *sql.Rows) (*domain.Schedule, error) {
	var schedule domain.Schedule
	var lastRunAt sql.NullTime

	err := rows.Scan(
		&schedule.ID,
		&schedule.DatabaseID,
		&schedule.Name,
		&schedule.CronExpr,
		&schedule.LocalOnly,
		&schedule.Enabled,
		&lastRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	return &schedule, nil
}
