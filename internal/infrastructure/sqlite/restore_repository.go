package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
)

const restoreColumns = `id, backup_id, remote_key, source_environment, target_environment, target_database_id, target_summary, status, error, start_time, end_time, duration_ms`

type restoreRepository struct {
	db *DB
}

func NewRestoreRepository(db *DB) repository.RestoreRepository {
	return &restoreRepository{db: db}
}

func (r *restoreRepository) Create(ctx context.Context, restore *domain.Restore) error {
	query := `
		INSERT INTO restore (` + restoreColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var endTime sql.NullTime
	if restore.EndTime != nil {
		endTime = sql.NullTime{Valid: true, Time: *restore.EndTime}
	}

	_, err := r.db.ExecContext(ctx, query,
		restore.ID,
		NullString(restore.BackupID),
		NullString(restore.RemoteKey),
		restore.SourceEnvironment,
		restore.TargetEnvironment,
		NullInt64(restore.TargetDatabaseID),
		restore.TargetSummary,
		restore.Status,
		NullString(restore.Error),
		restore.StartTime,
		endTime,
		NullInt64(restore.DurationMs),
	)
	if err != nil {
		return fmt.Errorf("failed to create restore: %w", err)
	}
	return nil
}

func (r *restoreRepository) FindByID(ctx context.Context, id string) (*domain.Restore, error) {
	query := `SELECT ` + restoreColumns + ` FROM restore WHERE id = ?`
	return r.scanRestore(r.db.QueryRowContext(ctx, query, id))
}

// Update persists status transitions. Terminal rows are excluded in the
// WHERE clause, so a completed or failed job can never regress even if two
// writers race.
func (r *restoreRepository) Update(ctx context.Context, restore *domain.Restore) error {
	query := `
		UPDATE restore
		SET status = ?, error = ?, end_time = ?, duration_ms = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`

	var endTime sql.NullTime
	if restore.EndTime != nil {
		endTime = sql.NullTime{Valid: true, Time: *restore.EndTime}
	}

	result, err := r.db.ExecContext(ctx, query,
		restore.Status,
		NullString(restore.Error),
		endTime,
		NullInt64(restore.DurationMs),
		restore.ID,
		domain.RestoreStatusCompleted,
		domain.RestoreStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update restore: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("restore not found or already finished: %s", restore.ID)
	}

	return nil
}

func (r *restoreRepository) List(ctx context.Context, filter repository.RestoreFilter) ([]*domain.Restore, error) {
	query := `SELECT ` + restoreColumns + ` FROM restore WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "start_time DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list restores: %w", err)
	}
	defer rows.Close()

	var restores []*domain.Restore
	for rows.Next() {
		restore, err := r.scanRestoreRow(rows)
		if err != nil {
			return nil, err
		}
		restores = append(restores, restore)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restores: %w", err)
	}

	return restores, nil
}

func (r *restoreRepository) Count(ctx context.Context, filter repository.RestoreFilter) (int, error) {
	query := `SELECT COUNT(*) FROM restore WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count restores: %w", err)
	}

	return count, nil
}

func (r *restoreRepository) scanRestore(row *sql.Row) (*domain.Restore, error) {
	var restore domain.Restore
	var backupID, remoteKey, errMsg sql.NullString
	var targetDatabaseID, durationMs sql.NullInt64
	var endTime sql.NullTime

	err := row.Scan(
		&restore.ID,
		&backupID,
		&remoteKey,
		&restore.SourceEnvironment,
		&restore.TargetEnvironment,
		&targetDatabaseID,
		&restore.TargetSummary,
		&restore.Status,
		&errMsg,
		&restore.StartTime,
		&endTime,
		&durationMs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("restore not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan restore: %w", err)
	}

	applyRestoreNulls(&restore, backupID, remoteKey, errMsg, targetDatabaseID, durationMs, endTime)
	return &restore, nil
}

func (r *restoreRepository) scanRestoreRow(rows *sql.Rows) (*domain.Restore, error) {
	var restore domain.Restore
	var backupID, remoteKey, errMsg sql.NullString
	var targetDatabaseID, durationMs sql.NullInt64
	var endTime sql.NullTime

	err := rows.Scan(
		&restore.ID,
		&backupID,
		&remoteKey,
		&restore.SourceEnvironment,
		&restore.TargetEnvironment,
		&targetDatabaseID,
		&restore.TargetSummary,
		&restore.Status,
		&errMsg,
		&restore.StartTime,
		&endTime,
		&durationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan restore: %w", err)
	}

	applyRestoreNulls(&restore, backupID, remoteKey, errMsg, targetDatabaseID, durationMs, endTime)
	return &restore, nil
}

func applyRestoreNulls(restore *domain.Restore, backupID, remoteKey, errMsg sql.NullString, targetDatabaseID, durationMs sql.NullInt64, endTime sql.NullTime) {
	if backupID.Valid {
		restore.BackupID = &backupID.String
	}
	if remoteKey.Valid {
		restore.RemoteKey = &remoteKey.String
	}
	if errMsg.Valid {
		restore.Error = &errMsg.String
	}
	if targetDatabaseID.Valid {
		restore.TargetDatabaseID = &targetDatabaseID.Int64
	}
	if durationMs.Valid {
		restore.DurationMs = &durationMs.Int64
	}
	if endTime.Valid {
		restore.EndTime = &endTime.Time
	}
}
