package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
)

const backupColumns = `id, database_id, database_name, schedule_id, file_name, size, encrypted, remote_key, status, error, start_time, end_time`

type backupRepository struct {
	db *DB
}

func NewBackupRepository(db *DB) repository.BackupRepository {
	return &backupRepository{db: db}
}

func (r *backupRepository) Create(ctx context.Context, backup *domain.Backup) error {
	query := `
		INSERT INTO backup (` + backupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var endTime sql.NullTime
	if backup.EndTime != nil {
		endTime = sql.NullTime{Valid: true, Time: *backup.EndTime}
	}

	_, err := r.db.ExecContext(ctx, query,
		backup.ID,
		backup.DatabaseID,
		backup.DatabaseName,
		NullInt64(backup.ScheduleID),
		backup.FileName,
		NullInt64(backup.Size),
		backup.Encrypted,
		NullString(backup.RemoteKey),
		backup.Status,
		NullString(backup.Error),
		backup.StartTime,
		endTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

func (r *backupRepository) FindByID(ctx context.Context, id string) (*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE id = ?`
	return r.scanBackup(r.db.QueryRowContext(ctx, query, id))
}

func (r *backupRepository) Update(ctx context.Context, backup *domain.Backup) error {
	query := `
		UPDATE backup
		SET file_name = ?, size = ?, encrypted = ?, remote_key = ?, status = ?, error = ?, end_time = ?
		WHERE id = ?
	`

	var endTime sql.NullTime
	if backup.EndTime != nil {
		endTime = sql.NullTime{Valid: true, Time: *backup.EndTime}
	}

	result, err := r.db.ExecContext(ctx, query,
		backup.FileName,
		NullInt64(backup.Size),
		backup.Encrypted,
		NullString(backup.RemoteKey),
		backup.Status,
		NullString(backup.Error),
		endTime,
		backup.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup not found: %s", backup.ID)
	}

	return nil
}

func (r *backupRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM backup WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup not found: %s", id)
	}

	return nil
}

func (r *backupRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM backup WHERE id IN (%s)", strings.Join(placeholders, ","))
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete backups: %w", err)
	}
	return nil
}

func (r *backupRepository) List(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "start_time DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := r.scanBackupRow(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func (r *backupRepository) Count(ctx context.Context, filter repository.BackupFilter) (int, error) {
	query := `SELECT COUNT(*) FROM backup WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backups: %w", err)
	}

	return count, nil
}

func (r *backupRepository) FindCompletedByDatabase(ctx context.Context, databaseID int64) ([]*domain.Backup, error) {
	query := `
		SELECT ` + backupColumns + `
		FROM backup
		WHERE database_id = ? AND status = ?
		ORDER BY start_time ASC
	`
	rows, err := r.db.QueryContext(ctx, query, databaseID, domain.BackupStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to find backups by database: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := r.scanBackupRow(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func (r *backupRepository) ListDatabaseIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT database_id FROM backup WHERE status = ?`
	rows, err := r.db.QueryContext(ctx, query, domain.BackupStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup database ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan database id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating database ids: %w", err)
	}

	return ids, nil
}

func (r *backupRepository) scanBackup(row *sql.Row) (*domain.Backup, error) {
	var backup domain.Backup
	var scheduleID sql.NullInt64
	var size sql.NullInt64
	var remoteKey sql.NullString
	var errMsg sql.NullString
	var endTime sql.NullTime

	err := row.Scan(
		&backup.ID,
		&backup.DatabaseID,
		&backup.DatabaseName,
		&scheduleID,
		&backup.FileName,
		&size,
		&backup.Encrypted,
		&remoteKey,
		&backup.Status,
		&errMsg,
		&backup.StartTime,
		&endTime,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}

	applyBackupNulls(&backup, scheduleID, size, remoteKey, errMsg, endTime)
	return &backup, nil
}

func (r *backupRepository) scanBackupRow(rows *sql.Rows) (*domain.Backup, error) {
	var backup domain.Backup
	var scheduleID sql.NullInt64
	var size sql.NullInt64
	var remoteKey sql.NullString
	var errMsg sql.NullString
	var endTime sql.NullTime

	err := rows.Scan(
		&backup.ID,
		&backup.DatabaseID,
		&backup.DatabaseName,
		&scheduleID,
		&backup.FileName,
		&size,
		&backup.Encrypted,
		&remoteKey,
		&backup.Status,
		&errMsg,
		&backup.StartTime,
		&endTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}

	applyBackupNulls(&backup, scheduleID, size, remoteKey, errMsg, endTime)
	return &backup, nil
}

func applyBackupNulls(backup *domain.Backup, scheduleID, size sql.NullInt64, remoteKey, errMsg sql.NullString, endTime sql.NullTime) {
	if scheduleID.Valid {
		backup.ScheduleID = &scheduleID.Int64
	}
	if size.Valid {
		backup.Size = &size.Int64
	}
	if remoteKey.Valid {
		backup.RemoteKey = &remoteKey.String
	}
	if errMsg.Valid {
		backup.Error = &errMsg.String
	}
	if endTime.Valid {
		backup.EndTime = &endTime.Time
	}
}
