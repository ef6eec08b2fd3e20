package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
)

const databaseColumns = `id, name, host, port, db_name, username, password, schema, ssl_mode, environment, created_at, updated_at`

type databaseRepository struct {
	db *DB
}

func NewDatabaseRepository(db *DB) repository.DatabaseRepository {
	return &databaseRepository{db: db}
}

func (r *databaseRepository) Create(ctx context.Context, database *domain.Database) error {
	query := `
		INSERT INTO database (name, host, port, db_name, username, password, schema, ssl_mode, environment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		database.Name,
		database.Host,
		database.Port,
		database.DBName,
		database.Username,
		database.Password,
		NullString(database.Schema),
		database.SSLMode,
		database.Environment,
		database.CreatedAt,
		database.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get database id: %w", err)
	}
	database.ID = id
	return nil
}

func (r *databaseRepository) FindByID(ctx context.Context, id int64) (*domain.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM database WHERE id = ?`
	return r.scanDatabase(r.db.QueryRowContext(ctx, query, id))
}

func (r *databaseRepository) FindByName(ctx context.Context, name string) (*domain.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM database WHERE name = ?`
	return r.scanDatabase(r.db.QueryRowContext(ctx, query, name))
}

// Update persists everything except environment, which is immutable intent
// metadata fixed at creation.
func (r *databaseRepository) Update(ctx context.Context, database *domain.Database) error {
	query := `
		UPDATE database
		SET name = ?, host = ?, port = ?, db_name = ?, username = ?, password = ?, schema = ?, ssl_mode = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		database.Name,
		database.Host,
		database.Port,
		database.DBName,
		database.Username,
		database.Password,
		NullString(database.Schema),
		database.SSLMode,
		database.UpdatedAt,
		database.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update database: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("database not found: %d", database.ID)
	}

	return nil
}

func (r *databaseRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM database WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("database not found: %d", id)
	}

	return nil
}

func (r *databaseRepository) List(ctx context.Context) ([]*domain.Database, error) {
	query := `SELECT ` + databaseColumns + ` FROM database ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []*domain.Database
	for rows.Next() {
		database, err := r.scanDatabaseRow(rows)
		if err != nil {
			return nil, err
		}
		databases = append(databases, database)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating databases: %w", err)
	}

	return databases, nil
}

func (r *databaseRepository) scanDatabase(row *sql.Row) (*domain.Database, error) {
	var database domain.Database
	var schema sql.NullString

	err := row.Scan(
		&database.ID,
		&database.Name,
		&database.Host,
		&database.Port,
		&database.DBName,
		&database.Username,
		&database.Password,
		&schema,
		&database.SSLMode,
		&database.Environment,
		&database.CreatedAt,
		&database.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("database not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan database: %w", err)
	}

	if schema.Valid {
		database.Schema = &schema.String
	}
	return &database, nil
}

func (r *databaseRepository) scanDatabaseRow(rows *sql.Rows) (*domain.Database, error) {
	var database domain.Database
	var schema sql.NullString

	err := rows.Scan(
		&database.ID,
		&database.Name,
		&database.Host,
		&database.Port,
		&database.DBName,
		&database.Username,
		&database.Password,
		&schema,
		&database.SSLMode,
		&database.Environment,
		&database.CreatedAt,
		&database.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan database: %w", err)
	}

	if schema.Valid {
		database.Schema = &schema.String
	}
	return &database, nil
}
