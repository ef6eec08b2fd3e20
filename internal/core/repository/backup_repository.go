package repository

import (
	"context"

	"github.com/martijn/pgvault/internal/api/util"
	"github.com/martijn/pgvault/internal/core/domain"
)

// BackupFilter embeds ListFilter for generic query/order/pagination
type BackupFilter struct {
	util.ListFilter
}

type BackupRepository interface {
	Create(ctx context.Context, backup *domain.Backup) error
	FindByID(ctx context.Context, id string) (*domain.Backup, error)
	Update(ctx context.Context, backup *domain.Backup) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
	List(ctx context.Context, filter BackupFilter) ([]*domain.Backup, error)
	Count(ctx context.Context, filter BackupFilter) (int, error)

	// Completed backups of one database, for retention evaluation
	FindCompletedByDatabase(ctx context.Context, databaseID int64) ([]*domain.Backup, error)

	// Database ids that have at least one completed backup
	ListDatabaseIDs(ctx context.Context) ([]int64, error)
}
