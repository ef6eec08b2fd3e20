package repository

import (
	"context"

	"github.com/martijn/pgvault/internal/core/domain"
)

type DatabaseRepository interface {
	Create(ctx context.Context, database *domain.Database) error
	FindByID(ctx context.Context, id int64) (*domain.Database, error)
	FindByName(ctx context.Context, name string) (*domain.Database, error)
	Update(ctx context.Context, database *domain.Database) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*domain.Database, error)
}
