package repository

import (
	"context"

	"github.com/martijn/pgvault/internal/core/domain"
)

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	FindByID(ctx context.Context, id int64) (*domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*domain.Schedule, error)

	// Enabled schedules, for scheduler registration at startup
	FindAllEnabled(ctx context.Context) ([]*domain.Schedule, error)
}
