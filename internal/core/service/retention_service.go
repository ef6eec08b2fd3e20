package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/adapter/localfs"
	"github.com/martijn/pgvault/internal/adapter/storage"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/metrics"
)

// Policy holds how many daily, weekly, and monthly backups to keep per
// database. A zero count disables that tier.
type Policy struct {
	KeepDaily   int
	KeepWeekly  int
	KeepMonthly int
}

// Enabled reports whether any tier is active. With no tiers the cleanup is
// a no-op and nothing ever expires.
func (p Policy) Enabled() bool {
	return p.KeepDaily > 0 || p.KeepWeekly > 0 || p.KeepMonthly > 0
}

// Plan splits one database's completed backups into those the policy keeps
// and those it expires. Buckets are derived in UTC from the backup start
// time: calendar day, ISO week, and calendar month. The newest backup
// represents its bucket, the newest buckets win, and a backup kept by any
// tier is kept. Planning the kept set again expires nothing.
func Plan(backups []*domain.Backup, policy Policy) (keep, expire []*domain.Backup) {
	kept := make(map[string]bool)

	markTier(backups, policy.KeepDaily, kept, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
	markTier(backups, policy.KeepWeekly, kept, func(t time.Time) string {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	})
	markTier(backups, policy.KeepMonthly, kept, func(t time.Time) string {
		return t.Format("2006-01")
	})

	for _, backup := range backups {
		if kept[backup.ID] {
			keep = append(keep, backup)
		} else {
			expire = append(expire, backup)
		}
	}
	return keep, expire
}

// markTier marks the newest backup of each of the n newest buckets.
func markTier(backups []*domain.Backup, n int, kept map[string]bool, bucketOf func(time.Time) string) {
	if n <= 0 {
		return
	}

	newest := make(map[string]*domain.Backup)
	for _, backup := range backups {
		key := bucketOf(backup.StartTime.UTC())
		current, ok := newest[key]
		if !ok || laterBackup(backup, current) {
			newest[key] = backup
		}
	}

	keys := make([]string, 0, len(newest))
	for key := range newest {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	if len(keys) > n {
		keys = keys[:n]
	}
	for _, key := range keys {
		kept[newest[key].ID] = true
	}
}

// laterBackup reports whether a outranks b as its bucket representative.
// Start time decides, ID breaks exact ties so the outcome is stable.
func laterBackup(a, b *domain.Backup) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID > b.ID
	}
	return a.StartTime.After(b.StartTime)
}

type RetentionService struct {
	backupRepo repository.BackupRepository
	store      *localfs.Store
	remote     *storage.Client
	policy     Policy
	logger     *zap.Logger
}

// NewRetentionService creates the cleanup runner. remote may be nil when
// uploads are disabled.
func NewRetentionService(
	backupRepo repository.BackupRepository,
	store *localfs.Store,
	remote *storage.Client,
	policy Policy,
	logger *zap.Logger,
) *RetentionService {
	return &RetentionService{
		backupRepo: backupRepo,
		store:      store,
		remote:     remote,
		policy:     policy,
		logger:     logger,
	}
}

// Policy returns the active retention policy.
func (s *RetentionService) Policy() Policy {
	return s.policy
}

// CleanupDatabase applies the retention policy to one database and returns
// how many backups were removed. Artifacts whose local file cannot be
// deleted keep their record so a later run retries them.
func (s *RetentionService) CleanupDatabase(ctx context.Context, databaseID int64) (int, error) {
	if !s.policy.Enabled() {
		return 0, nil
	}

	backups, err := s.backupRepo.FindCompletedByDatabase(ctx, databaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to load backups for retention: %w", err)
	}

	_, expire := Plan(backups, s.policy)
	if len(expire) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expire))
	for _, backup := range expire {
		if err := s.store.Remove(backup.FileName); err != nil {
			s.logger.Warn("failed to remove expired artifact",
				zap.String("file", backup.FileName),
				zap.Error(err))
			continue
		}

		if backup.RemoteKey != nil && s.remote != nil {
			if err := s.remote.Delete(ctx, *backup.RemoteKey); err != nil {
				s.logger.Warn("failed to remove expired remote artifact",
					zap.String("key", *backup.RemoteKey),
					zap.Error(err))
			}
		}

		ids = append(ids, backup.ID)
	}

	if len(ids) > 0 {
		if err := s.backupRepo.DeleteMany(ctx, ids); err != nil {
			return 0, fmt.Errorf("failed to delete expired backup records: %w", err)
		}
		metrics.RetentionDeletionsTotal.Add(float64(len(ids)))
		s.logger.Info("retention cleanup removed expired backups",
			zap.Int64("database_id", databaseID),
			zap.Int("removed", len(ids)))
	}

	return len(ids), nil
}

// CleanupAll runs retention for every database that has completed backups.
// A failing database is logged and skipped so one bad target cannot stall
// the others.
func (s *RetentionService) CleanupAll(ctx context.Context) (int, error) {
	if !s.policy.Enabled() {
		return 0, nil
	}

	databaseIDs, err := s.backupRepo.ListDatabaseIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list databases for retention: %w", err)
	}

	total := 0
	for _, id := range databaseIDs {
		removed, err := s.CleanupDatabase(ctx, id)
		if err != nil {
			s.logger.Warn("retention cleanup failed for database",
				zap.Int64("database_id", id),
				zap.Error(err))
			continue
		}
		total += removed
	}
	return total, nil
}
