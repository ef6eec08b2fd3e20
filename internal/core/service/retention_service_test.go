package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/adapter/localfs"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/infrastructure/sqlite"
)

func backupAt(t *testing.T, startTime time.Time) *domain.Backup {
	t.Helper()
	backup := domain.NewBackup(1, "db", domain.BackupFileName("db", "", startTime), false, nil)
	backup.StartTime = startTime
	backup.Complete(100)
	return backup
}

func idSet(backups []*domain.Backup) map[string]bool {
	ids := make(map[string]bool, len(backups))
	for _, b := range backups {
		ids[b.ID] = true
	}
	return ids
}

func TestPlanDailyKeepsNewestDays(t *testing.T) {
	base := time.Date(2025, 11, 1, 3, 0, 0, 0, time.UTC)

	// Five consecutive daily backups; keep_daily=3 keeps exactly the three
	// most recent days.
	var backups []*domain.Backup
	for day := 0; day < 5; day++ {
		backups = append(backups, backupAt(t, base.AddDate(0, 0, day)))
	}

	keep, expire := Plan(backups, Policy{KeepDaily: 3})

	if len(keep) != 3 || len(expire) != 2 {
		t.Fatalf("expected 3 kept and 2 expired, got %d and %d", len(keep), len(expire))
	}

	kept := idSet(keep)
	for _, b := range backups[2:] {
		if !kept[b.ID] {
			t.Errorf("expected backup on %s to be kept", b.StartTime.Format("2006-01-02"))
		}
	}
	for _, b := range backups[:2] {
		if kept[b.ID] {
			t.Errorf("expected backup on %s to expire", b.StartTime.Format("2006-01-02"))
		}
	}
}

func TestPlanKeepsNewestPerBucket(t *testing.T) {
	base := time.Date(2025, 11, 3, 2, 0, 0, 0, time.UTC)

	// Two backups on the same day: only the newer one represents the day.
	older := backupAt(t, base)
	newer := backupAt(t, base.Add(6*time.Hour))

	keep, expire := Plan([]*domain.Backup{older, newer}, Policy{KeepDaily: 1})

	if len(keep) != 1 || keep[0].ID != newer.ID {
		t.Fatalf("expected only the newer backup kept, got %d kept", len(keep))
	}
	if len(expire) != 1 || expire[0].ID != older.ID {
		t.Fatalf("expected the older backup expired")
	}
}

func TestPlanWeeklyAndMonthlyTiers(t *testing.T) {
	// Mondays across several ISO weeks and months.
	var backups []*domain.Backup
	for week := 0; week < 6; week++ {
		startTime := time.Date(2025, 9, 1, 4, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week)
		backups = append(backups, backupAt(t, startTime))
	}

	keep, _ := Plan(backups, Policy{KeepWeekly: 2})
	if len(keep) != 2 {
		t.Fatalf("expected 2 weekly keeps, got %d", len(keep))
	}
	kept := idSet(keep)
	if !kept[backups[5].ID] || !kept[backups[4].ID] {
		t.Error("expected the two most recent weeks to be kept")
	}

	keep, _ = Plan(backups, Policy{KeepMonthly: 1})
	// Backups span September and October; one monthly keep retains only
	// the newest backup of the newest month.
	if len(keep) != 1 || keep[0].ID != backups[5].ID {
		t.Fatalf("expected only the newest month's newest backup, got %d kept", len(keep))
	}
}

func TestPlanTiersUnion(t *testing.T) {
	base := time.Date(2025, 11, 10, 1, 0, 0, 0, time.UTC)

	var backups []*domain.Backup
	for day := 0; day < 30; day++ {
		backups = append(backups, backupAt(t, base.AddDate(0, 0, -day)))
	}

	keep, _ := Plan(backups, Policy{KeepDaily: 3, KeepWeekly: 2, KeepMonthly: 1})

	kept := idSet(keep)
	// The newest backup is the newest of its day, its week, and its month;
	// the union must not double count it.
	if !kept[backups[0].ID] {
		t.Error("expected the newest backup to be kept")
	}
	if len(keep) > 6 {
		t.Errorf("union kept more than the sum of the tiers: %d", len(keep))
	}
}

func TestPlanIdempotent(t *testing.T) {
	base := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)

	var backups []*domain.Backup
	for day := 0; day < 10; day++ {
		backups = append(backups, backupAt(t, base.AddDate(0, 0, day)))
	}

	policy := Policy{KeepDaily: 4, KeepWeekly: 1}
	keep1, _ := Plan(backups, policy)
	keep2, expire2 := Plan(keep1, policy)

	if len(expire2) != 0 {
		t.Fatalf("second pass expired %d backups, want 0", len(expire2))
	}
	if len(keep2) != len(keep1) {
		t.Fatalf("keep-set changed between passes: %d then %d", len(keep1), len(keep2))
	}
	first, second := idSet(keep1), idSet(keep2)
	for id := range first {
		if !second[id] {
			t.Fatalf("backup %s dropped out of the keep-set on the second pass", id)
		}
	}
}

func TestPlanDisabledPolicyKeepsNothing(t *testing.T) {
	backups := []*domain.Backup{backupAt(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))}

	keep, expire := Plan(backups, Policy{})
	if len(keep) != 0 || len(expire) != 1 {
		t.Fatalf("zero policy should keep nothing, got %d kept", len(keep))
	}
	if (Policy{}).Enabled() {
		t.Error("zero policy must report disabled")
	}
}

func TestCleanupDatabaseRemovesExpiredArtifacts(t *testing.T) {
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer db.Close()

	store, err := localfs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create artifact store: %v", err)
	}

	backupRepo := sqlite.NewBackupRepository(db)
	svc := NewRetentionService(backupRepo, store, nil, Policy{KeepDaily: 2}, zap.NewNop())

	base := time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for day := 0; day < 5; day++ {
		backup := backupAt(t, base.AddDate(0, 0, day))
		if err := backupRepo.Create(ctx, backup); err != nil {
			t.Fatalf("failed to seed backup: %v", err)
		}
		f, err := store.Create(backup.FileName)
		if err != nil {
			t.Fatalf("failed to seed artifact: %v", err)
		}
		f.Close()
	}

	removed, err := svc.CleanupDatabase(ctx, 1)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	remaining, err := backupRepo.FindCompletedByDatabase(ctx, 1)
	if err != nil {
		t.Fatalf("failed to list remaining backups: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining records, got %d", len(remaining))
	}
	for _, b := range remaining {
		if !store.Exists(b.FileName) {
			t.Errorf("kept backup %s lost its artifact", b.FileName)
		}
	}

	names, err := store.ListNames()
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 artifact files left, got %d", len(names))
	}

	// A second pass with no new backups removes nothing.
	removed, err = svc.CleanupDatabase(ctx, 1)
	if err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("second pass removed %d backups, want 0", removed)
	}
}
