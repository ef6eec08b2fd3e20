// Package scheduler drives scheduled backups off cron expressions. It holds
// one cron entry per enabled schedule and is reconciled by the schedule
// service through the ScheduleNotifier interface.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
)

type Scheduler struct {
	cron         *cron.Cron
	scheduleRepo repository.ScheduleRepository
	scheduleServ *service.ScheduleService
	logger       *zap.Logger

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

func New(scheduleRepo repository.ScheduleRepository, scheduleServ *service.ScheduleService, logger *zap.Logger) *Scheduler {
	cronLogger := &cronLogAdapter{logger: logger.Named("cron")}

	return &Scheduler{
		// SkipIfStillRunning keeps one slow backup from stacking up runs
		// of the same schedule.
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		scheduleRepo: scheduleRepo,
		scheduleServ: scheduleServ,
		logger:       logger,
		entries:      make(map[int64]cron.EntryID),
	}
}

// Start registers every enabled schedule and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.scheduleRepo.FindAllEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := s.Reload(schedule); err != nil {
			s.logger.Error("failed to register schedule",
				zap.Int64("schedule_id", schedule.ID),
				zap.String("cron", schedule.CronExpr),
				zap.Error(err))
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("schedules", len(schedules)))
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish, up to the
// given timeout.
func (s *Scheduler) Stop(timeout time.Duration) {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		s.logger.Warn("scheduler stopped with jobs still running")
	}
}

// Reload registers a schedule's cron entry, replacing any previous one.
func (s *Scheduler) Reload(schedule *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[schedule.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, schedule.ID)
	}

	scheduleID := schedule.ID
	entryID, err := s.cron.AddFunc(schedule.CronExpr, func() {
		if err := s.scheduleServ.RunScheduled(context.Background(), scheduleID); err != nil {
			s.logger.Error("scheduled backup failed",
				zap.Int64("schedule_id", scheduleID),
				zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register cron entry: %w", err)
	}

	s.entries[schedule.ID] = entryID
	s.logger.Info("schedule registered",
		zap.Int64("schedule_id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("cron", schedule.CronExpr))
	return nil
}

// Remove drops a schedule's cron entry if it has one.
func (s *Scheduler) Remove(scheduleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
		s.logger.Info("schedule removed", zap.Int64("schedule_id", scheduleID))
	}
}

// NextRun reports when a schedule fires next, or nil when it is not
// registered.
func (s *Scheduler) NextRun(scheduleID int64) *time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[scheduleID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry := s.cron.Entry(entryID)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// cronLogAdapter exposes a zap logger through the cron.Logger interface.
type cronLogAdapter struct {
	logger *zap.Logger
}

func (a *cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Infow(msg, keysAndValues...)
}

func (a *cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
