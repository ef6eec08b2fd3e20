package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/metrics"
)

// ScheduleNotifier is how the service tells the running scheduler about
// schedule changes. It is wired after construction because the scheduler
// needs the services to exist first; a nil notifier means no scheduler is
// running in this process.
type ScheduleNotifier interface {
	Reload(schedule *domain.Schedule) error
	Remove(scheduleID int64)
	NextRun(scheduleID int64) *time.Time
}

type ScheduleService struct {
	scheduleRepo repository.ScheduleRepository
	databaseRepo repository.DatabaseRepository
	backupServ   *BackupService
	notifier     ScheduleNotifier
}

func NewScheduleService(
	scheduleRepo repository.ScheduleRepository,
	databaseRepo repository.DatabaseRepository,
	backupServ *BackupService,
) *ScheduleService {
	return &ScheduleService{
		scheduleRepo: scheduleRepo,
		databaseRepo: databaseRepo,
		backupServ:   backupServ,
	}
}

func (s *ScheduleService) SetNotifier(notifier ScheduleNotifier) {
	s.notifier = notifier
}

// ValidateCron rejects expressions the scheduler would not accept.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return NewServiceError(http.StatusBadRequest, "invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// CreateSchedule validates and stores a schedule and registers it with the
// running scheduler.
func (s *ScheduleService) CreateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	if err := ValidateCron(schedule.CronExpr); err != nil {
		return err
	}
	if _, err := s.databaseRepo.FindByID(ctx, schedule.DatabaseID); err != nil {
		return NewServiceError(http.StatusNotFound, "database not found: %d", schedule.DatabaseID)
	}

	if err := s.scheduleRepo.Create(ctx, schedule); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	if s.notifier != nil && schedule.Enabled {
		if err := s.notifier.Reload(schedule); err != nil {
			// Roll back so the stored state matches the scheduler.
			_ = s.scheduleRepo.Delete(ctx, schedule.ID)
			return fmt.Errorf("failed to register schedule: %w", err)
		}
	}

	return nil
}

// UpdateSchedule validates and persists changes, then re-registers or
// removes the cron entry to match.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	if err := ValidateCron(schedule.CronExpr); err != nil {
		return err
	}

	schedule.UpdatedAt = time.Now()
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	return s.syncNotifier(schedule)
}

// DeleteSchedule deletes a schedule and drops its cron entry.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, id int64) error {
	if err := s.scheduleRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if s.notifier != nil {
		s.notifier.Remove(id)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *ScheduleService) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.scheduleRepo.FindByID(ctx, id)
}

// ListSchedules lists all schedules
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	return s.scheduleRepo.List(ctx)
}

// PauseSchedule disables a schedule without deleting it.
func (s *ScheduleService) PauseSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.setEnabled(ctx, id, false)
}

// ResumeSchedule re-enables a paused schedule.
func (s *ScheduleService) ResumeSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.setEnabled(ctx, id, true)
}

func (s *ScheduleService) setEnabled(ctx context.Context, id int64, enabled bool) (*domain.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, NewServiceError(http.StatusNotFound, "schedule not found: %d", id)
	}

	schedule.Enabled = enabled
	schedule.UpdatedAt = time.Now()
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	if err := s.syncNotifier(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) syncNotifier(schedule *domain.Schedule) error {
	if s.notifier == nil {
		return nil
	}
	if !schedule.Enabled {
		s.notifier.Remove(schedule.ID)
		return nil
	}
	if err := s.notifier.Reload(schedule); err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}
	return nil
}

// RunNow starts the schedule's backup immediately in the background and
// records the run time.
func (s *ScheduleService) RunNow(ctx context.Context, id int64) (*domain.Backup, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, NewServiceError(http.StatusNotFound, "schedule not found: %d", id)
	}

	backup, err := s.backupServ.StartBackup(ctx, RunParams{
		DatabaseID: schedule.DatabaseID,
		ScheduleID: &schedule.ID,
		LocalOnly:  schedule.LocalOnly,
	})
	if err != nil {
		return nil, err
	}

	schedule.MarkRun(time.Now())
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return backup, fmt.Errorf("failed to record run time: %w", err)
	}
	return backup, nil
}

// RunScheduled executes one scheduled backup synchronously. The scheduler
// calls this from its job goroutine; overlap protection lives there.
func (s *ScheduleService) RunScheduled(ctx context.Context, scheduleID int64) error {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("schedule not found: %w", err)
	}
	// Disabled since registration; the entry is stale and does nothing.
	if !schedule.Enabled {
		return nil
	}

	schedule.MarkRun(time.Now())
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return fmt.Errorf("failed to record run time: %w", err)
	}

	metrics.ScheduledRunsTotal.Inc()
	_, err = s.backupServ.RunBackup(ctx, RunParams{
		DatabaseID: schedule.DatabaseID,
		ScheduleID: &schedule.ID,
		LocalOnly:  schedule.LocalOnly,
	})
	return err
}

// NextRun reports when the schedule will fire next, when a scheduler is
// running and the schedule is registered.
func (s *ScheduleService) NextRun(id int64) *time.Time {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.NextRun(id)
}
