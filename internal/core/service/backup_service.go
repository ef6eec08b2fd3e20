package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/adapter/localfs"
	"github.com/martijn/pgvault/internal/adapter/notify"
	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/adapter/storage"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/crypto"
	"github.com/martijn/pgvault/internal/metrics"
)

// BackupOptions carries the artifact settings shared by all runs.
type BackupOptions struct {
	Encrypt    bool
	Passphrase string
}

// RunParams selects the target and options for one backup run.
type RunParams struct {
	DatabaseID int64
	ScheduleID *int64
	Name       string // optional custom artifact base name
	LocalOnly  bool
}

type BackupService struct {
	backupRepo   repository.BackupRepository
	databaseRepo repository.DatabaseRepository
	databaseServ *DatabaseService
	pgClient     *pgtool.Client
	store        *localfs.Store
	remote       *storage.Client
	retention    *RetentionService
	mailer       *notify.Mailer
	opts         BackupOptions
	logger       *zap.Logger

	mu      sync.Mutex
	running map[int64]bool
}

// NewBackupService creates the backup executor. remote and mailer may be
// nil when uploads or alerting are disabled.
func NewBackupService(
	backupRepo repository.BackupRepository,
	databaseRepo repository.DatabaseRepository,
	databaseServ *DatabaseService,
	pgClient *pgtool.Client,
	store *localfs.Store,
	remote *storage.Client,
	retention *RetentionService,
	mailer *notify.Mailer,
	opts BackupOptions,
	logger *zap.Logger,
) *BackupService {
	return &BackupService{
		backupRepo:   backupRepo,
		databaseRepo: databaseRepo,
		databaseServ: databaseServ,
		pgClient:     pgClient,
		store:        store,
		remote:       remote,
		retention:    retention,
		mailer:       mailer,
		opts:         opts,
		logger:       logger,
		running:      make(map[int64]bool),
	}
}

// StartBackup registers the run and performs the dump in the background.
// The returned record is already persisted with status running.
func (s *BackupService) StartBackup(ctx context.Context, params RunParams) (*domain.Backup, error) {
	backup, connParams, err := s.begin(ctx, params)
	if err != nil {
		return nil, err
	}

	go func() {
		defer s.release(params.DatabaseID)
		_ = s.execute(context.Background(), backup, connParams, params.LocalOnly)
	}()

	return backup, nil
}

// RunBackup performs a backup synchronously and returns the final record.
func (s *BackupService) RunBackup(ctx context.Context, params RunParams) (*domain.Backup, error) {
	backup, connParams, err := s.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	defer s.release(params.DatabaseID)

	if err := s.execute(ctx, backup, connParams, params.LocalOnly); err != nil {
		return backup, err
	}
	return backup, nil
}

// begin resolves the target, claims its run slot, and persists the running
// record. The record exists before any dump I/O starts so a crash mid-dump
// leaves an inspectable row.
func (s *BackupService) begin(ctx context.Context, params RunParams) (*domain.Backup, pgtool.ConnectionParams, error) {
	database, err := s.databaseRepo.FindByID(ctx, params.DatabaseID)
	if err != nil {
		return nil, pgtool.ConnectionParams{}, NewServiceError(http.StatusNotFound, "database not found: %d", params.DatabaseID)
	}

	connParams, err := s.databaseServ.ConnectionParams(database)
	if err != nil {
		return nil, pgtool.ConnectionParams{}, err
	}

	if !s.tryAcquire(database.ID) {
		return nil, pgtool.ConnectionParams{}, NewServiceError(http.StatusConflict,
			"a backup is already running for database %s", database.Name)
	}

	fileName := domain.BackupFileName(database.Name, params.Name, time.Now())
	if s.opts.Encrypt {
		fileName += crypto.EncryptedSuffix
	}

	backup := domain.NewBackup(database.ID, database.Name, fileName, s.opts.Encrypt, params.ScheduleID)
	if err := s.backupRepo.Create(ctx, backup); err != nil {
		s.release(database.ID)
		return nil, pgtool.ConnectionParams{}, fmt.Errorf("failed to create backup record: %w", err)
	}

	return backup, connParams, nil
}

func (s *BackupService) execute(ctx context.Context, backup *domain.Backup, connParams pgtool.ConnectionParams, localOnly bool) error {
	start := time.Now()

	if err := s.writeArtifact(ctx, backup.FileName, connParams); err != nil {
		s.fail(backup, err)
		return err
	}

	size, err := s.store.Size(backup.FileName)
	if err != nil {
		s.fail(backup, err)
		return err
	}

	backup.Complete(size)
	if err := s.backupRepo.Update(ctx, backup); err != nil {
		return fmt.Errorf("failed to persist backup completion: %w", err)
	}

	metrics.BackupsTotal.WithLabelValues(string(domain.BackupStatusCompleted)).Inc()
	metrics.BackupDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("backup completed",
		zap.String("backup_id", backup.ID),
		zap.String("database", backup.DatabaseName),
		zap.String("file", backup.FileName),
		zap.Int64("size", size))

	if !localOnly && s.remote != nil {
		if err := s.uploadArtifact(ctx, backup); err != nil {
			// The backup itself succeeded; the artifact just stays local.
			s.logger.Warn("artifact upload failed, backup kept local only",
				zap.String("backup_id", backup.ID),
				zap.Error(err))
		}
	}

	if s.retention != nil {
		if _, err := s.retention.CleanupDatabase(ctx, backup.DatabaseID); err != nil {
			s.logger.Warn("post-backup retention cleanup failed",
				zap.Int64("database_id", backup.DatabaseID),
				zap.Error(err))
		}
	}

	return nil
}

// writeArtifact streams pg_dump output into the artifact file, through the
// encryption layer when enabled. The dump never touches disk unencrypted.
func (s *BackupService) writeArtifact(ctx context.Context, fileName string, connParams pgtool.ConnectionParams) error {
	f, err := s.store.Create(fileName)
	if err != nil {
		return err
	}

	err = s.dump(ctx, connParams, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close artifact file: %w", cerr)
	}
	if err != nil {
		_ = s.store.Remove(fileName)
		return err
	}
	return nil
}

func (s *BackupService) dump(ctx context.Context, connParams pgtool.ConnectionParams, w io.Writer) error {
	if !s.opts.Encrypt {
		return s.pgClient.Dump(ctx, connParams, w)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.pgClient.Dump(ctx, connParams, pw))
	}()

	if err := crypto.Encrypt(w, pr, s.opts.Passphrase); err != nil {
		pr.CloseWithError(err)
		return err
	}
	return nil
}

// uploadArtifact pushes a completed artifact to remote storage and persists
// the resulting object key.
func (s *BackupService) uploadArtifact(ctx context.Context, backup *domain.Backup) error {
	f, err := s.store.Open(backup.FileName)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := s.store.Size(backup.FileName)
	if err != nil {
		return err
	}

	key, err := s.remote.Put(ctx, backup.FileName, f, size)
	if err != nil {
		return err
	}

	backup.SetRemoteKey(key)
	if err := s.backupRepo.Update(ctx, backup); err != nil {
		return fmt.Errorf("failed to persist remote key: %w", err)
	}

	s.logger.Info("artifact uploaded",
		zap.String("backup_id", backup.ID),
		zap.String("key", key))
	return nil
}

// fail marks the run failed. Persistence uses a fresh context so the
// failure is recorded even when the run's context is already canceled.
func (s *BackupService) fail(backup *domain.Backup, cause error) {
	backup.Fail(cause.Error())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.backupRepo.Update(ctx, backup); err != nil {
		s.logger.Error("failed to persist backup failure",
			zap.String("backup_id", backup.ID),
			zap.Error(err))
	}

	metrics.BackupsTotal.WithLabelValues(string(domain.BackupStatusFailed)).Inc()
	s.logger.Error("backup failed",
		zap.String("backup_id", backup.ID),
		zap.String("database", backup.DatabaseName),
		zap.Error(cause))

	s.sendAlert(
		fmt.Sprintf("pgvault: backup failed for %s", backup.DatabaseName),
		fmt.Sprintf("Backup %s for database %s failed at %s.\n\nError: %s\n",
			backup.ID, backup.DatabaseName, time.Now().Format(time.RFC3339), cause))
}

func (s *BackupService) sendAlert(subject, body string) {
	if s.mailer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.mailer.Send(ctx, subject, body); err != nil {
		s.logger.Warn("failed to send alert email", zap.Error(err))
	}
}

// GetBackup retrieves a backup by ID
func (s *BackupService) GetBackup(ctx context.Context, id string) (*domain.Backup, error) {
	return s.backupRepo.FindByID(ctx, id)
}

// ListBackups lists backups with filtering
func (s *BackupService) ListBackups(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	return s.backupRepo.List(ctx, filter)
}

// CountBackups counts backups with filtering
func (s *BackupService) CountBackups(ctx context.Context, filter repository.BackupFilter) (int, error) {
	return s.backupRepo.Count(ctx, filter)
}

// DeleteBackup removes the record, the local artifact, and the remote copy
// when one exists.
func (s *BackupService) DeleteBackup(ctx context.Context, id string) error {
	backup, err := s.backupRepo.FindByID(ctx, id)
	if err != nil {
		return NewServiceError(http.StatusNotFound, "backup not found: %s", id)
	}
	if backup.Status == domain.BackupStatusRunning {
		return NewServiceError(http.StatusConflict, "backup is still running: %s", id)
	}

	if err := s.store.Remove(backup.FileName); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	if backup.RemoteKey != nil && s.remote != nil {
		if err := s.remote.Delete(ctx, *backup.RemoteKey); err != nil {
			s.logger.Warn("failed to delete remote artifact",
				zap.String("key", *backup.RemoteKey),
				zap.Error(err))
		}
	}

	return s.backupRepo.Delete(ctx, id)
}

// UploadBackup pushes a completed local artifact to remote storage, for
// artifacts created with local_only or whose original upload failed.
func (s *BackupService) UploadBackup(ctx context.Context, id string) (*domain.Backup, error) {
	if s.remote == nil {
		return nil, NewServiceError(http.StatusBadRequest, "remote storage is not configured")
	}

	backup, err := s.backupRepo.FindByID(ctx, id)
	if err != nil {
		return nil, NewServiceError(http.StatusNotFound, "backup not found: %s", id)
	}
	if backup.Status != domain.BackupStatusCompleted {
		return nil, NewServiceError(http.StatusConflict, "backup is not completed: %s", id)
	}

	if err := s.uploadArtifact(ctx, backup); err != nil {
		return nil, err
	}
	return backup, nil
}

// ArtifactPath resolves a backup to its on-disk artifact for downloads.
func (s *BackupService) ArtifactPath(ctx context.Context, id string) (*domain.Backup, string, error) {
	backup, err := s.backupRepo.FindByID(ctx, id)
	if err != nil {
		return nil, "", NewServiceError(http.StatusNotFound, "backup not found: %s", id)
	}
	if !s.store.Exists(backup.FileName) {
		return nil, "", NewServiceError(http.StatusNotFound, "artifact file missing: %s", backup.FileName)
	}

	path, err := s.store.Path(backup.FileName)
	if err != nil {
		return nil, "", err
	}
	return backup, path, nil
}

// ListRemoteObjects lists everything under the configured remote prefix.
func (s *BackupService) ListRemoteObjects(ctx context.Context) ([]storage.ObjectInfo, error) {
	if s.remote == nil {
		return nil, NewServiceError(http.StatusBadRequest, "remote storage is not configured")
	}
	return s.remote.List(ctx)
}

func (s *BackupService) tryAcquire(databaseID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[databaseID] {
		return false
	}
	s.running[databaseID] = true
	return true
}

func (s *BackupService) release(databaseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, databaseID)
}
