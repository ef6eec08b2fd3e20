package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
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

// RestoreRequest describes a submitted restore. Exactly one of BackupID and
// RemoteKey selects the source artifact; exactly one of TargetDatabaseID and
// Target selects the destination.
type RestoreRequest struct {
	BackupID          *string
	RemoteKey         *string
	SourceEnvironment string // declared source environment for raw remote keys
	TargetDatabaseID  *int64
	Target            *pgtool.ConnectionParams // inline credentials, never persisted
	TargetEnvironment string                   // required with inline credentials
	Passphrase        string                   // decryption passphrase override
	Confirmed         bool
}

// resolvedRestore is a request with every reference chased down: source
// environment, target connection, artifact location, and decryption
// material.
type resolvedRestore struct {
	source     domain.Environment
	target     domain.Environment
	mode       domain.CredentialMode
	connParams pgtool.ConnectionParams
	artifact   string // local file name, or remote object key
	fromRemote bool
	encrypted  bool
	passphrase string
	summary    string
	backupID   *string
	remoteKey  *string
	targetDBID *int64
}

type RestoreService struct {
	restoreRepo  repository.RestoreRepository
	backupRepo   repository.BackupRepository
	databaseRepo repository.DatabaseRepository
	databaseServ *DatabaseService
	pgClient     *pgtool.Client
	store        *localfs.Store
	remote       *storage.Client
	mailer       *notify.Mailer
	passphrase   string // default decryption passphrase
	logger       *zap.Logger
}

// NewRestoreService creates the restore orchestrator. remote and mailer may
// be nil when uploads or alerting are disabled.
func NewRestoreService(
	restoreRepo repository.RestoreRepository,
	backupRepo repository.BackupRepository,
	databaseRepo repository.DatabaseRepository,
	databaseServ *DatabaseService,
	pgClient *pgtool.Client,
	store *localfs.Store,
	remote *storage.Client,
	mailer *notify.Mailer,
	passphrase string,
	logger *zap.Logger,
) *RestoreService {
	return &RestoreService{
		restoreRepo:  restoreRepo,
		backupRepo:   backupRepo,
		databaseRepo: databaseRepo,
		databaseServ: databaseServ,
		pgClient:     pgClient,
		store:        store,
		remote:       remote,
		mailer:       mailer,
		passphrase:   passphrase,
		logger:       logger,
	}
}

// Preview evaluates the environment policy for a request without starting
// anything.
func (s *RestoreService) Preview(ctx context.Context, req RestoreRequest) (domain.RestoreDecision, error) {
	resolved, err := s.resolve(ctx, req)
	if err != nil {
		return domain.RestoreDecision{}, err
	}
	return domain.AuthorizeRestore(resolved.source, resolved.target, req.Confirmed), nil
}

// Submit authorizes the request and, when allowed, registers the job and
// starts the worker. The job record is persisted before Submit returns, so
// the caller can poll it immediately. A decision other than allowed is
// returned with a nil job and a nil error; refusal is an outcome, not a
// failure.
func (s *RestoreService) Submit(ctx context.Context, req RestoreRequest) (*domain.Restore, domain.RestoreDecision, error) {
	resolved, err := s.resolve(ctx, req)
	if err != nil {
		return nil, domain.RestoreDecision{}, err
	}

	decision := domain.AuthorizeRestore(resolved.source, resolved.target, req.Confirmed)
	if decision.Outcome != domain.OutcomeAllowed {
		if decision.Outcome == domain.OutcomeBlocked {
			metrics.RestoresBlockedTotal.Inc()
		}
		return nil, decision, nil
	}
	if !decision.Permits(resolved.mode) {
		return nil, decision, NewServiceError(http.StatusForbidden,
			"restores into production require manually entered credentials")
	}

	restore := domain.NewRestore(resolved.source, resolved.target, resolved.summary)
	restore.BackupID = resolved.backupID
	restore.RemoteKey = resolved.remoteKey
	restore.TargetDatabaseID = resolved.targetDBID

	if err := s.restoreRepo.Create(ctx, restore); err != nil {
		return nil, decision, fmt.Errorf("failed to create restore record: %w", err)
	}

	go s.execute(restore, resolved, req.Confirmed)

	return restore, decision, nil
}

// GetRestore retrieves a restore job by ID
func (s *RestoreService) GetRestore(ctx context.Context, id string) (*domain.Restore, error) {
	return s.restoreRepo.FindByID(ctx, id)
}

// ListRestores lists restore jobs with filtering
func (s *RestoreService) ListRestores(ctx context.Context, filter repository.RestoreFilter) ([]*domain.Restore, error) {
	return s.restoreRepo.List(ctx, filter)
}

// CountRestores counts restore jobs with filtering
func (s *RestoreService) CountRestores(ctx context.Context, filter repository.RestoreFilter) (int, error) {
	return s.restoreRepo.Count(ctx, filter)
}

func (s *RestoreService) resolve(ctx context.Context, req RestoreRequest) (*resolvedRestore, error) {
	if (req.BackupID == nil) == (req.RemoteKey == nil) {
		return nil, NewServiceError(http.StatusBadRequest,
			"exactly one of backup_id and remote_key must be set")
	}
	if (req.TargetDatabaseID == nil) == (req.Target == nil) {
		return nil, NewServiceError(http.StatusBadRequest,
			"exactly one of target_database_id and target must be set")
	}

	resolved := &resolvedRestore{}

	if req.BackupID != nil {
		backup, err := s.backupRepo.FindByID(ctx, *req.BackupID)
		if err != nil {
			return nil, NewServiceError(http.StatusNotFound, "backup not found: %s", *req.BackupID)
		}
		if backup.Status != domain.BackupStatusCompleted {
			return nil, NewServiceError(http.StatusConflict, "backup is not completed: %s", backup.ID)
		}

		resolved.backupID = &backup.ID
		resolved.encrypted = backup.Encrypted

		// The source environment comes from the backup's database record.
		// When that database has since been deregistered the source is
		// unknown, which still forces confirmation for production targets.
		resolved.source = domain.EnvironmentUnknown
		if sourceDB, err := s.databaseRepo.FindByID(ctx, backup.DatabaseID); err == nil {
			resolved.source = sourceDB.Environment
		}

		if s.store.Exists(backup.FileName) {
			resolved.artifact = backup.FileName
		} else if backup.RemoteKey != nil {
			resolved.artifact = *backup.RemoteKey
			resolved.fromRemote = true
		} else {
			return nil, NewServiceError(http.StatusNotFound,
				"artifact not available locally or remotely: %s", backup.FileName)
		}
	} else {
		resolved.remoteKey = req.RemoteKey
		resolved.artifact = *req.RemoteKey
		resolved.fromRemote = true
		resolved.encrypted = crypto.IsEncryptedName(*req.RemoteKey)
		resolved.source = domain.ParseEnvironment(req.SourceEnvironment)
	}

	if req.TargetDatabaseID != nil {
		targetDB, err := s.databaseRepo.FindByID(ctx, *req.TargetDatabaseID)
		if err != nil {
			return nil, NewServiceError(http.StatusNotFound, "target database not found: %d", *req.TargetDatabaseID)
		}
		connParams, err := s.databaseServ.ConnectionParams(targetDB)
		if err != nil {
			return nil, err
		}
		resolved.targetDBID = &targetDB.ID
		resolved.connParams = connParams
		resolved.target = targetDB.Environment
		resolved.mode = domain.CredentialModeStored
	} else {
		if req.TargetEnvironment == "" {
			return nil, NewServiceError(http.StatusBadRequest,
				"target_environment is required with inline credentials")
		}
		resolved.connParams = *req.Target
		resolved.target = domain.ParseEnvironment(req.TargetEnvironment)
		resolved.mode = domain.CredentialModeManual
	}
	resolved.summary = fmt.Sprintf("%s:%d/%s",
		resolved.connParams.Host, resolved.connParams.Port, resolved.connParams.DBName)

	if resolved.encrypted {
		resolved.passphrase = req.Passphrase
		if resolved.passphrase == "" {
			resolved.passphrase = s.passphrase
		}
		if resolved.passphrase == "" {
			return nil, NewServiceError(http.StatusBadRequest,
				"artifact is encrypted and no passphrase is available")
		}
	}

	return resolved, nil
}

func (s *RestoreService) execute(restore *domain.Restore, resolved *resolvedRestore, confirmed bool) {
	ctx := context.Background()

	// The policy is re-evaluated at execution time, so a job accepted under
	// one decision can never run under a worse one.
	decision := domain.AuthorizeRestore(resolved.source, resolved.target, confirmed)
	if decision.Outcome != domain.OutcomeAllowed || !decision.Permits(resolved.mode) {
		metrics.RestoresBlockedTotal.Inc()
		s.fail(restore, fmt.Errorf("restore blocked by environment policy: %s", decision.Reason))
		return
	}

	restore.Start()
	if err := s.restoreRepo.Update(ctx, restore); err != nil {
		s.logger.Error("failed to mark restore running",
			zap.String("restore_id", restore.ID),
			zap.Error(err))
		return
	}

	s.logger.Info("restore started",
		zap.String("restore_id", restore.ID),
		zap.String("artifact", resolved.artifact),
		zap.String("target", resolved.summary),
		zap.String("source_environment", string(resolved.source)),
		zap.String("target_environment", string(resolved.target)))

	if err := s.apply(ctx, resolved); err != nil {
		s.fail(restore, err)
		return
	}

	restore.Complete()
	if err := s.restoreRepo.Update(ctx, restore); err != nil {
		s.logger.Error("failed to persist restore completion",
			zap.String("restore_id", restore.ID),
			zap.Error(err))
		return
	}

	metrics.RestoresTotal.WithLabelValues(string(domain.RestoreStatusCompleted)).Inc()
	s.logger.Info("restore completed",
		zap.String("restore_id", restore.ID),
		zap.String("target", resolved.summary))
}

// apply streams the artifact into pg_restore, decrypting on the way when
// needed. The plaintext only ever exists in the pipe between the decryptor
// and pg_restore's stdin.
func (s *RestoreService) apply(ctx context.Context, resolved *resolvedRestore) error {
	src, err := s.openArtifact(ctx, resolved)
	if err != nil {
		return err
	}
	defer src.Close()

	if !resolved.encrypted {
		return s.pgClient.Restore(ctx, resolved.connParams, src)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		derr := crypto.Decrypt(pw, src, resolved.passphrase)
		pw.CloseWithError(derr)
		done <- derr
	}()

	restoreErr := s.pgClient.Restore(ctx, resolved.connParams, pr)
	pr.Close()
	decErr := <-done

	// A decryption failure explains whatever pg_restore saw on its stdin,
	// so it takes precedence over the tool's own complaint.
	if decErr != nil && errors.Is(decErr, crypto.ErrAuthentication) {
		return decErr
	}
	if restoreErr != nil {
		return restoreErr
	}
	// pg_restore may exit successfully without draining its stdin; the
	// resulting closed-pipe write error is not a decryption failure.
	if decErr != nil && !errors.Is(decErr, io.ErrClosedPipe) {
		return decErr
	}
	return nil
}

func (s *RestoreService) openArtifact(ctx context.Context, resolved *resolvedRestore) (io.ReadCloser, error) {
	if resolved.fromRemote {
		if s.remote == nil {
			return nil, NewServiceError(http.StatusBadRequest, "remote storage is not configured")
		}
		return s.remote.Get(ctx, resolved.artifact)
	}
	return s.store.Open(resolved.artifact)
}

// fail marks the job failed. Persistence uses a fresh context so the
// failure survives even when the worker's context is gone.
func (s *RestoreService) fail(restore *domain.Restore, cause error) {
	restore.Fail(cause.Error())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.restoreRepo.Update(ctx, restore); err != nil {
		s.logger.Error("failed to persist restore failure",
			zap.String("restore_id", restore.ID),
			zap.Error(err))
	}

	metrics.RestoresTotal.WithLabelValues(string(domain.RestoreStatusFailed)).Inc()
	s.logger.Error("restore failed",
		zap.String("restore_id", restore.ID),
		zap.String("target", restore.TargetSummary),
		zap.Error(cause))

	s.sendAlert(
		fmt.Sprintf("pgvault: restore failed for %s", restore.TargetSummary),
		fmt.Sprintf("Restore %s into %s failed at %s.\n\nError: %s\n",
			restore.ID, restore.TargetSummary, time.Now().Format(time.RFC3339), cause))
}

func (s *RestoreService) sendAlert(subject, body string) {
	if s.mailer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.mailer.Send(ctx, subject, body); err != nil {
		s.logger.Warn("failed to send alert email", zap.Error(err))
	}
}
