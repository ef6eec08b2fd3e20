package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/adapter/localfs"
	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
	"github.com/martijn/pgvault/internal/crypto"
	"github.com/martijn/pgvault/internal/infrastructure/sqlite"
)

const testCredentialsKey = "test-credentials-key"

// testEnv holds all test dependencies. The pg tools point at binaries that
// do not exist, so any dump or restore that reaches the subprocess layer
// fails fast instead of touching a real server.
type testEnv struct {
	db           *sqlite.DB
	store        *localfs.Store
	router       *gin.Engine
	backupRepo   repository.BackupRepository
	restoreRepo  repository.RestoreRepository
	databaseRepo repository.DatabaseRepository
	databaseServ *service.DatabaseService
	backupServ   *service.BackupService
	restoreServ  *service.RestoreService
}

// setupTestEnv creates a test environment with an in-memory SQLite database
// and a temporary artifact directory.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	store, err := localfs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create artifact store: %v", err)
	}

	logger := zap.NewNop()
	backupRepo := sqlite.NewBackupRepository(db)
	restoreRepo := sqlite.NewRestoreRepository(db)
	databaseRepo := sqlite.NewDatabaseRepository(db)

	pgClient := pgtool.NewClient("/nonexistent/pg_dump", "/nonexistent/pg_restore", 1, logger)

	databaseServ := service.NewDatabaseService(databaseRepo, pgClient, testCredentialsKey)
	backupServ := service.NewBackupService(backupRepo, databaseRepo, databaseServ,
		pgClient, store, nil, nil, nil, service.BackupOptions{}, logger)
	restoreServ := service.NewRestoreService(restoreRepo, backupRepo, databaseRepo,
		databaseServ, pgClient, store, nil, nil, "", logger)

	backupHandler := NewBackupHandler(backupServ)
	restoreHandler := NewRestoreHandler(restoreServ)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Routes without auth middleware
	router.GET("/backups", backupHandler.ListBackups)
	router.GET("/backups/:id", backupHandler.GetBackup)
	router.POST("/restores", restoreHandler.CreateRestore)
	router.POST("/restores/authorize", restoreHandler.Authorize)
	router.GET("/restores", restoreHandler.ListRestores)
	router.GET("/restores/:id", restoreHandler.GetRestore)

	return &testEnv{
		db:           db,
		store:        store,
		router:       router,
		backupRepo:   backupRepo,
		restoreRepo:  restoreRepo,
		databaseRepo: databaseRepo,
		databaseServ: databaseServ,
		backupServ:   backupServ,
		restoreServ:  restoreServ,
	}
}

// cleanup closes the test database
func (env *testEnv) cleanup() {
	if env.db != nil {
		env.db.Close()
	}
}

// seedDatabase registers a database target with an encrypted password.
func (env *testEnv) seedDatabase(t *testing.T, name string, environment domain.Environment) *domain.Database {
	t.Helper()

	database := domain.NewDatabase(name, "localhost", 5432, name, "postgres", "", environment)
	if err := env.databaseServ.RegisterDatabase(context.Background(), database, "secret"); err != nil {
		t.Fatalf("failed to seed database %s: %v", name, err)
	}

	seeded, err := env.databaseRepo.FindByName(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to reload seeded database %s: %v", name, err)
	}
	return seeded
}

// seedBackup inserts a finalized backup record and, unless the status is
// failed, a matching artifact file in the store.
func (env *testEnv) seedBackup(t *testing.T, database *domain.Database, fileName string, status domain.BackupStatus, startTime time.Time, content []byte) *domain.Backup {
	t.Helper()

	backup := domain.NewBackup(database.ID, database.Name, fileName, crypto.IsEncryptedName(fileName), nil)
	backup.StartTime = startTime
	switch status {
	case domain.BackupStatusCompleted:
		backup.Complete(int64(len(content)))
	case domain.BackupStatusFailed:
		backup.Fail("seeded failure")
	}
	if backup.EndTime != nil {
		backup.EndTime = ptr(startTime.Add(time.Minute))
	}

	if err := env.backupRepo.Create(context.Background(), backup); err != nil {
		t.Fatalf("failed to seed backup %s: %v", fileName, err)
	}

	if status != domain.BackupStatusFailed {
		f, err := env.store.Create(fileName)
		if err != nil {
			t.Fatalf("failed to seed artifact %s: %v", fileName, err)
		}
		if _, err := f.Write(content); err != nil {
			t.Fatalf("failed to write artifact %s: %v", fileName, err)
		}
		f.Close()
	}

	return backup
}

// encryptedPayload encrypts content under the given passphrase in the
// artifact stream format.
func encryptedPayload(t *testing.T, content []byte, passphrase string) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := crypto.Encrypt(&buf, bytes.NewReader(content), passphrase); err != nil {
		t.Fatalf("failed to encrypt test payload: %v", err)
	}
	return buf.Bytes()
}

// doRequest performs a request against the test router and decodes the JSON
// response body into out when out is non-nil.
func (env *testEnv) doRequest(t *testing.T, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w
}

// decodeBody decodes a recorded JSON response body.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

// waitForTerminalRestore polls the restore until it reaches a terminal
// state or the timeout passes, asserting the status never regresses.
func (env *testEnv) waitForTerminalRestore(t *testing.T, id string, timeout time.Duration) *domain.Restore {
	t.Helper()

	seenRunning := false
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		restore, err := env.restoreRepo.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("failed to poll restore %s: %v", id, err)
		}

		switch restore.Status {
		case domain.RestoreStatusRunning:
			seenRunning = true
		case domain.RestoreStatusPending:
			if seenRunning {
				t.Fatalf("restore %s regressed from running to pending", id)
			}
		default:
			return restore
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("restore %s did not reach a terminal state within %s", id, timeout)
	return nil
}

// ptr is a helper to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}
