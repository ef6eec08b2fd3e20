package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/core/domain"
)

func manualTarget() *dto.TargetConnection {
	return &dto.TargetConnection{
		Host:     "db.example.internal",
		Port:     5432,
		DBName:   "restored",
		Username: "postgres",
		Password: "secret",
	}
}

func TestAuthorizeRestore(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	devDB := env.seedDatabase(t, "db-dev-1", domain.EnvironmentDev)
	base := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	prodBackup := env.seedBackup(t, prodDB, "prod_20251101_100000.dump",
		domain.BackupStatusCompleted, base, []byte("dump"))
	devBackup := env.seedBackup(t, devDB, "dev_20251101_100000.dump",
		domain.BackupStatusCompleted, base, []byte("dump"))

	tests := []struct {
		name            string
		request         dto.CreateRestoreRequest
		expectedOutcome string
		expectedModes   []string
	}{
		{
			name: "dev backup into prod is blocked regardless of confirmation",
			request: dto.CreateRestoreRequest{
				BackupID:         &devBackup.ID,
				TargetDatabaseID: &prodDB.ID,
				Confirmed:        true,
			},
			expectedOutcome: "blocked",
		},
		{
			name: "prod backup into dev is allowed with stored credentials and no confirmation",
			request: dto.CreateRestoreRequest{
				BackupID:         &prodBackup.ID,
				TargetDatabaseID: &devDB.ID,
			},
			expectedOutcome: "allowed",
			expectedModes:   []string{"stored", "manual"},
		},
		{
			name: "prod backup into prod unconfirmed requires confirmation",
			request: dto.CreateRestoreRequest{
				BackupID:         &prodBackup.ID,
				TargetDatabaseID: &prodDB.ID,
			},
			expectedOutcome: "confirmation_required",
			expectedModes:   []string{"manual"},
		},
		{
			name: "prod backup into prod confirmed is manual-only",
			request: dto.CreateRestoreRequest{
				BackupID:         &prodBackup.ID,
				TargetDatabaseID: &prodDB.ID,
				Confirmed:        true,
			},
			expectedOutcome: "allowed",
			expectedModes:   []string{"manual"},
		},
		{
			name: "remote key with unknown source into dev inline target is allowed",
			request: dto.CreateRestoreRequest{
				RemoteKey:         ptr("pg/dump_20251101.dump"),
				Target:            manualTarget(),
				TargetEnvironment: "dev",
			},
			expectedOutcome: "allowed",
			expectedModes:   []string{"stored", "manual"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decision dto.RestoreDecisionResponse
			w := env.doRequest(t, http.MethodPost, "/restores/authorize", tt.request, &decision)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}

			if decision.Outcome != tt.expectedOutcome {
				t.Errorf("expected outcome %s, got %s", tt.expectedOutcome, decision.Outcome)
			}
			if len(decision.CredentialModes) != len(tt.expectedModes) {
				t.Fatalf("expected credential modes %v, got %v", tt.expectedModes, decision.CredentialModes)
			}
			for i, mode := range tt.expectedModes {
				if decision.CredentialModes[i] != mode {
					t.Errorf("expected credential modes %v, got %v", tt.expectedModes, decision.CredentialModes)
					break
				}
			}
		})
	}
}

func TestAuthorizeUnknownSourceAfterDatabaseRemoval(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	goneDB := env.seedDatabase(t, "db-gone", domain.EnvironmentDev)
	backup := env.seedBackup(t, goneDB, "gone_20251101_100000.dump",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), []byte("dump"))

	// Deregistering the source database turns the backup's source
	// environment unknown; unknown into prod still needs confirmation but
	// is not blocked.
	if err := env.databaseRepo.Delete(context.Background(), goneDB.ID); err != nil {
		t.Fatalf("failed to delete database: %v", err)
	}

	var decision dto.RestoreDecisionResponse
	w := env.doRequest(t, http.MethodPost, "/restores/authorize", dto.CreateRestoreRequest{
		BackupID:         &backup.ID,
		TargetDatabaseID: &prodDB.ID,
	}, &decision)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if decision.Outcome != "confirmation_required" {
		t.Errorf("expected confirmation_required, got %s", decision.Outcome)
	}

	w = env.doRequest(t, http.MethodPost, "/restores/authorize", dto.CreateRestoreRequest{
		BackupID:         &backup.ID,
		TargetDatabaseID: &prodDB.ID,
		Confirmed:        true,
	}, &decision)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if decision.Outcome != "allowed" {
		t.Errorf("expected allowed, got %s", decision.Outcome)
	}
	if len(decision.CredentialModes) != 1 || decision.CredentialModes[0] != "manual" {
		t.Errorf("expected manual-only credential modes, got %v", decision.CredentialModes)
	}
}

func TestCreateRestoreBlocked(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	devDB := env.seedDatabase(t, "db-dev-1", domain.EnvironmentDev)
	devBackup := env.seedBackup(t, devDB, "dev_20251101_100000.dump",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), []byte("dump"))

	var decision dto.RestoreDecisionResponse
	w := env.doRequest(t, http.MethodPost, "/restores", dto.CreateRestoreRequest{
		BackupID:         &devBackup.ID,
		TargetDatabaseID: &prodDB.ID,
		Confirmed:        true,
	}, &decision)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
	if decision.Outcome != "blocked" {
		t.Errorf("expected blocked, got %s", decision.Outcome)
	}

	// No job record may exist for a blocked restore.
	var list dto.RestoreListResponse
	w = env.doRequest(t, http.MethodGet, "/restores", nil, &list)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if list.Pagination.Total != 0 {
		t.Errorf("expected no restore records, got %d", list.Pagination.Total)
	}
}

func TestCreateRestoreConfirmationRequired(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	prodBackup := env.seedBackup(t, prodDB, "prod_20251101_100000.dump",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), []byte("dump"))

	var decision dto.RestoreDecisionResponse
	w := env.doRequest(t, http.MethodPost, "/restores", dto.CreateRestoreRequest{
		BackupID:          &prodBackup.ID,
		Target:            manualTarget(),
		TargetEnvironment: "prod",
	}, &decision)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	if decision.Outcome != "confirmation_required" {
		t.Errorf("expected confirmation_required, got %s", decision.Outcome)
	}
}

func TestCreateRestoreStoredCredentialsIntoProdRejected(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	prodBackup := env.seedBackup(t, prodDB, "prod_20251101_100000.dump",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), []byte("dump"))

	// Confirmed, but the target is selected by stored database id; the
	// manual-only rule for production targets refuses it.
	w := env.doRequest(t, http.MethodPost, "/restores", dto.CreateRestoreRequest{
		BackupID:         &prodBackup.ID,
		TargetDatabaseID: &prodDB.ID,
		Confirmed:        true,
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRestoreRunsToTerminalState(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	devDB := env.seedDatabase(t, "db-dev-1", domain.EnvironmentDev)
	prodBackup := env.seedBackup(t, prodDB, "prod_20251101_100000.dump",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), []byte("dump"))

	var accepted dto.RestoreAcceptedResponse
	w := env.doRequest(t, http.MethodPost, "/restores", dto.CreateRestoreRequest{
		BackupID:         &prodBackup.ID,
		TargetDatabaseID: &devDB.ID,
	}, &accepted)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if accepted.Restore.ID == "" {
		t.Fatal("expected a restore id in the accepted response")
	}
	if accepted.Decision.Outcome != "allowed" {
		t.Errorf("expected allowed decision, got %s", accepted.Decision.Outcome)
	}

	// The job is pollable the moment the submission returns.
	var polled dto.RestoreResponse
	w = env.doRequest(t, http.MethodGet, "/restores/"+accepted.Restore.ID, nil, &polled)
	if w.Code != http.StatusOK {
		t.Fatalf("expected the job to be pollable immediately, got %d", w.Code)
	}

	// The worker fails at the pg_restore step (the binary does not exist);
	// the job must reach failed, not hang or complete.
	terminal := env.waitForTerminalRestore(t, accepted.Restore.ID, 5*time.Second)
	if terminal.Status != domain.RestoreStatusFailed {
		t.Fatalf("expected failed, got %s", terminal.Status)
	}
	if terminal.Error == nil || !strings.Contains(*terminal.Error, "pg_restore") {
		t.Errorf("expected a pg_restore failure cause, got %v", terminal.Error)
	}
	if terminal.DurationMs == nil {
		t.Error("expected duration to be recorded on a terminal job")
	}

	// Terminal status is stable across repeated polls.
	for i := 0; i < 3; i++ {
		w = env.doRequest(t, http.MethodGet, "/restores/"+accepted.Restore.ID, nil, &polled)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200 on poll %d, got %d", i, w.Code)
		}
		if polled.Status != string(domain.RestoreStatusFailed) {
			t.Errorf("terminal status changed on poll %d: %s", i, polled.Status)
		}
	}
}

func TestCreateRestoreWrongPassphraseFailsAuthentication(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	devDB := env.seedDatabase(t, "db-dev-1", domain.EnvironmentDev)
	payload := encryptedPayload(t, []byte("dump contents"), "right-passphrase")
	backup := env.seedBackup(t, prodDB, "prod_20251101_100000.dump.enc",
		domain.BackupStatusCompleted, time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), payload)

	var accepted dto.RestoreAcceptedResponse
	w := env.doRequest(t, http.MethodPost, "/restores", dto.CreateRestoreRequest{
		BackupID:         &backup.ID,
		TargetDatabaseID: &devDB.ID,
		Passphrase:       "wrong-passphrase",
	}, &accepted)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	restore := env.waitForTerminalRestore(t, accepted.Restore.ID, 5*time.Second)
	if restore.Status != domain.RestoreStatusFailed {
		t.Fatalf("expected failed, got %s", restore.Status)
	}
	// The cause must identify a key problem, not a target or tool problem.
	if restore.Error == nil || !strings.Contains(*restore.Error, "authentication failed") {
		t.Errorf("expected an authentication failure cause, got %v", restore.Error)
	}
}

func TestListRestores(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	base := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	statuses := []domain.RestoreStatus{
		domain.RestoreStatusCompleted,
		domain.RestoreStatusCompleted,
		domain.RestoreStatusFailed,
		domain.RestoreStatusPending,
	}
	for i, status := range statuses {
		restore := domain.NewRestore(domain.EnvironmentProd, domain.EnvironmentDev, "localhost:5432/restored")
		restore.StartTime = base.Add(time.Duration(i) * time.Hour)
		switch status {
		case domain.RestoreStatusCompleted:
			restore.Complete()
		case domain.RestoreStatusFailed:
			restore.Fail("target unreachable")
		}
		if err := env.restoreRepo.Create(context.Background(), restore); err != nil {
			t.Fatalf("failed to seed restore: %v", err)
		}
	}

	tests := []struct {
		name          string
		queryString   string
		expectedCount int
	}{
		{"all restores", "", 4},
		{"filter by failed status", "?query=status|failed", 1},
		{"filter by completed status", "?query=status|completed", 2},
		{"filter non-terminal", "?query=end_time|isnull", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response dto.RestoreListResponse
			w := env.doRequest(t, http.MethodGet, "/restores"+tt.queryString, nil, &response)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			if len(response.Items) != tt.expectedCount {
				t.Errorf("expected %d items, got %d", tt.expectedCount, len(response.Items))
			}
		})
	}
}
