package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/core/domain"
)

func seedBackupFixtures(t *testing.T, env *testEnv) (prodIDs, devIDs []string) {
	t.Helper()

	prodDB := env.seedDatabase(t, "db-prod-1", domain.EnvironmentProd)
	devDB := env.seedDatabase(t, "db-dev-1", domain.EnvironmentDev)

	base := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	// Five completed daily backups, one failed run, and one still running
	// for the prod database.
	for day := 0; day < 5; day++ {
		b := env.seedBackup(t, prodDB, domain.BackupFileName("db-prod-1", "", base.AddDate(0, 0, day)),
			domain.BackupStatusCompleted, base.AddDate(0, 0, day), []byte("prod dump"))
		prodIDs = append(prodIDs, b.ID)
	}
	failed := env.seedBackup(t, prodDB, domain.BackupFileName("db-prod-1", "", base.AddDate(0, 0, 5)),
		domain.BackupStatusFailed, base.AddDate(0, 0, 5), nil)
	prodIDs = append(prodIDs, failed.ID)
	running := env.seedBackup(t, prodDB, domain.BackupFileName("db-prod-1", "", base.AddDate(0, 0, 6)),
		domain.BackupStatusRunning, base.AddDate(0, 0, 6), []byte("partial"))
	prodIDs = append(prodIDs, running.ID)

	// Three completed backups for the dev database.
	for day := 0; day < 3; day++ {
		b := env.seedBackup(t, devDB, domain.BackupFileName("db-dev-1", "", base.AddDate(0, 0, day)),
			domain.BackupStatusCompleted, base.AddDate(0, 0, day).Add(time.Hour), []byte("dev dump"))
		devIDs = append(devIDs, b.ID)
	}

	return prodIDs, devIDs
}

func TestListBackups(t *testing.T) {
	tests := []struct {
		name           string
		queryString    string
		expectedStatus int
		expectedCount  int
		expectedTotal  int
	}{
		{
			name:           "basic listing returns all backups with default pagination",
			queryString:    "",
			expectedStatus: http.StatusOK,
			expectedCount:  10,
			expectedTotal:  10,
		},
		{
			name:           "filter by completed status",
			queryString:    "?query=status|completed",
			expectedStatus: http.StatusOK,
			expectedCount:  8,
			expectedTotal:  8,
		},
		{
			name:           "filter by database name",
			queryString:    "?query=database_name|db-dev-1",
			expectedStatus: http.StatusOK,
			expectedCount:  3,
			expectedTotal:  3,
		},
		{
			name:           "filter with explicit ne operator",
			queryString:    "?query=status|ne|completed",
			expectedStatus: http.StatusOK,
			expectedCount:  2,
			expectedTotal:  2,
		},
		{
			name:           "combined filters",
			queryString:    "?query=database_name|db-prod-1,status|completed",
			expectedStatus: http.StatusOK,
			expectedCount:  5,
			expectedTotal:  5,
		},
		{
			name:           "pagination window",
			queryString:    "?per_page=3&page=2",
			expectedStatus: http.StatusOK,
			expectedCount:  3,
			expectedTotal:  10,
		},
		{
			name:           "invalid query field is rejected",
			queryString:    "?query=comment|nope",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid operator is rejected",
			queryString:    "?query=status|approx|completed",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid order field is rejected",
			queryString:    "?order=comment|asc",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			defer env.cleanup()
			seedBackupFixtures(t, env)

			w := env.doRequest(t, http.MethodGet, "/backups"+tt.queryString, nil, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response dto.BackupListResponse
			decodeBody(t, w, &response)
			if len(response.Items) != tt.expectedCount {
				t.Errorf("expected %d items, got %d", tt.expectedCount, len(response.Items))
			}
			if response.Pagination.Total != tt.expectedTotal {
				t.Errorf("expected total %d, got %d", tt.expectedTotal, response.Pagination.Total)
			}
		})
	}
}

func TestListBackupsOrdering(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	prodIDs, _ := seedBackupFixtures(t, env)

	var response dto.BackupListResponse
	w := env.doRequest(t, http.MethodGet, "/backups?order=start_time|desc&per_page=1", nil, &response)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(response.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(response.Items))
	}
	// The still-running prod backup has the newest start time.
	if got, want := response.Items[0].ID, prodIDs[len(prodIDs)-1]; got != want {
		t.Errorf("expected newest backup %s first, got %s", want, got)
	}
}

func TestGetBackup(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	prodIDs, _ := seedBackupFixtures(t, env)

	var response dto.BackupResponse
	w := env.doRequest(t, http.MethodGet, "/backups/"+prodIDs[0], nil, &response)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if response.ID != prodIDs[0] {
		t.Errorf("expected backup id %s, got %s", prodIDs[0], response.ID)
	}
	if response.DatabaseName != "db-prod-1" {
		t.Errorf("expected database name db-prod-1, got %s", response.DatabaseName)
	}
	if response.Status != string(domain.BackupStatusCompleted) {
		t.Errorf("expected status completed, got %s", response.Status)
	}
	if response.Size == nil {
		t.Error("expected size to be set on a completed backup")
	}

	w = env.doRequest(t, http.MethodGet, "/backups/no-such-backup", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown backup, got %d", w.Code)
	}
}
