package domain

import (
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", "orders"},
		{"orders-db_2", "orders-db_2"},
		{"my db!", "mydb"},
		{"../../etc/passwd", "etcpasswd"},
		{"vor spätern", "vorsptern"},
		{"$(rm -rf /)", "rm-rf"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBackupFileName(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name       string
		targetName string
		customName string
		want       string
	}{
		{"default name", "orders", "", "orders_20250314_092653.dump"},
		{"custom name", "orders", "pre-migration", "pre-migration_20250314_092653.dump"},
		{"custom name sanitized, timestamp still appended", "orders", "before deploy!", "beforedeploy_20250314_092653.dump"},
		{"target name sanitized", "my prod db", "", "myproddb_20250314_092653.dump"},
		{"everything stripped falls back", "!!!", "###", "backup_20250314_092653.dump"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackupFileName(tt.targetName, tt.customName, at); got != tt.want {
				t.Errorf("BackupFileName(%q, %q) = %q, want %q", tt.targetName, tt.customName, got, tt.want)
			}
		})
	}
}
