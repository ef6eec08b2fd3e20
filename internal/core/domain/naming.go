package domain

import (
	"fmt"
	"regexp"
	"time"
)

const backupTimestampLayout = "20060102_150405"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName strips every character outside [A-Za-z0-9_-] so user input
// can never escape the backup directory or produce an unusable file name.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "")
}

// BackupFileName builds the local file name for a new artifact. The custom
// name, when given, replaces the target name as the base; the timestamp is
// appended in every case so names stay unique over time.
func BackupFileName(targetName, customName string, t time.Time) string {
	base := SanitizeName(customName)
	if base == "" {
		base = SanitizeName(targetName)
	}
	if base == "" {
		base = "backup"
	}
	return fmt.Sprintf("%s_%s.dump", base, t.Format(backupTimestampLayout))
}
