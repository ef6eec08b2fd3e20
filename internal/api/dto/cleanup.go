package dto

// CleanupRequest represents the retention cleanup request
type CleanupRequest struct {
	DatabaseID *int64 `json:"database_id,omitempty"` // Optional: cleanup one database only
}

// CleanupResponse reports how many expired backups were removed
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}
