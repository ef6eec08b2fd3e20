package dto

import "time"

// CreateDatabaseRequest represents the database registration request
type CreateDatabaseRequest struct {
	Name        string  `json:"name" binding:"required"`
	Host        string  `json:"host" binding:"required"`
	Port        int     `json:"port" binding:"required,min=1,max=65535"`
	DBName      string  `json:"db_name" binding:"required"`
	Username    string  `json:"username" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	Schema      *string `json:"schema,omitempty"`
	SSLMode     string  `json:"ssl_mode" binding:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Environment string  `json:"environment" binding:"required,oneof=prod dev"`
}

// UpdateDatabaseRequest represents the database update request
type UpdateDatabaseRequest struct {
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"port,omitempty" binding:"omitempty,min=1,max=65535"`
	DBName      *string `json:"db_name,omitempty"`
	Username    *string `json:"username,omitempty"`
	Password    *string `json:"password,omitempty"` // omit or send the mask to keep the stored one
	Schema      *string `json:"schema,omitempty"`
	SSLMode     *string `json:"ssl_mode,omitempty" binding:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Environment *string `json:"environment,omitempty" binding:"omitempty,oneof=prod dev"`
}

// DatabaseResponse represents a registered database. The password is always
// masked.
type DatabaseResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	DBName      string    `json:"db_name"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	Schema      *string   `json:"schema,omitempty"`
	SSLMode     string    `json:"ssl_mode"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DatabaseListResponse represents a list of databases
type DatabaseListResponse struct {
	Items []DatabaseResponse `json:"items"`
}

// TableInfo identifies one table found during a connection test
type TableInfo struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// ConnectionTestResponse represents the result of a connection test
type ConnectionTestResponse struct {
	Version string      `json:"version"`
	Tables  []TableInfo `json:"tables"`
}
