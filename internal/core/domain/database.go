package domain

import "time"

// Environment is the declared intent classification of a database target.
// It drives the restore safety rules and is a property of the database
// record, not of an individual backup.
type Environment string

const (
	EnvironmentProd    Environment = "prod"
	EnvironmentDev     Environment = "dev"
	EnvironmentUnknown Environment = "unknown"
)

// ParseEnvironment maps free-form input to an Environment. Anything that is
// not explicitly prod or dev counts as unknown.
func ParseEnvironment(s string) Environment {
	switch Environment(s) {
	case EnvironmentProd:
		return EnvironmentProd
	case EnvironmentDev:
		return EnvironmentDev
	default:
		return EnvironmentUnknown
	}
}

type Database struct {
	ID          int64       `db:"id"`
	Name        string      `db:"name"`
	Host        string      `db:"host"`
	Port        int         `db:"port"`
	DBName      string      `db:"db_name"`
	Username    string      `db:"username"`
	Password    string      `db:"password"` // encrypted at rest, see service.DatabaseService
	Schema      *string     `db:"schema"`
	SSLMode     string      `db:"ssl_mode"`
	Environment Environment `db:"environment"` // prod or dev
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func NewDatabase(name, host string, port int, dbName, username, encryptedPassword string, environment Environment) *Database {
	now := time.Now()
	return &Database{
		Name:        name,
		Host:        host,
		Port:        port,
		DBName:      dbName,
		Username:    username,
		Password:    encryptedPassword,
		SSLMode:     "prefer",
		Environment: environment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
