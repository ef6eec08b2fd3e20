package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/crypto"
)

// MaskedPassword is what the API reports in place of stored credentials.
// Updates that send the mask back keep the existing password.
const MaskedPassword = "********"

type DatabaseService struct {
	databaseRepo   repository.DatabaseRepository
	pgClient       *pgtool.Client
	credentialsKey string
}

func NewDatabaseService(
	databaseRepo repository.DatabaseRepository,
	pgClient *pgtool.Client,
	credentialsKey string,
) *DatabaseService {
	return &DatabaseService{
		databaseRepo:   databaseRepo,
		pgClient:       pgClient,
		credentialsKey: credentialsKey,
	}
}

// RegisterDatabase encrypts the credentials and stores the target.
func (s *DatabaseService) RegisterDatabase(ctx context.Context, database *domain.Database, password string) error {
	if existing, err := s.databaseRepo.FindByName(ctx, database.Name); err == nil && existing != nil {
		return NewServiceError(http.StatusConflict, "database already registered: %s", database.Name)
	}

	encrypted, err := s.encryptPassword(password)
	if err != nil {
		return err
	}
	database.Password = encrypted

	return s.databaseRepo.Create(ctx, database)
}

// UpdateDatabase persists changes to a registered target. An empty or masked
// password keeps the stored one.
func (s *DatabaseService) UpdateDatabase(ctx context.Context, database *domain.Database, password string) error {
	existing, err := s.databaseRepo.FindByID(ctx, database.ID)
	if err != nil {
		return NewServiceError(http.StatusNotFound, "database not found: %d", database.ID)
	}

	if password == "" || password == MaskedPassword {
		database.Password = existing.Password
	} else {
		encrypted, err := s.encryptPassword(password)
		if err != nil {
			return err
		}
		database.Password = encrypted
	}

	database.UpdatedAt = time.Now()
	return s.databaseRepo.Update(ctx, database)
}

// GetDatabase retrieves a registered target by ID
func (s *DatabaseService) GetDatabase(ctx context.Context, id int64) (*domain.Database, error) {
	return s.databaseRepo.FindByID(ctx, id)
}

// GetDatabaseByName retrieves a registered target by name
func (s *DatabaseService) GetDatabaseByName(ctx context.Context, name string) (*domain.Database, error) {
	return s.databaseRepo.FindByName(ctx, name)
}

// ListDatabases lists all registered targets
func (s *DatabaseService) ListDatabases(ctx context.Context) ([]*domain.Database, error) {
	return s.databaseRepo.List(ctx)
}

// DeleteDatabase removes a registered target. Its schedules go with it,
// backup records stay so existing artifacts remain restorable.
func (s *DatabaseService) DeleteDatabase(ctx context.Context, id int64) error {
	return s.databaseRepo.Delete(ctx, id)
}

// TestConnection connects to the target and reports server version and a
// sample of tables.
func (s *DatabaseService) TestConnection(ctx context.Context, id int64) (*pgtool.ServerInfo, error) {
	database, err := s.databaseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, NewServiceError(http.StatusNotFound, "database not found: %d", id)
	}

	params, err := s.ConnectionParams(database)
	if err != nil {
		return nil, err
	}

	return s.pgClient.Inspect(ctx, params)
}

// ConnectionParams decrypts the stored credentials into parameters usable
// by the dump and restore tools. The plaintext never leaves process memory.
func (s *DatabaseService) ConnectionParams(database *domain.Database) (pgtool.ConnectionParams, error) {
	password, err := s.decryptPassword(database.Password)
	if err != nil {
		return pgtool.ConnectionParams{}, err
	}

	params := pgtool.ConnectionParams{
		Host:     database.Host,
		Port:     database.Port,
		DBName:   database.DBName,
		Username: database.Username,
		Password: password,
		SSLMode:  database.SSLMode,
	}
	if database.Schema != nil {
		params.Schema = *database.Schema
	}
	return params, nil
}

func (s *DatabaseService) encryptPassword(password string) (string, error) {
	encrypted, err := crypto.EncryptBytes([]byte(password), s.credentialsKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func (s *DatabaseService) decryptPassword(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode stored credentials: %w", err)
	}
	plain, err := crypto.DecryptBytes(raw, s.credentialsKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return string(plain), nil
}
