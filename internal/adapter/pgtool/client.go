package pgtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ConnectionParams holds everything needed to reach one PostgreSQL database.
type ConnectionParams struct {
	Host     string
	Port     int
	DBName   string
	Username string
	Password string
	SSLMode  string
	Schema   string // dump only this schema when set
}

// URL renders the params as a postgres:// URL with proper escaping.
func (p ConnectionParams) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.DBName,
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectionError means the target server could not be reached or refused
// the credentials. It is reported before any dump or restore work happens.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DumpError means pg_dump started but did not produce a complete archive.
type DumpError struct {
	Stderr string
	Err    error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("pg_dump failed: %v: %s", e.Err, e.Stderr)
}

func (e *DumpError) Unwrap() error { return e.Err }

// ApplyError means pg_restore could not apply the archive to the target.
type ApplyError struct {
	Stderr string
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("pg_restore failed: %v: %s", e.Err, e.Stderr)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// TableRef identifies one user table on the server.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// ServerInfo is what Inspect reports back for a reachable database.
type ServerInfo struct {
	Version string     `json:"version"`
	Tables  []TableRef `json:"tables"`
}

// Client invokes the PostgreSQL command line tools and drives direct
// connections for connectivity checks.
type Client struct {
	dumpPath       string
	restorePath    string
	connectTimeout time.Duration
	logger         *zap.Logger
}

// NewClient creates a pgtool client. dumpPath and restorePath are the
// pg_dump and pg_restore binaries, connectTimeout applies to connection
// establishment in seconds.
func NewClient(dumpPath, restorePath string, connectTimeoutSecs int, logger *zap.Logger) *Client {
	return &Client{
		dumpPath:       dumpPath,
		restorePath:    restorePath,
		connectTimeout: time.Duration(connectTimeoutSecs) * time.Second,
		logger:         logger,
	}
}

// Ping verifies the database accepts connections with the given credentials.
func (c *Client) Ping(ctx context.Context, params ConnectionParams) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, params.URL())
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// Inspect connects to the database and reports the server version plus a
// sample of user tables. Used by the connection test endpoint.
func (c *Client) Inspect(ctx context.Context, params ConnectionParams) (*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, params.URL())
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer conn.Close(ctx)

	info := &ServerInfo{}
	if err := conn.QueryRow(ctx, `SELECT version()`).Scan(&info.Version); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT schemaname, tablename
		FROM pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TableRef
		if err := rows.Scan(&t.Schema, &t.Table); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		info.Tables = append(info.Tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return info, nil
}

// Dump streams a custom-format archive of the database to w.
func (c *Client) Dump(ctx context.Context, params ConnectionParams, w io.Writer) error {
	args := []string{
		"-h", params.Host,
		"-p", strconv.Itoa(params.Port),
		"-U", params.Username,
		"-d", params.DBName,
		"--no-owner",
		"--no-acl",
		"-Fc",
	}
	if params.Schema != "" {
		args = append(args, "-n", params.Schema)
	}

	cmd := exec.CommandContext(ctx, c.dumpPath, args...)
	cmd.Env = c.commandEnv(params)
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := truncateStderr(stderr.String())
		if isConnectionFailure(msg) {
			return &ConnectionError{Err: fmt.Errorf("%s: %w", msg, err)}
		}
		return &DumpError{Stderr: msg, Err: err}
	}
	return nil
}

// Restore applies a custom-format archive from r to the target database.
// pg_restore exits non-zero on harmless warnings, so a non-zero exit is only
// an error when stderr carries actual error lines.
func (c *Client) Restore(ctx context.Context, params ConnectionParams, r io.Reader) error {
	args := []string{
		"-h", params.Host,
		"-p", strconv.Itoa(params.Port),
		"-U", params.Username,
		"-d", params.DBName,
		"--no-owner",
		"--no-privileges",
		"--clean",
		"--if-exists",
	}

	cmd := exec.CommandContext(ctx, c.restorePath, args...)
	cmd.Env = c.commandEnv(params)
	cmd.Stdin = r

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := truncateStderr(stderr.String())
		// Warning tolerance only applies when the tool actually ran and
		// exited non-zero; a failure to start it at all is always fatal.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return &ApplyError{Stderr: msg, Err: err}
		}
		if isConnectionFailure(msg) {
			return &ConnectionError{Err: fmt.Errorf("%s: %w", msg, err)}
		}
		if hasFatalRestoreErrors(msg) {
			return &ApplyError{Stderr: msg, Err: err}
		}
		c.logger.Warn("pg_restore finished with warnings",
			zap.String("database", params.DBName),
			zap.String("stderr", msg))
	}
	return nil
}

func (c *Client) commandEnv(params ConnectionParams) []string {
	sslMode := params.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return append(os.Environ(),
		"PGPASSWORD="+params.Password,
		"PGSSLMODE="+sslMode,
		fmt.Sprintf("PGCONNECT_TIMEOUT=%d", int(c.connectTimeout.Seconds())),
	)
}

// connectionFailureMarkers are stderr fragments libpq emits when the problem
// is reaching or authenticating against the server rather than the dump or
// restore itself.
var connectionFailureMarkers = []string{
	"could not connect",
	"connection refused",
	"connection to server",
	"could not translate host name",
	"password authentication failed",
	"timeout expired",
	"no pg_hba.conf entry",
}

func isConnectionFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range connectionFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// hasFatalRestoreErrors reports whether stderr contains real errors as
// opposed to the warning chatter pg_restore emits for --clean on missing
// objects and similar.
func hasFatalRestoreErrors(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error:") && !strings.Contains(lower, "warning") {
			return true
		}
	}
	return false
}

func truncateStderr(s string) string {
	const max = 4096
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
