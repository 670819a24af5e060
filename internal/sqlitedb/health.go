package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// Health captures diagnostic information about a store database.
type Health struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	Integrity        string   `json:"integrity"`
	Tables           []string `json:"tables"`
	Error            string   `json:"error,omitempty"`
}

// CheckHealth pings db, reports the schema version, runs a quick integrity
// check, and lists the tables present.
func CheckHealth(ctx context.Context, db *sql.DB, path string) (Health, error) {
	health := Health{DBPath: path}
	if path == "" {
		return health, errors.New("database path is unknown")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", path)
	}
	health.DatabaseExists = true
	if db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(EnsureContext(ctx), 5*time.Second)
	defer cancel()

	if err := db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	if version, err := SchemaVersion(connCtx, db); err == nil {
		health.SchemaVersion = version
	}

	if err := db.QueryRowContext(connCtx, "PRAGMA quick_check").Scan(&health.Integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}

	rows, err := db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return health, err
		}
		health.Tables = append(health.Tables, name)
	}
	return health, rows.Err()
}
