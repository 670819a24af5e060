package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

type migration struct {
	version string
	sql     string
}

func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(name, ".sql"),
			sql:     string(data),
		})
	}
	return migrations, nil
}

// ApplyMigrations runs every not-yet-applied migration found in dir, in
// lexical order, inside one transaction. It returns the latest applied version.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) (string, error) {
	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return "", err
	}

	err = RunInTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}
		for _, m := range migrations {
			var count int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
				return fmt.Errorf("scan migration version: %w", err)
			}
			if count > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.version, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return SchemaVersion(ctx, db)
}

// SchemaVersion returns the most recent applied migration version.
func SchemaVersion(ctx context.Context, q Querier) (string, error) {
	var version sql.NullString
	if err := q.QueryRowContext(EnsureContext(ctx), "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return version.String, nil
}
