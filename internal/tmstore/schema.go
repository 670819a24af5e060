package tmstore

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"tmcore/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed pair_table.sql
var pairTableSQL string

func (s *Store) initSchema(ctx context.Context) error {
	version, err := sqlitedb.ApplyMigrations(ctx, s.db, migrationFS, "migrations")
	if err != nil {
		return err
	}
	s.schemaVersion = version
	return nil
}

func (s *Store) hasTable(table string) bool {
	s.tablesMu.RLock()
	defer s.tablesMu.RUnlock()
	_, ok := s.tables[table]
	return ok
}

// ensurePair creates the TU table for p on first use. Concurrent first callers
// share one creation; a creation race with another process is benign.
func (s *Store) ensurePair(ctx context.Context, p Pair) (string, error) {
	table := p.table()
	if s.hasTable(table) {
		return table, nil
	}
	_, err, _ := s.initGroup.Do(table, func() (any, error) {
		if s.hasTable(table) {
			return nil, nil
		}
		ddl := strings.ReplaceAll(pairTableSQL, "{{table}}", table)
		if _, err := sqlitedb.Exec(ctx, s.db, ddl); err != nil && !sqlitedb.IsAlreadyExists(err) {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
		s.tablesMu.Lock()
		s.tables[table] = struct{}{}
		s.tablesMu.Unlock()
		s.logger.Debug("pair table ready", "table", table)
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return table, nil
}

// pairTableExists checks the catalog without creating anything, for read
// paths on pairs that were never written.
func (s *Store) pairTableExists(ctx context.Context, p Pair) (string, bool, error) {
	table := p.table()
	if s.hasTable(table) {
		return table, true, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&count)
	if err != nil {
		return table, false, fmt.Errorf("check table %s: %w", table, err)
	}
	if count == 0 {
		return table, false, nil
	}
	s.tablesMu.Lock()
	s.tables[table] = struct{}{}
	s.tablesMu.Unlock()
	return table, true, nil
}
