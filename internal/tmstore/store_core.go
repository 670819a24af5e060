package tmstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tmcore/internal/config"
	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

// Store manages translation memory persistence backed by SQLite.
type Store struct {
	db            *sql.DB
	path          string
	logger        *slog.Logger
	schemaVersion string
	now           func() time.Time

	tablesMu  sync.RWMutex
	tables    map[string]struct{}
	initGroup singleflight.Group
}

// Open initializes or connects to the translation memory database named by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	timeout := time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond
	return openStore(cfg.TMDatabasePath(), timeout, logger)
}

// OpenPath opens the database at path with the default busy timeout.
func OpenPath(path string, logger *slog.Logger) (*Store, error) {
	return openStore(path, sqlitedb.DefaultBusyTimeout, logger)
}

func openStore(path string, busyTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, path, busyTimeout)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "open", path, err)
	}
	store := &Store{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "tmstore"),
		now:    time.Now,
		tables: make(map[string]struct{}),
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, "tmstore", "migrate", path, err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Health returns diagnostic information about the database.
func (s *Store) Health(ctx context.Context) (sqlitedb.Health, error) {
	return sqlitedb.CheckHealth(ctx, s.db, s.path)
}
