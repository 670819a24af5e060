package snapstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tmcore/internal/config"
	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store reads and writes snapshots for one store identity.
type Store struct {
	db      *sql.DB
	path    string
	storeID string
	logger  *slog.Logger
}

// channelLocks serializes saves per (database, store, channel) within the
// process. SQLite's write lock covers other processes.
var channelLocks sync.Map

func (s *Store) lockChannel(channel string) func() {
	key := s.path + "\x00" + s.storeID + "\x00" + channel
	value, _ := channelLocks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Open opens the snapshot database named by cfg for the configured store id.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	timeout := time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond
	return openStore(cfg.SnapshotDatabasePath(), cfg.Snapshot.StoreID, timeout, logger)
}

// OpenPath opens the snapshot database at path for storeID.
func OpenPath(path, storeID string, logger *slog.Logger) (*Store, error) {
	return openStore(path, storeID, sqlitedb.DefaultBusyTimeout, logger)
}

func openStore(path, storeID string, busyTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, services.Validation("snapstore", "store id is required")
	}
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, path, busyTimeout)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "snapstore", "open", path, err)
	}
	if _, err := sqlitedb.ApplyMigrations(ctx, db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, "snapstore", "migrate", path, err)
	}
	return &Store{
		db:      db,
		path:    path,
		storeID: storeID,
		logger:  logging.NewComponentLogger(logger, "snapstore").With(logging.String("store_id", storeID)),
	}, nil
}

// StoreID returns the store identity rows are recorded under.
func (s *Store) StoreID() string { return s.storeID }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Health returns diagnostic information about the database.
func (s *Store) Health(ctx context.Context) (sqlitedb.Health, error) {
	return sqlitedb.CheckHealth(ctx, s.db, s.path)
}

func checkTable(table Table) error {
	if !table.Valid() {
		return services.Validation("snapstore", fmt.Sprintf("unknown table %q", table))
	}
	return nil
}
