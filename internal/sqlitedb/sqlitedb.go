package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// DefaultBusyTimeout applies when callers do not configure one.
	DefaultBusyTimeout = 5 * time.Second
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Builder is the squirrel statement builder configured for SQLite placeholders.
var Builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// DSN builds a modernc.org/sqlite connection string. Every pooled connection
// gets WAL journaling, foreign keys, the busy timeout, and BEGIN IMMEDIATE
// transactions so writers take the database write lock up front.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

// Open creates the parent directory and opens the database at path.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(EnsureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// EnsureContext substitutes context.Background for a nil context.
func EnsureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// Extended result codes carry the primary code in the low byte.
		switch coder.Code() & 0xff {
		case sqliteBusyCode, sqliteLockedCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsAlreadyExists reports whether err is a duplicate table or index creation.
func IsAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// RetryOnBusy runs op until it succeeds, fails with a non-busy error, or
// exhausts its attempts.
func RetryOnBusy(ctx context.Context, op func() error) error {
	ctx = EnsureContext(ctx)
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// RunInTx executes fn inside a transaction, retrying the whole transaction on
// busy errors. Any error or panic from fn rolls the transaction back.
func RunInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	ctx = EnsureContext(ctx)
	return RetryOnBusy(ctx, func() (err error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				_ = tx.Rollback()
			}
		}()
		if err = fn(tx); err != nil {
			return err
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Exec runs a statement against q with busy retry.
func Exec(ctx context.Context, q Querier, query string, args ...any) (sql.Result, error) {
	ctx = EnsureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := RetryOnBusy(ctx, func() error {
		res, execErr = q.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// ExecBuilder renders a squirrel statement and executes it.
func ExecBuilder(ctx context.Context, q Querier, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return Exec(ctx, q, query, args...)
}

// QueryBuilder renders a squirrel select and runs it.
func QueryBuilder(ctx context.Context, q Querier, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.QueryContext(EnsureContext(ctx), query, args...)
}

// Chunk splits values into slices of at most size elements, keeping IN lists
// below SQLite's bound-variable limit.
func Chunk[T any](values []T, size int) [][]T {
	if size <= 0 || len(values) <= size {
		if len(values) == 0 {
			return nil
		}
		return [][]T{values}
	}
	chunks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// IsNoSuchTable reports whether err refers to a missing table.
func IsNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
