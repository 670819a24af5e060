package snapstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

type openVersion struct {
	hash      string
	validFrom int64
}

type incomingRow struct {
	row    Row
	hash   string
	fields string
}

// SaveSnap records rows as the content of table for channel at ts. Rows whose
// content hash matches the open version are left alone; changed and new keys
// close the old version at ts and open a new one; open keys absent from rows
// are closed. The TOC count for table is written in the same transaction.
func (s *Store) SaveSnap(ctx context.Context, ts int64, channel string, table Table, rows []Row) (SaveResult, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	if err := checkTable(table); err != nil {
		return SaveResult{}, err
	}
	if strings.TrimSpace(channel) == "" {
		return SaveResult{}, services.Validation("snapstore", "channel is required")
	}
	logger := logging.WithContext(services.WithChannel(ctx, channel), s.logger)

	var result SaveResult
	incoming := make([]incomingRow, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			result.Skipped++
			logging.WarnWithContext(logger, "snapshot row without key skipped", "snapshot_missing_key",
				logging.Table(string(table)),
				logging.String(logging.FieldImpact, "row is not recorded in the snapshot"),
			)
			continue
		}
		if _, dup := seen[row.Key]; dup {
			result.Skipped++
			logging.WarnWithContext(logger, "duplicate snapshot key skipped", "snapshot_duplicate_key",
				logging.Table(string(table)),
				logging.String("key", row.Key),
				logging.String(logging.FieldImpact, "first occurrence of the key is kept"),
				logging.String(logging.FieldErrorHint, "check the channel for repeated segment ids"),
			)
			continue
		}
		seen[row.Key] = struct{}{}
		hash, fields, err := contentHash(row)
		if err != nil {
			return SaveResult{}, services.Wrap(services.ErrValidation, "snapstore", "save snapshot", channel, err)
		}
		incoming = append(incoming, incomingRow{row: row, hash: hash, fields: fields})
	}

	unlock := s.lockChannel(channel)
	defer unlock()

	var applied SaveResult
	err := sqlitedb.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		applied = SaveResult{Skipped: result.Skipped}
		if latest, ok, err := s.latestSaved(ctx, tx, channel, table); err != nil {
			return err
		} else if ok && ts < latest {
			return services.Validation("snapstore",
				fmt.Sprintf("snapshot of %s at %d precedes the latest one at %d", table, ts, latest))
		}
		open, err := s.openVersions(ctx, tx, channel, table)
		if err != nil {
			return err
		}
		for _, in := range incoming {
			current, exists := open[in.row.Key]
			delete(open, in.row.Key)
			switch {
			case exists && current.hash == in.hash:
				applied.Unchanged++
				continue
			case exists && ts < current.validFrom:
				return services.Validation("snapstore",
					fmt.Sprintf("snapshot at %d precedes open version of %s from %d", ts, in.row.Key, current.validFrom))
			case exists && ts == current.validFrom:
				if err := s.replaceVersion(ctx, tx, channel, table, in, ts); err != nil {
					return err
				}
				applied.Changed++
				continue
			case exists:
				if err := s.closeVersion(ctx, tx, channel, table, in.row.Key, ts); err != nil {
					return err
				}
				applied.Changed++
			default:
				applied.Added++
			}
			if err := s.insertVersion(ctx, tx, channel, table, in, ts); err != nil {
				return err
			}
		}
		for key, version := range open {
			if ts < version.validFrom {
				return services.Validation("snapstore",
					fmt.Sprintf("snapshot at %d precedes open version of %s from %d", ts, key, version.validFrom))
			}
			if ts == version.validFrom {
				// Opened by this same snapshot timestamp; removing leaves no trace.
				if err := s.deleteVersion(ctx, tx, channel, table, key, ts); err != nil {
					return err
				}
			} else if err := s.closeVersion(ctx, tx, channel, table, key, ts); err != nil {
				return err
			}
			applied.Removed++
		}
		return s.writeTOC(ctx, tx, channel, table, ts, len(incoming))
	})
	if err != nil {
		return SaveResult{}, services.Wrap(services.ErrStorage, "snapstore", "save snapshot", channel, err)
	}
	logger.Debug("snapshot saved",
		logging.Table(string(table)),
		logging.Int64("ts", ts),
		logging.Int("added", applied.Added),
		logging.Int("changed", applied.Changed),
		logging.Int("removed", applied.Removed),
		logging.Int("unchanged", applied.Unchanged),
	)
	return applied, nil
}

func (s *Store) openVersions(ctx context.Context, q sqlitedb.Querier, channel string, table Table) (map[string]openVersion, error) {
	query := sqlitedb.Builder.Select("row_key", "content_hash", "valid_from").
		From(string(table)).
		Where(sq.Eq{"store_id": s.storeID, "channel": channel, "valid_to": nil})
	rows, err := sqlitedb.QueryBuilder(ctx, q, query)
	if err != nil {
		return nil, fmt.Errorf("load open %s: %w", table, err)
	}
	defer rows.Close()
	open := make(map[string]openVersion)
	for rows.Next() {
		var key string
		var v openVersion
		if err := rows.Scan(&key, &v.hash, &v.validFrom); err != nil {
			return nil, err
		}
		open[key] = v
	}
	return open, rows.Err()
}

func (s *Store) closeVersion(ctx context.Context, q sqlitedb.Querier, channel string, table Table, key string, ts int64) error {
	stmt := sqlitedb.Builder.Update(string(table)).
		Set("valid_to", ts).
		Where(sq.Eq{"store_id": s.storeID, "channel": channel, "row_key": key, "valid_to": nil})
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("close %s %s: %w", table, key, err)
	}
	return nil
}

func (s *Store) deleteVersion(ctx context.Context, q sqlitedb.Querier, channel string, table Table, key string, ts int64) error {
	stmt := sqlitedb.Builder.Delete(string(table)).
		Where(sq.Eq{"store_id": s.storeID, "channel": channel, "row_key": key, "valid_from": ts})
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, key, err)
	}
	return nil
}

func (s *Store) replaceVersion(ctx context.Context, q sqlitedb.Querier, channel string, table Table, in incomingRow, ts int64) error {
	stmt := sqlitedb.Builder.Update(string(table)).
		Set("row_order", in.row.Order).
		Set("content_hash", in.hash).
		Set("fields", in.fields).
		Where(sq.Eq{"store_id": s.storeID, "channel": channel, "row_key": in.row.Key, "valid_from": ts})
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("replace %s %s: %w", table, in.row.Key, err)
	}
	return nil
}

func (s *Store) insertVersion(ctx context.Context, q sqlitedb.Querier, channel string, table Table, in incomingRow, ts int64) error {
	stmt := sqlitedb.Builder.Insert(string(table)).
		Columns("store_id", "channel", "row_key", "row_order", "content_hash", "fields", "valid_from").
		Values(s.storeID, channel, in.row.Key, in.row.Order, in.hash, in.fields, ts)
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("insert %s %s: %w", table, in.row.Key, err)
	}
	return nil
}

// latestSaved returns the newest ts at which table was saved for channel.
func (s *Store) latestSaved(ctx context.Context, q sqlitedb.Querier, channel string, table Table) (int64, bool, error) {
	var ts sql.NullInt64
	err := q.QueryRowContext(ctx,
		"SELECT MAX(ts) FROM snapshot_toc WHERE store_id = ? AND channel = ? AND "+table.countColumn()+" IS NOT NULL",
		s.storeID, channel,
	).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("read latest %s snapshot: %w", table, err)
	}
	return ts.Int64, ts.Valid, nil
}

func (s *Store) writeTOC(ctx context.Context, q sqlitedb.Querier, channel string, table Table, ts int64, count int) error {
	column := table.countColumn()
	stmt := sqlitedb.Builder.Insert("snapshot_toc").
		Columns("store_id", "channel", "ts", column).
		Values(s.storeID, channel, ts, count).
		Suffix(fmt.Sprintf("ON CONFLICT(store_id, channel, ts) DO UPDATE SET %[1]s = excluded.%[1]s", column))
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("write toc: %w", err)
	}
	return nil
}
