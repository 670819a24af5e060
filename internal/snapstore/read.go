package snapstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

// GetTOC returns, per channel, the timestamps of snapshots whose resource and
// segment counts are both recorded.
func (s *Store) GetTOC(ctx context.Context) ([]TOCEntry, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query := sqlitedb.Builder.Select("channel", "ts").From("snapshot_toc").
		Where(sq.Eq{"store_id": s.storeID}).
		Where(sq.NotEq{"resource_count": nil, "segment_count": nil}).
		OrderBy("channel", "ts")
	rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "snapstore", "toc", "", err)
	}
	defer rows.Close()
	var toc []TOCEntry
	for rows.Next() {
		var channel string
		var ts int64
		if err := rows.Scan(&channel, &ts); err != nil {
			return nil, err
		}
		if n := len(toc); n > 0 && toc[n-1].Channel == channel {
			toc[n-1].Timestamps = append(toc[n-1].Timestamps, ts)
			continue
		}
		toc = append(toc, TOCEntry{Channel: channel, Timestamps: []int64{ts}})
	}
	return toc, rows.Err()
}

// LatestTimestamp returns the newest complete snapshot of channel.
func (s *Store) LatestTimestamp(ctx context.Context, channel string) (int64, bool, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM snapshot_toc
		 WHERE store_id = ? AND channel = ? AND resource_count IS NOT NULL AND segment_count IS NOT NULL`,
		s.storeID, channel,
	).Scan(&ts)
	if err != nil {
		return 0, false, services.Wrap(services.ErrStorage, "snapstore", "latest timestamp", channel, err)
	}
	return ts.Int64, ts.Valid, nil
}

func (s *Store) validAt(ts int64, channel string, table Table) sq.SelectBuilder {
	return sqlitedb.Builder.Select("row_key", "row_order", "fields").
		From(string(table)).
		Where(sq.Eq{"store_id": s.storeID, "channel": channel}).
		Where(sq.LtOrEq{"valid_from": ts}).
		Where(sq.Or{sq.Eq{"valid_to": nil}, sq.Gt{"valid_to": ts}})
}

func scanRow(rows interface{ Scan(...any) error }) (Row, error) {
	var (
		row    Row
		fields string
	)
	if err := rows.Scan(&row.Key, &row.Order, &fields); err != nil {
		return Row{}, err
	}
	if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
		return Row{}, fmt.Errorf("decode fields of %s: %w", row.Key, err)
	}
	return row, nil
}

// GenerateRows yields the rows of table valid at ts in natural order: segment
// order for segments, key for resources. A ts before the first snapshot yields
// nothing.
func (s *Store) GenerateRows(ctx context.Context, ts int64, channel string, table Table) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		ctx := sqlitedb.EnsureContext(ctx)
		if err := checkTable(table); err != nil {
			yield(Row{}, err)
			return
		}
		rows, err := sqlitedb.QueryBuilder(ctx, s.db, s.validAt(ts, channel, table).OrderBy(table.orderBy()...))
		if err != nil {
			yield(Row{}, services.Wrap(services.ErrStorage, "snapstore", "generate rows", channel, err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			row, err := scanRow(rows)
			if err != nil {
				yield(Row{}, services.Wrap(services.ErrStorage, "snapstore", "generate rows", channel, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, services.Wrap(services.ErrStorage, "snapstore", "generate rows", channel, err))
		}
	}
}

// GetRow fetches a single row valid at ts. A missing row is ErrNotFound.
func (s *Store) GetRow(ctx context.Context, ts int64, channel string, table Table, key string) (Row, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	if err := checkTable(table); err != nil {
		return Row{}, err
	}
	query, args, err := s.validAt(ts, channel, table).Where(sq.Eq{"row_key": key}).ToSql()
	if err != nil {
		return Row{}, fmt.Errorf("build row query: %w", err)
	}
	row, err := scanRow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, services.Wrap(services.ErrNotFound, "snapstore", "get row",
			fmt.Sprintf("%s %s in %s at %d", table, key, channel, ts), nil)
	}
	if err != nil {
		return Row{}, services.Wrap(services.ErrStorage, "snapstore", "get row", key, err)
	}
	return row, nil
}

// GetResource fetches one resource valid at ts. Unlike TM lookups, a missing
// resource is a hard ErrNotFound.
func (s *Store) GetResource(ctx context.Context, ts int64, channel, rid string) (Resource, error) {
	row, err := s.GetRow(ctx, ts, channel, TableResources, rid)
	if err != nil {
		return Resource{}, err
	}
	return row.AsResource()
}

// Resources yields the typed resources valid at ts.
func (s *Store) Resources(ctx context.Context, ts int64, channel string) iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		for row, err := range s.GenerateRows(ctx, ts, channel, TableResources) {
			if err != nil {
				yield(Resource{}, err)
				return
			}
			res, err := row.AsResource()
			if !yield(res, err) || err != nil {
				return
			}
		}
	}
}

// Segments yields the typed segments valid at ts.
func (s *Store) Segments(ctx context.Context, ts int64, channel string) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		for row, err := range s.GenerateRows(ctx, ts, channel, TableSegments) {
			if err != nil {
				yield(Segment{}, err)
				return
			}
			seg, err := row.AsSegment()
			if !yield(seg, err) || err != nil {
				return
			}
		}
	}
}

// ResourceSegments returns the segments of one resource valid at ts.
func (s *Store) ResourceSegments(ctx context.Context, ts int64, channel, rid string) ([]Segment, error) {
	var out []Segment
	for seg, err := range s.Segments(ctx, ts, channel) {
		if err != nil {
			return nil, err
		}
		if seg.RID == rid {
			out = append(out, seg)
		}
	}
	return out, nil
}

// LatestGuids returns the segment guids present in the latest complete
// snapshot of each channel. Channels without snapshots contribute nothing.
func (s *Store) LatestGuids(ctx context.Context, channels []string) (map[string]struct{}, error) {
	guids := make(map[string]struct{})
	sorted := append([]string(nil), channels...)
	sort.Strings(sorted)
	for _, channel := range sorted {
		ts, ok, err := s.LatestTimestamp(ctx, channel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for row, err := range s.GenerateRows(ctx, ts, channel, TableSegments) {
			if err != nil {
				return nil, err
			}
			guids[row.Key] = struct{}{}
		}
	}
	return guids, nil
}

// SaveResources converts resources to rows and saves them.
func (s *Store) SaveResources(ctx context.Context, ts int64, channel string, resources []Resource) (SaveResult, error) {
	rows := make([]Row, 0, len(resources))
	for _, res := range resources {
		row, err := ResourceRow(res)
		if err != nil {
			return SaveResult{}, services.Wrap(services.ErrValidation, "snapstore", "save resources", res.RID, err)
		}
		rows = append(rows, row)
	}
	return s.SaveSnap(ctx, ts, channel, TableResources, rows)
}

// SaveSegments converts segments to rows and saves them. Segments without an
// explicit order keep their slice position.
func (s *Store) SaveSegments(ctx context.Context, ts int64, channel string, segments []Segment) (SaveResult, error) {
	rows := make([]Row, 0, len(segments))
	for i, seg := range segments {
		if seg.Order == 0 {
			seg.Order = i
		}
		row, err := SegmentRow(seg)
		if err != nil {
			return SaveResult{}, services.Wrap(services.ErrValidation, "snapstore", "save segments", seg.GUID, err)
		}
		rows = append(rows, row)
	}
	return s.SaveSnap(ctx, ts, channel, TableSegments, rows)
}
