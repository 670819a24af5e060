package tmstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

const guidChunkSize = 500

// GetEntries returns the rank-1 TU for each requested guid, in request order.
// Unknown guids are omitted.
func (s *Store) GetEntries(ctx context.Context, pair Pair, guids []string) ([]TU, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "get entries", pair.String(), err)
	}
	if !exists || len(guids) == 0 {
		return nil, nil
	}
	unique := make([]string, 0, len(guids))
	seen := make(map[string]struct{}, len(guids))
	for _, guid := range guids {
		if _, ok := seen[guid]; ok {
			continue
		}
		seen[guid] = struct{}{}
		unique = append(unique, guid)
	}

	byGUID := make(map[string]TU, len(unique))
	for _, chunk := range sqlitedb.Chunk(unique, guidChunkSize) {
		query := sqlitedb.Builder.Select(tuColumns...).From(table).
			Where(sq.Eq{"guid": chunk, "rank": 1})
		rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "tmstore", "get entries", pair.String(), err)
		}
		tus, err := collectTUs(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "tmstore", "get entries", pair.String(), err)
		}
		for _, tu := range tus {
			byGUID[tu.GUID] = tu
		}
	}
	out := make([]TU, 0, len(byGUID))
	for _, guid := range unique {
		if tu, ok := byGUID[guid]; ok {
			out = append(out, tu)
		}
	}
	return out, nil
}

// GetExactMatches returns every rank-1 TU whose flattened source equals the
// flattened form of nsrc, best first.
func (s *Store) GetExactMatches(ctx context.Context, pair Pair, nsrc nstring.String) ([]TU, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "exact matches", pair.String(), err)
	}
	if !exists {
		return nil, nil
	}
	query := sqlitedb.Builder.Select(tuColumns...).From(table).
		Where(sq.Eq{"flat_src": nstring.Flatten(nsrc), "rank": 1}).
		OrderBy("q DESC", "ts DESC", "guid")
	rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "exact matches", pair.String(), err)
	}
	tus, err := collectTUs(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "exact matches", pair.String(), err)
	}
	return tus, nil
}

// GetJobTUs returns the TUs of a job ordered by their position in the job.
func (s *Store) GetJobTUs(ctx context.Context, pair Pair, jobGUID string) ([]TU, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "job tus", jobGUID, err)
	}
	if !exists {
		return nil, nil
	}
	query := sqlitedb.Builder.Select(tuColumns...).From(table).
		Where(sq.Eq{"job_guid": jobGUID}).
		OrderBy("tu_order", "guid")
	rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "job tus", jobGUID, err)
	}
	tus, err := collectTUs(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "job tus", jobGUID, err)
	}
	return tus, nil
}

// GetJob returns a job with its TUs regardless of language pair. A missing
// job yields (nil, nil).
func (s *Store) GetJob(ctx context.Context, jobGUID string) (*Job, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query, args, err := sqlitedb.Builder.Select(jobColumns...).From("jobs").
		Where(sq.Eq{"job_guid": jobGUID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job query: %w", err)
	}
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "get job", jobGUID, err)
	}
	pair, err := job.Pair()
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "get job", jobGUID, err)
	}
	if job.TUs, err = s.GetJobTUs(ctx, pair, jobGUID); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns job metadata for a pair, oldest update first.
func (s *Store) ListJobs(ctx context.Context, pair Pair) ([]*Job, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query := sqlitedb.Builder.Select(jobColumns...).From("jobs").
		Where(sq.Eq{"source_lang": pair.Source, "target_lang": pair.Target}).
		OrderBy("updated_at", "job_guid")
	rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "list jobs", pair.String(), err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "tmstore", "list jobs", pair.String(), err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LanguagePairs returns every pair that has at least one job.
func (s *Store) LanguagePairs(ctx context.Context) ([]Pair, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT source_lang, target_lang FROM jobs ORDER BY source_lang, target_lang")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "language pairs", "", err)
	}
	defer rows.Close()
	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Source, &p.Target); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
