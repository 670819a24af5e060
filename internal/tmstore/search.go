package tmstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

// Filter narrows a Search. Zero values are ignored.
type Filter struct {
	GUIDs          []string
	JobGUID        string
	RID            string
	SID            string
	Channel        string
	Group          string
	Provider       string
	SourceContains string
	TargetContains string
	MinQ           *int
	MaxQ           *int
	TranslatedOnly bool
	// AllRanks includes superseded rows instead of rank-1 rows only.
	AllRanks bool
	Limit    int
	Offset   int
}

const defaultSearchLimit = 100

func (f Filter) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if !f.AllRanks {
		b = b.Where(sq.Eq{"rank": 1})
	}
	if len(f.GUIDs) > 0 {
		b = b.Where(sq.Eq{"guid": f.GUIDs})
	}
	for column, value := range map[string]string{
		"job_guid":             f.JobGUID,
		"rid":                  f.RID,
		"sid":                  f.SID,
		"channel":              f.Channel,
		"tu_group":             f.Group,
		"translation_provider": f.Provider,
	} {
		if value != "" {
			b = b.Where(sq.Eq{column: value})
		}
	}
	if f.SourceContains != "" {
		b = b.Where(sq.Like{"flat_src": "%" + f.SourceContains + "%"})
	}
	if f.TargetContains != "" {
		b = b.Where(sq.Like{"flat_tgt": "%" + f.TargetContains + "%"})
	}
	if f.MinQ != nil {
		b = b.Where(sq.GtOrEq{"q": *f.MinQ})
	}
	if f.MaxQ != nil {
		b = b.Where(sq.LtOrEq{"q": *f.MaxQ})
	}
	if f.TranslatedOnly {
		b = b.Where(sq.NotEq{"ntgt": nil})
	}
	return b
}

// Search returns TUs of a pair matching f, ordered by guid then rank.
func (s *Store) Search(ctx context.Context, pair Pair, f Filter) ([]TU, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "search", pair.String(), err)
	}
	if !exists {
		return nil, nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query := f.apply(sqlitedb.Builder.Select(tuColumns...).From(table)).
		OrderBy("guid", "rank").
		Limit(uint64(limit))
	if f.Offset > 0 {
		query = query.Offset(uint64(f.Offset))
	}
	rows, err := sqlitedb.QueryBuilder(ctx, s.db, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "search", pair.String(), err)
	}
	tus, err := collectTUs(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "tmstore", "search", pair.String(), err)
	}
	return tus, nil
}

// Stats summarizes TU and job counts for a pair.
func (s *Store) Stats(ctx context.Context, pair Pair) (Stats, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	stats := Stats{
		Pair:          pair.String(),
		JobsByStatus:  make(map[JobStatus]int),
		TUsByProvider: make(map[string]int),
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM jobs WHERE source_lang = ? AND target_lang = ? GROUP BY status",
		pair.Source, pair.Target)
	if err != nil {
		return stats, services.Wrap(services.ErrStorage, "tmstore", "stats", pair.String(), err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.JobsByStatus[JobStatus(status)] = count
		stats.Jobs += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil || !exists {
		return stats, err
	}
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(1), COUNT(DISTINCT guid),
		        COALESCE(SUM(CASE WHEN ntgt IS NOT NULL AND rank = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(in_flight), 0)
		 FROM %s`, table)).Scan(&stats.TUs, &stats.Guids, &stats.Translated, &stats.InFlight)
	if err != nil {
		return stats, services.Wrap(services.ErrStorage, "tmstore", "stats", pair.String(), err)
	}

	providerRows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT translation_provider, COUNT(1) FROM %s GROUP BY translation_provider", table))
	if err != nil {
		return stats, services.Wrap(services.ErrStorage, "tmstore", "stats", pair.String(), err)
	}
	defer providerRows.Close()
	for providerRows.Next() {
		var provider string
		var count int
		if err := providerRows.Scan(&provider, &count); err != nil {
			return stats, err
		}
		stats.TUsByProvider[provider] = count
	}
	return stats, providerRows.Err()
}
