package tmstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/sqlitedb"
)

type preparedJob struct {
	job   *Job
	pair  Pair
	rows  [][]any
	guids []string
}

func (s *Store) prepareJob(job *Job) (preparedJob, error) {
	if job == nil {
		return preparedJob{}, services.Validation("tmstore", "nil job")
	}
	if strings.TrimSpace(job.JobGUID) == "" {
		return preparedJob{}, services.Validation("tmstore", "job guid is required")
	}
	pair, err := job.Pair()
	if err != nil {
		return preparedJob{}, services.Wrap(services.ErrValidation, "tmstore", "save jobs", job.JobGUID, err)
	}
	if job.Status == "" {
		job.Status = JobDone
	}
	if !job.Status.Valid() {
		return preparedJob{}, services.Validation("tmstore", fmt.Sprintf("job %s: unknown status %q", job.JobGUID, job.Status))
	}
	prepared := preparedJob{job: job, pair: pair}
	seen := make(map[string]struct{}, len(job.TUs))
	for i, tu := range job.TUs {
		if strings.TrimSpace(tu.GUID) == "" {
			return preparedJob{}, services.Validation("tmstore", fmt.Sprintf("job %s: tu %d has no guid", job.JobGUID, i))
		}
		if _, dup := seen[tu.GUID]; dup {
			s.logger.Warn("duplicate guid in job; keeping last",
				logging.JobGUID(job.JobGUID),
				logging.String("guid", tu.GUID),
			)
		}
		seen[tu.GUID] = struct{}{}
		values, err := tuValues(tu, job.JobGUID, i)
		if err != nil {
			return preparedJob{}, services.Wrap(services.ErrValidation, "tmstore", "save jobs", tu.GUID, err)
		}
		prepared.rows = append(prepared.rows, values)
		prepared.guids = append(prepared.guids, tu.GUID)
	}
	return prepared, nil
}

// SaveJobs atomically replaces each job's metadata and TUs, then recomputes
// rank for every guid the jobs held before or hold now.
func (s *Store) SaveJobs(ctx context.Context, jobs []*Job) error {
	return s.ReplaceJobs(ctx, jobs, nil)
}

// ReplaceJobs saves jobs and deletes the jobs named in remove within one
// transaction. Either every save and delete lands or none does. Unknown
// guids in remove are ignored; a guid both saved and removed is rejected.
func (s *Store) ReplaceJobs(ctx context.Context, jobs []*Job, remove []string) error {
	if len(jobs) == 0 && len(remove) == 0 {
		return nil
	}
	ctx = sqlitedb.EnsureContext(ctx)
	prepared := make([]preparedJob, 0, len(jobs))
	saved := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		pj, err := s.prepareJob(job)
		if err != nil {
			return err
		}
		prepared = append(prepared, pj)
		saved[pj.job.JobGUID] = struct{}{}
	}
	for _, jobGUID := range remove {
		if strings.TrimSpace(jobGUID) == "" {
			return services.Validation("tmstore", "job guid to delete is required")
		}
		if _, ok := saved[jobGUID]; ok {
			return services.Validation("tmstore", fmt.Sprintf("job %s is both saved and deleted", jobGUID))
		}
	}
	tables := make(map[Pair]string)
	for _, pj := range prepared {
		if _, ok := tables[pj.pair]; ok {
			continue
		}
		table, err := s.ensurePair(ctx, pj.pair)
		if err != nil {
			return services.Wrap(services.ErrStorage, "tmstore", "save jobs", pj.pair.String(), err)
		}
		tables[pj.pair] = table
	}

	now := s.now().UTC()
	var tuCount, deleted int
	err := sqlitedb.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		tuCount, deleted = 0, 0
		touched := make(map[string]map[string]struct{})
		touch := func(table string, guids ...string) {
			set, ok := touched[table]
			if !ok {
				set = make(map[string]struct{})
				touched[table] = set
			}
			guidSet(set, guids...)
		}
		for _, pj := range prepared {
			table := tables[pj.pair]
			prevTable, found, err := jobTable(ctx, tx, pj.job.JobGUID)
			if err != nil {
				return err
			}
			if found {
				old, err := deleteJobRows(ctx, tx, prevTable, pj.job.JobGUID)
				if err != nil {
					return err
				}
				touch(prevTable, old...)
			}
			if pj.job.UpdatedAt.IsZero() {
				pj.job.UpdatedAt = now
			}
			if err := upsertJob(ctx, tx, pj); err != nil {
				return err
			}
			if err := insertRows(ctx, tx, table, pj.rows); err != nil {
				return err
			}
			touch(table, pj.guids...)
			tuCount += len(pj.rows)
		}
		for _, jobGUID := range remove {
			table, found, err := deleteJob(ctx, tx, jobGUID)
			if err != nil {
				return err
			}
			if found {
				touch(table.name, table.guids...)
				deleted++
			}
		}
		for table, set := range touched {
			if err := recomputeRank(ctx, tx, table, setKeys(set)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "tmstore", "save jobs", "", err)
	}
	s.logger.Debug("jobs saved",
		logging.Int("jobs", len(prepared)),
		logging.Int("tus", tuCount),
		logging.Int("jobs_deleted", deleted),
	)
	return nil
}

func jobTable(ctx context.Context, q sqlitedb.Querier, jobGUID string) (string, bool, error) {
	var source, target string
	err := q.QueryRowContext(ctx, "SELECT source_lang, target_lang FROM jobs WHERE job_guid = ?", jobGUID).Scan(&source, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup job %s: %w", jobGUID, err)
	}
	return Pair{Source: source, Target: target}.table(), true, nil
}

// deleteJobRows removes a job's TU rows and returns the guids they held.
func deleteJobRows(ctx context.Context, q sqlitedb.Querier, table, jobGUID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT guid FROM "+table+" WHERE job_guid = ?", jobGUID)
	if err != nil {
		if sqlitedb.IsNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read guids of job %s: %w", jobGUID, err)
	}
	var guids []string
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			rows.Close()
			return nil, err
		}
		guids = append(guids, guid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE job_guid = ?", jobGUID); err != nil {
		return nil, fmt.Errorf("delete tus of job %s: %w", jobGUID, err)
	}
	return guids, nil
}

func upsertJob(ctx context.Context, q sqlitedb.Querier, pj preparedJob) error {
	props, err := nullableJSON(pj.job.Props, len(pj.job.Props) == 0)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}
	stmt := sqlitedb.Builder.Insert("jobs").
		Columns(jobColumns...).
		Values(
			pj.job.JobGUID, pj.pair.Source, pj.pair.Target, pj.job.TranslationProvider, string(pj.job.Status),
			pj.job.UpdatedAt.UnixMilli(), pj.job.TMStore, nullableFloat(pj.job.EstimatedCost), props,
		).
		Suffix(`ON CONFLICT(job_guid) DO UPDATE SET
			source_lang = excluded.source_lang,
			target_lang = excluded.target_lang,
			translation_provider = excluded.translation_provider,
			status = excluded.status,
			updated_at = excluded.updated_at,
			tm_store = excluded.tm_store,
			estimated_cost = excluded.estimated_cost,
			props = excluded.props`)
	if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
		return fmt.Errorf("upsert job %s: %w", pj.job.JobGUID, err)
	}
	return nil
}

func insertRows(ctx context.Context, q sqlitedb.Querier, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	// 20 columns per row keeps each statement well under the variable limit.
	for _, chunk := range sqlitedb.Chunk(rows, 200) {
		stmt := sqlitedb.Builder.Insert(table).Options("OR REPLACE").Columns(insertColumns...)
		for _, values := range chunk {
			stmt = stmt.Values(values...)
		}
		if _, err := sqlitedb.ExecBuilder(ctx, q, stmt); err != nil {
			return fmt.Errorf("insert tus into %s: %w", table, err)
		}
	}
	return nil
}

// DeleteJob removes a job and its TUs and recomputes rank for the guids it
// held. Deleting an unknown job is a no-op.
func (s *Store) DeleteJob(ctx context.Context, jobGUID string) error {
	ctx = sqlitedb.EnsureContext(ctx)
	var removed int
	err := sqlitedb.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, found, err := deleteJob(ctx, tx, jobGUID)
		if err != nil || !found {
			return err
		}
		removed = len(rows.guids)
		return recomputeRank(ctx, tx, rows.name, rows.guids)
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "tmstore", "delete job", jobGUID, err)
	}
	s.logger.Debug("job deleted", logging.JobGUID(jobGUID), logging.Int("tus", removed))
	return nil
}

// removedRows names the pair table a deleted job lived in and the guids it held.
type removedRows struct {
	name  string
	guids []string
}

// deleteJob drops a job's TU rows and its jobs entry. Rank is left to the caller.
func deleteJob(ctx context.Context, q sqlitedb.Querier, jobGUID string) (removedRows, bool, error) {
	table, found, err := jobTable(ctx, q, jobGUID)
	if err != nil || !found {
		return removedRows{}, false, err
	}
	guids, err := deleteJobRows(ctx, q, table, jobGUID)
	if err != nil {
		return removedRows{}, false, err
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM jobs WHERE job_guid = ?", jobGUID); err != nil {
		return removedRows{}, false, fmt.Errorf("delete job %s: %w", jobGUID, err)
	}
	return removedRows{name: table, guids: guids}, true, nil
}

// DeleteTuKeys removes individual TU rows, recomputes rank for their guids,
// and bumps updated_at on every job that lost a row.
func (s *Store) DeleteTuKeys(ctx context.Context, pair Pair, keys []TUKey) error {
	if len(keys) == 0 {
		return nil
	}
	ctx = sqlitedb.EnsureContext(ctx)
	table, exists, err := s.pairTableExists(ctx, pair)
	if err != nil {
		return services.Wrap(services.ErrStorage, "tmstore", "delete tu keys", pair.String(), err)
	}
	if !exists {
		return nil
	}
	now := s.now().UTC().UnixMilli()
	err = sqlitedb.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		guids := make(map[string]struct{})
		jobs := make(map[string]struct{})
		for _, key := range keys {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE guid = ? AND job_guid = ?", key.GUID, key.JobGUID)
			if err != nil {
				return fmt.Errorf("delete tu %s/%s: %w", key.JobGUID, key.GUID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				guidSet(guids, key.GUID)
				guidSet(jobs, key.JobGUID)
			}
		}
		if len(jobs) > 0 {
			stmt := sqlitedb.Builder.Update("jobs").
				Set("updated_at", now).
				Where(sq.Eq{"job_guid": setKeys(jobs)})
			if _, err := sqlitedb.ExecBuilder(ctx, tx, stmt); err != nil {
				return fmt.Errorf("touch jobs: %w", err)
			}
		}
		return recomputeRank(ctx, tx, table, setKeys(guids))
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "tmstore", "delete tu keys", pair.String(), err)
	}
	return nil
}
