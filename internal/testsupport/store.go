package testsupport

import (
	"context"
	"testing"
	"time"

	"tmcore/internal/config"
	"tmcore/internal/logging"
	"tmcore/internal/nstring"
	"tmcore/internal/snapstore"
	"tmcore/internal/sqlitedb"
	"tmcore/internal/tmstore"
)

// MustOpenTM opens a tmstore.Store for tests and registers cleanup.
func MustOpenTM(t testing.TB, cfg *config.Config) *tmstore.Store {
	t.Helper()

	store, err := tmstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("tmstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenSnapshots opens a snapstore.Store for tests and registers cleanup.
func MustOpenSnapshots(t testing.TB, cfg *config.Config) *snapstore.Store {
	t.Helper()

	store, err := snapstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("snapstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BlockJobDeletes installs a trigger on the store's database that aborts any
// delete from the jobs table.
func BlockJobDeletes(t testing.TB, store *tmstore.Store) {
	t.Helper()

	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, store.Path(), time.Second)
	if err != nil {
		t.Fatalf("sqlitedb.Open: %v", err)
	}
	defer db.Close()
	const trigger = `CREATE TRIGGER block_job_deletes BEFORE DELETE ON jobs
		BEGIN SELECT RAISE(ABORT, 'job deletes are blocked'); END`
	if _, err := db.ExecContext(ctx, trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

// MustSaveJobs persists jobs or fails the test.
func MustSaveJobs(t testing.TB, store *tmstore.Store, jobs ...*tmstore.Job) {
	t.Helper()

	if err := store.SaveJobs(context.Background(), jobs); err != nil {
		t.Fatalf("SaveJobs: %v", err)
	}
}

// Job builds a done job for pair with the given TUs.
func Job(pair tmstore.Pair, jobGUID, provider string, tus ...tmstore.TU) *tmstore.Job {
	for i := range tus {
		tus[i].JobGUID = jobGUID
		if tus[i].TranslationProvider == "" {
			tus[i].TranslationProvider = provider
		}
	}
	return &tmstore.Job{
		JobGUID:             jobGUID,
		SourceLang:          pair.Source,
		TargetLang:          pair.Target,
		TranslationProvider: provider,
		Status:              tmstore.JobDone,
		TUs:                 tus,
	}
}

// TU builds a translated TU with plain-text source and target.
func TU(guid, src, tgt string, q int, ts int64) tmstore.TU {
	tu := tmstore.TU{
		GUID: guid,
		RID:  "res",
		SID:  guid,
		NSrc: nstring.FromText(src),
		Q:    q,
		TS:   ts,
	}
	if tgt != "" {
		tu.NTgt = nstring.FromText(tgt)
	}
	return tu
}
