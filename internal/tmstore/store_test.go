package tmstore_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/testsupport"
	"tmcore/internal/tmstore"
)

var enFR = tmstore.MustPair("en", "fr")

func allRows(t *testing.T, store *tmstore.Store, pair tmstore.Pair, guid string) []tmstore.TU {
	t.Helper()
	tus, err := store.Search(context.Background(), pair, tmstore.Filter{GUIDs: []string{guid}, AllRanks: true, Limit: 1000})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	return tus
}

func rankOf(t *testing.T, rows []tmstore.TU, jobGUID string) int {
	t.Helper()
	for _, row := range rows {
		if row.JobGUID == jobGUID {
			return row.Rank
		}
	}
	t.Fatalf("no row for job %s", jobGUID)
	return 0
}

func TestRankPrefersNewerTimestampOnEqualQuality(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "Hello", "Bonjour", 80, 100)),
		testsupport.Job(enFR, "job2", "mt", testsupport.TU("g1", "Hello", "Salut", 80, 200)),
	)

	rows := allRows(t, store, enFR, "g1")
	if got := rankOf(t, rows, "job2"); got != 1 {
		t.Fatalf("expected job2 rank 1, got %d", got)
	}
	if got := rankOf(t, rows, "job1"); got != 2 {
		t.Fatalf("expected job1 rank 2, got %d", got)
	}

	entries, err := store.GetEntries(context.Background(), enFR, []string{"g1"})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 1 || nstring.Text(entries[0].NTgt) != "Salut" {
		t.Fatalf("unexpected entries %#v", entries)
	}
}

func TestRankTieBreaksOnJobGUID(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job-b", "mt", testsupport.TU("g1", "Hello", "B", 80, 100)),
		testsupport.Job(enFR, "job-a", "mt", testsupport.TU("g1", "Hello", "A", 80, 100)),
	)
	rows := allRows(t, store, enFR, "g1")
	if rankOf(t, rows, "job-a") != 1 || rankOf(t, rows, "job-b") != 2 {
		t.Fatalf("expected job-a to win the tie, got %#v", rows)
	}
}

func TestRankInvariantHoldsAcrossRandomBatches(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	rng := rand.New(rand.NewPCG(7, 11))
	guids := []string{"g1", "g2", "g3", "g4"}
	for j := 0; j < 12; j++ {
		jobGUID := fmt.Sprintf("job-%02d", j)
		var tus []tmstore.TU
		for _, guid := range guids {
			if rng.IntN(3) == 0 {
				continue
			}
			tus = append(tus, testsupport.TU(guid, "src "+guid, "tgt", rng.IntN(3)*10+60, int64(rng.IntN(4))))
		}
		testsupport.MustSaveJobs(t, store, testsupport.Job(enFR, jobGUID, "mt", tus...))
		if j%4 == 3 {
			if err := store.DeleteJob(context.Background(), fmt.Sprintf("job-%02d", j-2)); err != nil {
				t.Fatalf("DeleteJob failed: %v", err)
			}
		}
	}

	for _, guid := range guids {
		rows := allRows(t, store, enFR, guid)
		if len(rows) == 0 {
			continue
		}
		expected := append([]tmstore.TU(nil), rows...)
		sort.Slice(expected, func(i, k int) bool {
			a, b := expected[i], expected[k]
			if a.Q != b.Q {
				return a.Q > b.Q
			}
			if a.TS != b.TS {
				return a.TS > b.TS
			}
			return a.JobGUID < b.JobGUID
		})
		for i, row := range expected {
			if row.Rank != i+1 {
				t.Fatalf("guid %s: row %s has rank %d, want %d", guid, row.JobGUID, row.Rank, i+1)
			}
		}
	}
}

func TestDeleteJobRestoresPriorRanks(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "base", "mt",
			testsupport.TU("g1", "One", "Un", 70, 10),
			testsupport.TU("g2", "Two", "Deux", 70, 10),
		),
	)
	before := allRows(t, store, enFR, "g1")

	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "better", "human", testsupport.TU("g1", "One", "Un!", 95, 20)),
	)
	if rankOf(t, allRows(t, store, enFR, "g1"), "base") != 2 {
		t.Fatal("expected base row to be demoted")
	}
	if err := store.DeleteJob(ctx, "better"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	after := allRows(t, store, enFR, "g1")
	if len(after) != len(before) || after[0].Rank != before[0].Rank || after[0].JobGUID != "base" {
		t.Fatalf("rank state not restored: before=%#v after=%#v", before, after)
	}
	job, err := store.GetJob(ctx, "better")
	if err != nil || job != nil {
		t.Fatalf("expected deleted job to be absent, got %#v, %v", job, err)
	}
}

func TestReplaceJobsAppliesNothingWhenADeleteFails(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "old", "mt", testsupport.TU("g1", "One", "Un", 70, 10)),
	)
	testsupport.BlockJobDeletes(t, store)

	replacement := testsupport.Job(enFR, "new", "mt", testsupport.TU("g1", "One", "Un!", 90, 20))
	err := store.ReplaceJobs(ctx, []*tmstore.Job{replacement}, []string{"old"})
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if job, err := store.GetJob(ctx, "new"); err != nil || job != nil {
		t.Fatalf("expected replacement to be rolled back, got %#v, %v", job, err)
	}
	old, err := store.GetJob(ctx, "old")
	if err != nil || old == nil || len(old.TUs) != 1 {
		t.Fatalf("expected old job intact, got %#v, %v", old, err)
	}
	rows := allRows(t, store, enFR, "g1")
	if len(rows) != 1 || rows[0].JobGUID != "old" || rows[0].Rank != 1 {
		t.Fatalf("unexpected rows after failed replace: %#v", rows)
	}
}

func TestReplaceJobsSavesAndDeletesTogether(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "old", "human", testsupport.TU("g1", "One", "Un", 95, 10)),
	)
	replacement := testsupport.Job(enFR, "new", "mt", testsupport.TU("g1", "One", "Un!", 70, 20))
	if err := store.ReplaceJobs(ctx, []*tmstore.Job{replacement}, []string{"old", "missing"}); err != nil {
		t.Fatalf("ReplaceJobs failed: %v", err)
	}
	rows := allRows(t, store, enFR, "g1")
	if len(rows) != 1 || rows[0].JobGUID != "new" || rows[0].Rank != 1 {
		t.Fatalf("expected new job to hold rank 1 alone, got %#v", rows)
	}
	err := store.ReplaceJobs(ctx, []*tmstore.Job{replacement}, []string{"new"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for a job both saved and deleted, got %v", err)
	}
}

func TestSaveJobsReplacesPriorRows(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt",
			testsupport.TU("g1", "One", "Un", 70, 10),
			testsupport.TU("g2", "Two", "Deux", 70, 10),
		),
	)
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g2", "Two", "Deux", 75, 11)),
	)

	job, err := store.GetJob(ctx, "job1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil || len(job.TUs) != 1 || job.TUs[0].GUID != "g2" || job.TUs[0].Q != 75 {
		t.Fatalf("unexpected job after resave: %#v", job)
	}
	entries, err := store.GetEntries(ctx, enFR, []string{"g1", "g2"})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].GUID != "g2" {
		t.Fatalf("expected only g2 to remain, got %#v", entries)
	}
}

func TestGetEntriesOmitsUnknownGuids(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt",
			testsupport.TU("g1", "One", "Un", 70, 10),
			testsupport.TU("g2", "Two", "Deux", 70, 10),
		),
	)
	entries, err := store.GetEntries(context.Background(), enFR, []string{"g2", "missing", "g1", "g2"})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].GUID != "g2" || entries[1].GUID != "g1" {
		t.Fatalf("unexpected entries %#v", entries)
	}

	none, err := store.GetEntries(context.Background(), tmstore.MustPair("en", "ja"), []string{"g1"})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no entries for unknown pair, got %#v, %v", none, err)
	}
}

func TestGetExactMatchesComparesFlattenedSource(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	withPH := tmstore.TU{
		GUID: "g1",
		SID:  "greeting",
		NSrc: nstring.String{nstring.Lit("Hello "), nstring.PH("x", "{name}"), nstring.Lit("!")},
		NTgt: nstring.String{nstring.Lit("Bonjour "), nstring.PH("x", "{name}"), nstring.Lit(" !")},
		Q:    80,
		TS:   5,
	}
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt", withPH, testsupport.TU("g2", "Hello world!", "Bonjour le monde !", 80, 5)),
	)

	query := nstring.String{nstring.Lit("Hello "), nstring.PH("x", "%s"), nstring.Lit("!")}
	matches, err := store.GetExactMatches(context.Background(), enFR, query)
	if err != nil {
		t.Fatalf("GetExactMatches failed: %v", err)
	}
	if len(matches) != 1 || matches[0].GUID != "g1" {
		t.Fatalf("unexpected matches %#v", matches)
	}
	if !nstring.Equal(matches[0].NSrc, withPH.NSrc) {
		t.Fatalf("nsrc did not round-trip: %#v", matches[0].NSrc)
	}
}

func TestConcurrentFirstWritesShareInitialization(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	pair := tmstore.MustPair("de", "it")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := testsupport.Job(pair, fmt.Sprintf("job-%d", i), "mt",
				testsupport.TU("shared", "Hallo", "Ciao", 60+i, int64(i)))
			errs <- store.SaveJobs(context.Background(), []*tmstore.Job{job})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent SaveJobs failed: %v", err)
		}
	}

	rows := allRows(t, store, pair, "shared")
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	if rankOf(t, rows, "job-7") != 1 {
		t.Fatalf("expected highest quality job to rank first: %#v", rows)
	}
}

func TestDeleteTuKeysRecomputesAndTouchesJobs(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	old := testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "One", "Un", 90, 10))
	old.UpdatedAt = time.UnixMilli(1000).UTC()
	testsupport.MustSaveJobs(t, store, old,
		testsupport.Job(enFR, "job2", "mt", testsupport.TU("g1", "One", "Une", 70, 10)),
	)

	if err := store.DeleteTuKeys(ctx, enFR, []tmstore.TUKey{{GUID: "g1", JobGUID: "job1"}}); err != nil {
		t.Fatalf("DeleteTuKeys failed: %v", err)
	}
	rows := allRows(t, store, enFR, "g1")
	if len(rows) != 1 || rows[0].JobGUID != "job2" || rows[0].Rank != 1 {
		t.Fatalf("unexpected rows after delete: %#v", rows)
	}
	job, err := store.GetJob(ctx, "job1")
	if err != nil || job == nil {
		t.Fatalf("GetJob failed: %#v, %v", job, err)
	}
	if !job.UpdatedAt.After(time.UnixMilli(1000)) {
		t.Fatalf("expected updated_at bump, got %v", job.UpdatedAt)
	}
}

func TestListJobsPairsAndStats(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	ctx := context.Background()
	pending := testsupport.Job(enFR, "job2", "vendor", testsupport.TU("g2", "Two", "", 0, 0))
	pending.Status = tmstore.JobPending
	testsupport.MustSaveJobs(t, store,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "One", "Un", 70, 10)),
		pending,
		testsupport.Job(tmstore.MustPair("en-us", "de"), "job3", "mt", testsupport.TU("g1", "One", "Eins", 70, 10)),
	)

	pairs, err := store.LanguagePairs(ctx)
	if err != nil {
		t.Fatalf("LanguagePairs failed: %v", err)
	}
	if len(pairs) != 2 || pairs[0].String() != "en|fr" || pairs[1].String() != "en-US|de" {
		t.Fatalf("unexpected pairs %v", pairs)
	}

	jobs, err := store.ListJobs(ctx, enFR)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("ListJobs: %#v, %v", jobs, err)
	}

	stats, err := store.Stats(ctx, enFR)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Jobs != 2 || stats.TUs != 2 || stats.Translated != 1 || stats.JobsByStatus[tmstore.JobPending] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TUsByProvider["vendor"] != 1 {
		t.Fatalf("unexpected provider counts %+v", stats.TUsByProvider)
	}
}

func TestSearchFilters(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	a := testsupport.TU("g1", "Open file", "Ouvrir le fichier", 80, 1)
	a.Channel = "app"
	b := testsupport.TU("g2", "Close file", "Fermer le fichier", 60, 1)
	b.Channel = "web"
	testsupport.MustSaveJobs(t, store, testsupport.Job(enFR, "job1", "mt", a, b))

	minQ := 70
	tus, err := store.Search(context.Background(), enFR, tmstore.Filter{SourceContains: "file", MinQ: &minQ})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(tus) != 1 || tus[0].GUID != "g1" {
		t.Fatalf("unexpected search result %#v", tus)
	}
	tus, err = store.Search(context.Background(), enFR, tmstore.Filter{Channel: "web", TargetContains: "Fermer"})
	if err != nil || len(tus) != 1 || tus[0].GUID != "g2" {
		t.Fatalf("unexpected channel search %#v, %v", tus, err)
	}
}

func TestSaveJobsValidation(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	err := store.SaveJobs(context.Background(), []*tmstore.Job{{SourceLang: "en", TargetLang: "fr"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	bad := testsupport.Job(enFR, "job1", "mt", testsupport.TU("", "x", "y", 1, 1))
	if err := store.SaveJobs(context.Background(), []*tmstore.Job{bad}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing guid, got %v", err)
	}
}

func TestHealthReportsSchema(t *testing.T) {
	store := testsupport.MustOpenTM(t, testsupport.NewConfig(t))
	health, err := store.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.SchemaVersion != "0001_jobs" || health.Integrity != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}
}
