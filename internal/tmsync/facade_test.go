package tmsync_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tmcore/internal/logging"
	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/snapstore"
	"tmcore/internal/testsupport"
	"tmcore/internal/tmstore"
	"tmcore/internal/tmsync"
)

var enFR = tmstore.MustPair("en", "fr")

func openTM(t *testing.T, name string) *tmstore.Store {
	t.Helper()
	store, err := tmstore.OpenPath(filepath.Join(t.TempDir(), name+".db"), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newFacade(t *testing.T, tm tmsync.TM, opts tmsync.Options) *tmsync.Facade {
	t.Helper()
	f, err := tmsync.New(tm, opts)
	if err != nil {
		t.Fatalf("tmsync.New failed: %v", err)
	}
	return f
}

func collect(t *testing.T, f *tmsync.Facade, ids ...string) []*tmstore.Job {
	t.Helper()
	var jobs []*tmstore.Job
	for job, err := range f.GetTmBlocks(context.Background(), enFR, ids) {
		if err != nil {
			t.Fatalf("GetTmBlocks failed: %v", err)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func TestNewValidatesOptions(t *testing.T) {
	tm := openTM(t, "tm")
	cases := []tmsync.Options{
		{StoreID: "a", Access: "sideways"},
		{StoreID: "a", Partitioning: "weekly"},
		{StoreID: "a", OnlyLeveraged: []string{"app"}},
		{},
	}
	for _, opts := range cases {
		if _, err := tmsync.New(tm, opts); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", opts, err)
		}
	}
}

func TestTOCPartitioning(t *testing.T) {
	tm := openTM(t, "tm")
	testsupport.MustSaveJobs(t, tm,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "One", "Un", 70, 1)),
		testsupport.Job(enFR, "job2", "mt", testsupport.TU("g2", "Two", "Deux", 70, 1)),
		testsupport.Job(enFR, "job3", "human", testsupport.TU("g3", "Three", "Trois", 90, 1)),
	)
	ctx := context.Background()

	byJob, err := newFacade(t, tm, tmsync.Options{StoreID: "local"}).GetTOC(ctx, enFR)
	if err != nil || len(byJob) != 3 {
		t.Fatalf("job partitioning: %v, %v", byJob, err)
	}
	byProvider, err := newFacade(t, tm, tmsync.Options{StoreID: "local", Partitioning: tmsync.PartitionProvider}).GetTOC(ctx, enFR)
	if err != nil || len(byProvider) != 2 || len(byProvider["mt"].Jobs) != 2 {
		t.Fatalf("provider partitioning: %v, %v", byProvider, err)
	}
	byLanguage, err := newFacade(t, tm, tmsync.Options{StoreID: "local", Partitioning: tmsync.PartitionLanguage}).GetTOC(ctx, enFR)
	if err != nil || len(byLanguage) != 1 {
		t.Fatalf("language partitioning: %v, %v", byLanguage, err)
	}
}

func TestWriteBlockReplacesAndDeletes(t *testing.T) {
	tm := openTM(t, "tm")
	f := newFacade(t, tm, tmsync.Options{StoreID: "local", Partitioning: tmsync.PartitionProvider})
	ctx := context.Background()
	testsupport.MustSaveJobs(t, tm,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "One", "Un", 70, 1)),
		testsupport.Job(enFR, "job2", "mt", testsupport.TU("g2", "Two", "Deux", 70, 1)),
	)

	replacement := testsupport.Job(enFR, "job3", "mt", testsupport.TU("g1", "One", "Un!", 80, 2))
	seq := func(yield func(*tmstore.Job, error) bool) { yield(replacement, nil) }
	n, err := f.WriteBlock(ctx, enFR, tmsync.BlockProps{BlockID: "mt", SourceStore: "remote"}, seq)
	if err != nil || n != 1 {
		t.Fatalf("WriteBlock failed: %d, %v", n, err)
	}
	toc, err := f.GetTOC(ctx, enFR)
	if err != nil {
		t.Fatalf("GetTOC failed: %v", err)
	}
	if jobs := toc["mt"].Jobs; len(jobs) != 1 || jobs[0] != "job3" {
		t.Fatalf("expected block to hold only job3, got %v", jobs)
	}
	job, err := tm.GetJob(ctx, "job3")
	if err != nil || job == nil || job.TMStore != "remote" {
		t.Fatalf("expected stamped job, got %#v, %v", job, err)
	}

	if _, err := f.WriteBlock(ctx, enFR, tmsync.BlockProps{BlockID: "mt"}, nil); err != nil {
		t.Fatalf("delete block failed: %v", err)
	}
	entries, err := tm.GetEntries(ctx, enFR, []string{"g1", "g2"})
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected block deletion to remove all tus, got %#v, %v", entries, err)
	}
}

func TestWriteBlockKeepsBlockWhenStaleDeleteFails(t *testing.T) {
	tm := openTM(t, "tm")
	f := newFacade(t, tm, tmsync.Options{StoreID: "local", Partitioning: tmsync.PartitionProvider})
	ctx := context.Background()
	testsupport.MustSaveJobs(t, tm,
		testsupport.Job(enFR, "job1", "mt", testsupport.TU("g1", "One", "Un", 70, 1)),
	)
	testsupport.BlockJobDeletes(t, tm)

	replacement := testsupport.Job(enFR, "job2", "mt", testsupport.TU("g1", "One", "Un!", 80, 2))
	seq := func(yield func(*tmstore.Job, error) bool) { yield(replacement, nil) }
	if n, err := f.WriteBlock(ctx, enFR, tmsync.BlockProps{BlockID: "mt"}, seq); err == nil || n != 0 {
		t.Fatalf("expected WriteBlock to fail without saving, got %d, %v", n, err)
	}
	toc, err := f.GetTOC(ctx, enFR)
	if err != nil {
		t.Fatalf("GetTOC failed: %v", err)
	}
	if jobs := toc["mt"].Jobs; len(jobs) != 1 || jobs[0] != "job1" {
		t.Fatalf("expected block to still hold only job1, got %v", jobs)
	}
}

func TestAccessModes(t *testing.T) {
	tm := openTM(t, "tm")
	ctx := context.Background()
	readOnly := newFacade(t, tm, tmsync.Options{StoreID: "ro", Access: tmsync.AccessReadOnly})
	if _, err := readOnly.WriteBlock(ctx, enFR, tmsync.BlockProps{BlockID: "x"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected read-only rejection, got %v", err)
	}
	writeOnly := newFacade(t, tm, tmsync.Options{StoreID: "wo", Access: tmsync.AccessWriteOnly})
	for _, err := range writeOnly.GetTmBlocks(ctx, enFR, []string{"x"}) {
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected write-only rejection, got %v", err)
		}
	}
}

func TestOnlyLeveragedFiltersToLiveGuids(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tm := testsupport.MustOpenTM(t, cfg)
	snaps := testsupport.MustOpenSnapshots(t, cfg)
	ctx := context.Background()

	if _, err := snaps.SaveResources(ctx, 10, "app", []snapstore.Resource{{RID: "r"}}); err != nil {
		t.Fatalf("SaveResources failed: %v", err)
	}
	if _, err := snaps.SaveSegments(ctx, 10, "app", []snapstore.Segment{{GUID: "g1", RID: "r", SID: "one", NSrc: nstring.FromText("One")}}); err != nil {
		t.Fatalf("SaveSegments failed: %v", err)
	}
	testsupport.MustSaveJobs(t, tm,
		testsupport.Job(enFR, "job1", "mt",
			testsupport.TU("g1", "One", "Un", 70, 1),
			testsupport.TU("orphan", "Gone", "Parti", 70, 1),
		),
		testsupport.Job(enFR, "job2", "mt", testsupport.TU("orphan2", "Old", "Vieux", 70, 1)),
	)

	f := newFacade(t, tm, tmsync.Options{StoreID: "local", OnlyLeveraged: []string{"app"}, Snapshots: snaps})
	jobs := collect(t, f, "job1", "job2")
	if len(jobs) != 1 || len(jobs[0].TUs) != 1 || jobs[0].TUs[0].GUID != "g1" {
		t.Fatalf("unexpected only-leveraged export %#v", jobs)
	}
}
