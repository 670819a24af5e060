package snapstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/snapstore"
	"tmcore/internal/testsupport"
)

func segments(texts map[string]string, order ...string) []snapstore.Segment {
	out := make([]snapstore.Segment, 0, len(order))
	for i, guid := range order {
		out = append(out, snapstore.Segment{
			GUID:  guid,
			RID:   "strings.json",
			SID:   guid,
			NSrc:  nstring.FromText(texts[guid]),
			Order: i,
		})
	}
	return out
}

func collectKeys(t *testing.T, store *snapstore.Store, ts int64, channel string, table snapstore.Table) []string {
	t.Helper()
	var keys []string
	for row, err := range store.GenerateRows(context.Background(), ts, channel, table) {
		if err != nil {
			t.Fatalf("GenerateRows failed: %v", err)
		}
		keys = append(keys, row.Key)
	}
	return keys
}

func TestSaveIdenticalSnapshotWritesNoVersions(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	texts := map[string]string{"a": "Alpha", "b": "Beta"}

	first, err := store.SaveSegments(ctx, 100, "app", segments(texts, "a", "b"))
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if first.Added != 2 {
		t.Fatalf("expected 2 added, got %+v", first)
	}
	second, err := store.SaveSegments(ctx, 200, "app", segments(texts, "a", "b"))
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if second.Added != 0 || second.Changed != 0 || second.Removed != 0 || second.Unchanged != 2 {
		t.Fatalf("expected no new versions, got %+v", second)
	}
}

func TestChangedAndRemovedRowsCloseVersions(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.SaveSegments(ctx, 100, "app", segments(map[string]string{"a": "Alpha", "b": "Beta", "c": "Gamma"}, "a", "b", "c")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	res, err := store.SaveSegments(ctx, 200, "app", segments(map[string]string{"a": "Alpha", "b": "Beta!"}, "a", "b"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if res.Changed != 1 || res.Removed != 1 || res.Unchanged != 1 || res.Added != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := collectKeys(t, store, 150, "app", snapstore.TableSegments); len(got) != 3 {
		t.Fatalf("expected 3 rows valid at 150, got %v", got)
	}
	if got := collectKeys(t, store, 200, "app", snapstore.TableSegments); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected a,b valid at 200, got %v", got)
	}

	var texts []string
	for seg, err := range store.Segments(ctx, 150, "app") {
		if err != nil {
			t.Fatalf("Segments failed: %v", err)
		}
		texts = append(texts, nstring.Text(seg.NSrc))
	}
	if len(texts) != 3 || texts[1] != "Beta" {
		t.Fatalf("expected historical content at 150, got %v", texts)
	}
}

func TestReadBeforeFirstSnapshotIsEmpty(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	if _, err := store.SaveSegments(context.Background(), 100, "app", segments(map[string]string{"a": "Alpha"}, "a")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := collectKeys(t, store, 50, "app", snapstore.TableSegments); len(got) != 0 {
		t.Fatalf("expected empty sequence, got %v", got)
	}
	if got := collectKeys(t, store, 100, "other", snapstore.TableSegments); len(got) != 0 {
		t.Fatalf("expected empty sequence for unknown channel, got %v", got)
	}
}

func TestTOCRequiresBothCounts(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.SaveResources(ctx, 100, "app", []snapstore.Resource{{RID: "strings.json", Modified: 90}}); err != nil {
		t.Fatalf("SaveResources failed: %v", err)
	}
	toc, err := store.GetTOC(ctx)
	if err != nil {
		t.Fatalf("GetTOC failed: %v", err)
	}
	if len(toc) != 0 {
		t.Fatalf("expected no complete snapshots, got %+v", toc)
	}
	if _, ok, _ := store.LatestTimestamp(ctx, "app"); ok {
		t.Fatal("expected no latest timestamp before segments are saved")
	}

	if _, err := store.SaveSegments(ctx, 100, "app", segments(map[string]string{"a": "Alpha"}, "a")); err != nil {
		t.Fatalf("SaveSegments failed: %v", err)
	}
	toc, err = store.GetTOC(ctx)
	if err != nil {
		t.Fatalf("GetTOC failed: %v", err)
	}
	if len(toc) != 1 || toc[0].Channel != "app" || len(toc[0].Timestamps) != 1 || toc[0].Timestamps[0] != 100 {
		t.Fatalf("unexpected toc %+v", toc)
	}
	ts, ok, err := store.LatestTimestamp(ctx, "app")
	if err != nil || !ok || ts != 100 {
		t.Fatalf("unexpected latest timestamp %d %v %v", ts, ok, err)
	}
}

func TestDuplicateKeysAreSkipped(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	rows := []snapstore.Row{
		{Key: "a", Fields: map[string]any{"v": "first"}},
		{Key: "a", Fields: map[string]any{"v": "second"}},
		{Key: "", Fields: map[string]any{"v": "nokey"}},
	}
	res, err := store.SaveSnap(context.Background(), 10, "app", snapstore.TableResources, rows)
	if err != nil {
		t.Fatalf("SaveSnap failed: %v", err)
	}
	if res.Added != 1 || res.Skipped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	row, err := store.GetRow(context.Background(), 10, "app", snapstore.TableResources, "a")
	if err != nil {
		t.Fatalf("GetRow failed: %v", err)
	}
	if row.Fields["v"] != "first" {
		t.Fatalf("expected first occurrence to win, got %v", row.Fields)
	}
}

func TestGetResourceMissingIsNotFound(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.SaveResources(ctx, 100, "app", []snapstore.Resource{{RID: "a.json", Modified: 77}}); err != nil {
		t.Fatalf("SaveResources failed: %v", err)
	}
	res, err := store.GetResource(ctx, 100, "app", "a.json")
	if err != nil || res.Modified != 77 {
		t.Fatalf("unexpected resource %+v, %v", res, err)
	}
	if _, err := store.GetResource(ctx, 100, "app", "missing.json"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResaveAtSameTimestampReplacesVersion(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.SaveSegments(ctx, 100, "app", segments(map[string]string{"a": "Alpha", "b": "Beta"}, "a", "b")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	res, err := store.SaveSegments(ctx, 100, "app", segments(map[string]string{"a": "Alpha2"}, "a"))
	if err != nil {
		t.Fatalf("resave failed: %v", err)
	}
	if res.Changed != 1 || res.Removed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := collectKeys(t, store, 100, "app", snapstore.TableSegments); len(got) != 1 {
		t.Fatalf("expected single row, got %v", got)
	}
	if _, err := store.SaveSegments(ctx, 50, "app", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for out-of-order snapshot, got %v", err)
	}
}

func TestUnchangedSaveBeforeLatestIsRejected(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	rows := segments(map[string]string{"a": "Alpha"}, "a")
	if _, err := store.SaveSegments(ctx, 200, "app", rows); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := store.SaveResources(ctx, 200, "app", nil); err != nil {
		t.Fatalf("save resources failed: %v", err)
	}
	if _, err := store.SaveSegments(ctx, 100, "app", rows); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for identical rows at an earlier ts, got %v", err)
	}
	if _, err := store.SaveResources(ctx, 100, "app", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty resources at an earlier ts, got %v", err)
	}
	toc, err := store.GetTOC(ctx)
	if err != nil {
		t.Fatalf("GetTOC failed: %v", err)
	}
	if len(toc) != 1 || len(toc[0].Timestamps) != 1 || toc[0].Timestamps[0] != 200 {
		t.Fatalf("rejected saves must not reach the TOC, got %+v", toc)
	}
}

func TestConcurrentSavesSameChannelSerialize(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveSegments(ctx, 100, "app", segments(map[string]string{"a": "Alpha", "b": "Beta"}, "a", "b"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent save failed: %v", err)
		}
	}
	if got := collectKeys(t, store, 100, "app", snapstore.TableSegments); len(got) != 2 {
		t.Fatalf("expected exactly one open version per key, got %v", got)
	}
}

func TestLatestGuids(t *testing.T) {
	store := testsupport.MustOpenSnapshots(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, channel := range []string{"app", "web"} {
		if _, err := store.SaveResources(ctx, 10, channel, []snapstore.Resource{{RID: "r"}}); err != nil {
			t.Fatalf("SaveResources failed: %v", err)
		}
	}
	if _, err := store.SaveSegments(ctx, 10, "app", segments(map[string]string{"a": "A", "b": "B"}, "a", "b")); err != nil {
		t.Fatalf("SaveSegments failed: %v", err)
	}
	if _, err := store.SaveSegments(ctx, 10, "web", segments(map[string]string{"c": "C"}, "c")); err != nil {
		t.Fatalf("SaveSegments failed: %v", err)
	}
	guids, err := store.LatestGuids(ctx, []string{"app", "missing"})
	if err != nil {
		t.Fatalf("LatestGuids failed: %v", err)
	}
	if len(guids) != 2 {
		t.Fatalf("expected guids from app only, got %v", guids)
	}
	if _, ok := guids["c"]; ok {
		t.Fatal("web guid leaked into result")
	}
}
