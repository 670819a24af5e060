package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

const priorJobs = `[
  {
    "jobGuid": "job1",
    "sourceLang": "en",
    "targetLang": "fr",
    "translationProvider": "human",
    "status": "done",
    "tus": [
      {"guid": "g1", "rid": "menu", "sid": "file", "nsrc": ["File"], "ntgt": ["Fichier"], "q": 90, "ts": 100},
      {"guid": "g2", "rid": "menu", "sid": "edit", "nsrc": ["Edit"], "ntgt": ["Modifier"], "q": 90, "ts": 100}
    ]
  }
]`

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out := mustRunCLI(t, env, "config", "validate")
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, filepath.Join(env.dataDir, "tm.db"))

	target := filepath.Join(t.TempDir(), "config.toml")
	out = mustRunCLI(t, env, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.configPath); err == nil {
		t.Fatalf("expected init to refuse overwriting without --overwrite")
	}
}

func TestExitCodeSeparatesBadConfigFromFailures(t *testing.T) {
	env := setupCLITestEnv(t, "[tm]\naccess = \"append\"\n")
	_, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2 for bad config, got %d", code)
	}
	if code := exitCode(services.Wrap(services.ErrStorage, "tmstore", "save jobs", "", errors.New("disk I/O error"))); code != 1 {
		t.Fatalf("expected exit code 1 for storage failure, got %d", code)
	}
	if code := exitCode(nil); code != 0 {
		t.Fatalf("expected exit code 0 without error, got %d", code)
	}
}

func TestConfigShowPrintsEffectiveTOML(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out := mustRunCLI(t, env, "config", "show")
	requireContains(t, out, "[storage]")
	requireContains(t, out, "busy_timeout_ms = 2000")
	requireContains(t, out, "[logging]")
}

func TestTMImportAndQuery(t *testing.T) {
	env := setupCLITestEnv(t, "")
	jobs := env.writeFile(t, "jobs.json", priorJobs)

	out := mustRunCLI(t, env, "tm", "import", jobs)
	requireContains(t, out, "Imported 1 jobs (2 TUs)")

	out = mustRunCLI(t, env, "--json", "tm", "pairs")
	var pairs []string
	if err := json.Unmarshal([]byte(out), &pairs); err != nil {
		t.Fatalf("decode pairs: %v\n%s", err, out)
	}
	if len(pairs) != 1 || pairs[0] != "en|fr" {
		t.Fatalf("unexpected pairs %v", pairs)
	}

	out = mustRunCLI(t, env, "--json", "tm", "match", "en|fr", "File")
	var matches []tmstore.TU
	if err := json.Unmarshal([]byte(out), &matches); err != nil {
		t.Fatalf("decode matches: %v\n%s", err, out)
	}
	if len(matches) != 1 || matches[0].GUID != "g1" || matches[0].Rank != 1 {
		t.Fatalf("unexpected matches %+v", matches)
	}

	out = mustRunCLI(t, env, "tm", "show", "job1")
	requireContains(t, out, "human")
	requireContains(t, out, "Fichier")

	out = mustRunCLI(t, env, "tm", "search", "en|fr", "--source", "Ed")
	requireContains(t, out, "g2")

	out = mustRunCLI(t, env, "--json", "tm", "stats", "en|fr")
	var stats tmstore.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.TUs != 2 || stats.Jobs != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	mustRunCLI(t, env, "tm", "delete-job", "job1")
	if _, _, err := runCLI(t, []string{"tm", "show", "job1"}, env.configPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected deleted job to be missing, got %v", err)
	}
}

func TestTMHealthReportsBothDatabases(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out := mustRunCLI(t, env, "tm", "health")
	requireContains(t, out, "Translation memory")
	requireContains(t, out, "Snapshots")
	requireContains(t, out, "0001_jobs")
}

func TestSnapSaveTOCAndRows(t *testing.T) {
	env := setupCLITestEnv(t, "")
	snap := env.writeFile(t, "snap.json", `{
  "resources": [{"rid": "menu", "modified": 500}],
  "segments": [
    {"guid": "u1", "rid": "menu", "sid": "file", "nsrc": ["File"]},
    {"guid": "u2", "rid": "menu", "sid": "edit", "nsrc": ["Edit"]}
  ]
}`)

	out := mustRunCLI(t, env, "snap", "save", "app", snap, "--ts", "1000")
	requireContains(t, out, "resources: 1 added")
	requireContains(t, out, "segments:  2 added")

	out = mustRunCLI(t, env, "snap", "save", "app", snap, "--ts", "2000")
	requireContains(t, out, "segments:  0 added, 0 changed, 0 removed, 2 unchanged")

	out = mustRunCLI(t, env, "snap", "toc")
	requireContains(t, out, "app")

	out = mustRunCLI(t, env, "--json", "snap", "rows", "app")
	var rows []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode rows: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0].Key != "u1" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestLeverageRunCommitsRepetitions(t *testing.T) {
	env := setupCLITestEnv(t, "")
	mustRunCLI(t, env, "tm", "import", env.writeFile(t, "jobs.json", priorJobs))
	batch := env.writeFile(t, "batch.json", `[
  {"guid": "n1", "rid": "toolbar", "sid": "file", "nsrc": ["File"]},
  {"guid": "n2", "rid": "toolbar", "sid": "view", "nsrc": ["View"]}
]`)

	out := mustRunCLI(t, env, "leverage", "run", "en|fr", batch)
	requireContains(t, out, "1 of 2 TUs leveraged")
	requireContains(t, out, "1 unresolved")

	out = mustRunCLI(t, env, "--json", "tm", "search", "en|fr", "--guid", "n1")
	var tus []tmstore.TU
	if err := json.Unmarshal([]byte(out), &tus); err != nil {
		t.Fatalf("decode search: %v\n%s", err, out)
	}
	if len(tus) != 1 || tus[0].TranslationProvider != "Repetition" || tus[0].ParentGUID != "g1" {
		t.Fatalf("unexpected leveraged TU %+v", tus)
	}
}

func TestSyncExportImportAndRun(t *testing.T) {
	env := setupCLITestEnv(t, "")
	mustRunCLI(t, env, "tm", "import", env.writeFile(t, "jobs.json", priorJobs))

	out := mustRunCLI(t, env, "sync", "toc", "en|fr")
	requireContains(t, out, "job1")

	exported := mustRunCLI(t, env, "sync", "export", "en|fr")
	if lines := strings.Count(strings.TrimSpace(exported), "\n") + 1; lines != 1 {
		t.Fatalf("expected one exported job, got %d lines", lines)
	}

	other := setupCLITestEnv(t, "")
	out = mustRunCLI(t, other, "sync", "import", "en|fr", env.writeFile(t, "block.jsonl", exported), "--block", "job1", "--source-store", "local")
	requireContains(t, out, "Wrote 1 jobs to block job1")

	dstPath := filepath.Join(t.TempDir(), "remote.db")
	out = mustRunCLI(t, env, "sync", "run", "--to", dstPath)
	requireContains(t, out, "1 blocks written")

	dst, err := tmstore.OpenPath(dstPath, logging.NewNop())
	if err != nil {
		t.Fatalf("open destination: %v", err)
	}
	defer dst.Close()
	job, err := dst.GetJob(context.Background(), "job1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil || job.TMStore != "local" || len(job.TUs) != 2 {
		t.Fatalf("unexpected synced job %+v", job)
	}
}
