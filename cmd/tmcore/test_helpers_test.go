package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	dataDir    string
	configPath string
}

// setupCLITestEnv isolates HOME and writes a config whose databases and logs
// live under a fresh temp dir. extra is appended verbatim to the TOML.
func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	env := &cliTestEnv{baseDir: t.TempDir()}
	env.dataDir = filepath.Join(env.baseDir, "data")
	home := filepath.Join(env.baseDir, "home")
	t.Setenv("HOME", home)
	t.Setenv("TMCORE_DATA_DIR", "")

	env.configPath = filepath.Join(home, ".config", "tmcore", "config.toml")
	if err := os.MkdirAll(filepath.Dir(env.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	var cfg strings.Builder
	fmt.Fprintf(&cfg, "[paths]\ndata_dir = %q\nlog_dir = %q\n\n", env.dataDir, filepath.Join(env.baseDir, "logs"))
	cfg.WriteString("[storage]\nbusy_timeout_ms = 2000\n\n[logging]\nlevel = \"error\"\n\n")
	cfg.WriteString(extra)
	if err := os.WriteFile(env.configPath, []byte(cfg.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("tmcore %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
