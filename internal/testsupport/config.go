package testsupport

import (
	"path/filepath"
	"testing"

	"tmcore/internal/config"
)

// NewConfig returns the default config rooted in a per-test temp dir with a
// short busy timeout. Each edit runs against the config before it is returned.
func NewConfig(t testing.TB, edits ...func(*config.Config)) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.BusyTimeoutMS = 2000
	for _, edit := range edits {
		edit(&cfg)
	}
	return &cfg
}
