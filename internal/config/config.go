package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"tmcore/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage contains SQLite database configuration.
type Storage struct {
	TMDatabase       string `toml:"tm_db"`
	SnapshotDatabase string `toml:"snapshot_db"`
	BusyTimeoutMS    int    `toml:"busy_timeout_ms"`
}

// TM describes the local translation memory store and how it is exposed to
// synchronization.
type TM struct {
	StoreID      string `toml:"store_id"`
	Access       string `toml:"access"`
	Partitioning string `toml:"partitioning"`
}

// Snapshot describes the local snapshot store.
type Snapshot struct {
	StoreID  string   `toml:"store_id"`
	Channels []string `toml:"channels"`
}

// Sync contains configuration for TM block export and synchronization.
type Sync struct {
	OnlyLeveraged bool     `toml:"only_leveraged"`
	Channels      []string `toml:"channels"`
	Concurrency   int      `toml:"concurrency"`
}

// Provider holds options shared by every leverage provider.
type Provider struct {
	ID                   string              `toml:"id"`
	Enabled              bool                `toml:"enabled"`
	Quality              *int                `toml:"quality"`
	SupportedPairs       map[string][]string `toml:"supported_pairs"`
	CostPerWord          float64             `toml:"cost_per_word"`
	CostPerMChar         float64             `toml:"cost_per_mchar"`
	SaveIdenticalEntries bool                `toml:"save_identical_entries"`
}

// Grandfather configures leverage from prior translated resource versions.
type Grandfather struct {
	Provider
}

// Repetition configures exact TM reuse and internal leverage.
type Repetition struct {
	Provider
	QualifiedPenalty     int  `toml:"qualified_penalty"`
	UnqualifiedPenalty   int  `toml:"unqualified_penalty"`
	NotesMismatchPenalty int  `toml:"notes_mismatch_penalty"`
	GroupPenalty         int  `toml:"group_penalty"`
	HoldInternalLeverage bool `toml:"hold_internal_leverage"`
	ExpectedQuality      *int `toml:"expected_quality"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tmcore.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Storage: SQLite database file names and busy timeout
//   - TM: translation memory store identity, access mode, and block partitioning
//   - Snapshot: snapshot store identity and tracked channels
//   - Sync: only-leveraged export and synchronization concurrency
//   - Grandfather, Repetition: leverage provider options
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Storage     Storage     `toml:"storage"`
	TM          TM          `toml:"tm"`
	Snapshot    Snapshot    `toml:"snapshot"`
	Sync        Sync        `toml:"sync"`
	Grandfather Grandfather `toml:"grandfather"`
	Repetition  Repetition  `toml:"repetition"`
	Logging     Logging     `toml:"logging"`
}

const (
	defaultConfigFile = "~/.config/tmcore/config.toml"
	projectConfigFile = "tmcore.toml"
)

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigFile)
}

// Load reads the config at path, or searches the per-user then the project
// file when path is empty. It reports the path it settled on and whether that
// file existed; a missing file yields the defaults. The result is normalized
// and validated.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "load", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "load", resolved, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "load", resolved, err)
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	fallback, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	project, err := filepath.Abs(projectConfigFile)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{fallback, project} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return fallback, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TMDatabasePath returns the absolute path of the translation memory database.
func (c *Config) TMDatabasePath() string {
	return resolveInDir(c.Paths.DataDir, c.Storage.TMDatabase)
}

// SnapshotDatabasePath returns the absolute path of the snapshot database.
func (c *Config) SnapshotDatabasePath() string {
	return resolveInDir(c.Paths.DataDir, c.Storage.SnapshotDatabase)
}

// LockPath returns the path of the cross-process write lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tmcore.lock")
}

// SyncChannels returns the channels that bound only-leveraged exports,
// falling back to the snapshot channel list.
func (c *Config) SyncChannels() []string {
	if len(c.Sync.Channels) > 0 {
		return append([]string(nil), c.Sync.Channels...)
	}
	return append([]string(nil), c.Snapshot.Channels...)
}

func resolveInDir(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// expandPath resolves a leading "~" to the home directory and makes the
// result absolute. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if rest, ok := strings.CutPrefix(value, "~"); ok && (rest == "" || rest[0] == '/' || rest[0] == '\\') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = home + string(filepath.Separator) + strings.TrimLeft(rest, "/\\")
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the same expansion used for configured paths.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
