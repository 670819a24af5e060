package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeTM()
	c.normalizeSnapshot()
	c.normalizeProviders()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("TMCORE_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.TMDatabase = strings.TrimSpace(c.Storage.TMDatabase)
	if c.Storage.TMDatabase == "" {
		c.Storage.TMDatabase = defaultTMDatabase
	}
	c.Storage.SnapshotDatabase = strings.TrimSpace(c.Storage.SnapshotDatabase)
	if c.Storage.SnapshotDatabase == "" {
		c.Storage.SnapshotDatabase = defaultSnapshotDatabase
	}
	if c.Storage.BusyTimeoutMS == 0 {
		c.Storage.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) normalizeTM() {
	c.TM.StoreID = strings.TrimSpace(c.TM.StoreID)
	if c.TM.StoreID == "" {
		c.TM.StoreID = defaultTMStoreID
	}
	c.TM.Access = strings.ToLower(strings.TrimSpace(c.TM.Access))
	if c.TM.Access == "" {
		c.TM.Access = defaultTMAccess
	}
	c.TM.Partitioning = strings.ToLower(strings.TrimSpace(c.TM.Partitioning))
	if c.TM.Partitioning == "" {
		c.TM.Partitioning = defaultTMPartitioning
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = defaultSyncConcurrency
	}
	c.Sync.Channels = trimList(c.Sync.Channels)
}

func (c *Config) normalizeSnapshot() {
	c.Snapshot.StoreID = strings.TrimSpace(c.Snapshot.StoreID)
	if c.Snapshot.StoreID == "" {
		c.Snapshot.StoreID = defaultSnapshotStoreID
	}
	c.Snapshot.Channels = trimList(c.Snapshot.Channels)
}

func (c *Config) normalizeProviders() {
	c.Grandfather.ID = strings.TrimSpace(c.Grandfather.ID)
	if c.Grandfather.ID == "" {
		c.Grandfather.ID = defaultGrandfatherID
	}
	c.Repetition.ID = strings.TrimSpace(c.Repetition.ID)
	if c.Repetition.ID == "" {
		c.Repetition.ID = defaultRepetitionID
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
