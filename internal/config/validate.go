package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTM(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.Storage.BusyTimeoutMS < 0 {
		return errors.New("storage.busy_timeout_ms must not be negative")
	}
	if c.Storage.TMDatabase == c.Storage.SnapshotDatabase {
		return errors.New("storage.tm_db and storage.snapshot_db must differ")
	}
	return nil
}

func (c *Config) validateTM() error {
	switch c.TM.Access {
	case "readwrite", "readonly", "writeonly":
	default:
		return fmt.Errorf("tm.access must be one of readwrite, readonly, writeonly (got %q)", c.TM.Access)
	}
	switch c.TM.Partitioning {
	case "job", "provider", "language":
	default:
		return fmt.Errorf("tm.partitioning must be one of job, provider, language (got %q)", c.TM.Partitioning)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Concurrency <= 0 {
		return errors.New("sync.concurrency must be positive")
	}
	if c.Sync.OnlyLeveraged && len(c.SyncChannels()) == 0 {
		return errors.New("sync.only_leveraged requires sync.channels or snapshot.channels")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if c.Grandfather.Enabled && c.Grandfather.Quality == nil {
		return errors.New("grandfather.quality must be set when grandfather.enabled is true")
	}
	for name, penalty := range map[string]int{
		"repetition.qualified_penalty":      c.Repetition.QualifiedPenalty,
		"repetition.unqualified_penalty":    c.Repetition.UnqualifiedPenalty,
		"repetition.notes_mismatch_penalty": c.Repetition.NotesMismatchPenalty,
		"repetition.group_penalty":          c.Repetition.GroupPenalty,
	} {
		if penalty < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Repetition.HoldInternalLeverage && c.Repetition.ExpectedQuality == nil {
		return errors.New("repetition.expected_quality must be set when repetition.hold_internal_leverage is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
