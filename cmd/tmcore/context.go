package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"tmcore/internal/config"
	"tmcore/internal/logging"
	"tmcore/internal/snapstore"
	"tmcore/internal/tmstore"
	"tmcore/internal/tmsync"
)

const lockRetryDelay = 100 * time.Millisecond

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	tm        *tmstore.Store
	snapshots *snapstore.Store
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) tmStore() (*tmstore.Store, error) {
	if c.tm != nil {
		return c.tm, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := tmstore.Open(cfg, c.log())
	if err != nil {
		return nil, fmt.Errorf("open tm store: %w", err)
	}
	c.tm = store
	return store, nil
}

func (c *commandContext) snapshotStore() (*snapstore.Store, error) {
	if c.snapshots != nil {
		return c.snapshots, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := snapstore.Open(cfg, c.log())
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	c.snapshots = store
	return store, nil
}

// facade exposes the local TM through the configured sync options.
func (c *commandContext) facade() (*tmsync.Facade, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.tmStore()
	if err != nil {
		return nil, err
	}
	opts := tmsync.Options{
		StoreID:      cfg.TM.StoreID,
		Access:       tmsync.Access(cfg.TM.Access),
		Partitioning: tmsync.Partitioning(cfg.TM.Partitioning),
		Logger:       c.log(),
	}
	if cfg.Sync.OnlyLeveraged {
		snaps, err := c.snapshotStore()
		if err != nil {
			return nil, err
		}
		opts.OnlyLeveraged = cfg.SyncChannels()
		opts.Snapshots = snaps
	}
	return tmsync.New(store, opts)
}

// withWriteLock runs fn while holding the cross-process write lock.
func (c *commandContext) withWriteLock(ctx context.Context, fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire write lock: %s is held by another process", cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.log().Warn("failed to release write lock", logging.Error(err))
		}
	}()
	return fn()
}

func (c *commandContext) close() error {
	var errs []error
	if c.tm != nil {
		errs = append(errs, c.tm.Close())
		c.tm = nil
	}
	if c.snapshots != nil {
		errs = append(errs, c.snapshots.Close())
		c.snapshots = nil
	}
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parsePairArg(value string) (tmstore.Pair, error) {
	pair, err := tmstore.ParsePair(value)
	if err != nil {
		return tmstore.Pair{}, fmt.Errorf("invalid language pair %q (expected src|tgt): %w", value, err)
	}
	return pair, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
