package tmsync

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// Report summarizes a Sync run.
type Report struct {
	Pairs         int `json:"pairs"`
	BlocksWritten int `json:"blocksWritten"`
	BlocksDeleted int `json:"blocksDeleted"`
	BlocksSkipped int `json:"blocksSkipped"`
	Jobs          int `json:"jobs"`
}

// Sync copies every block of src whose modified time differs from dst and
// deletes dst blocks that originated from src but no longer exist there.
// Pairs are processed concurrently, at most concurrency at a time. With no
// pairs given, every pair of src is synced.
func Sync(ctx context.Context, src, dst *Facade, pairs []tmstore.Pair, concurrency int) (Report, error) {
	if src.partitioning != dst.partitioning {
		return Report{}, services.Validation("tmsync", "source and destination partitioning differ")
	}
	if err := src.canRead(); err != nil {
		return Report{}, err
	}
	if err := dst.canWrite(); err != nil {
		return Report{}, err
	}
	if len(pairs) == 0 {
		var err error
		if pairs, err = src.LanguagePairs(ctx); err != nil {
			return Report{}, err
		}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		report = Report{Pairs: len(pairs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, pair := range pairs {
		g.Go(func() error {
			pr, err := syncPair(gctx, src, dst, pair)
			mu.Lock()
			report.BlocksWritten += pr.BlocksWritten
			report.BlocksDeleted += pr.BlocksDeleted
			report.BlocksSkipped += pr.BlocksSkipped
			report.Jobs += pr.Jobs
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	src.logger.Info("sync finished",
		logging.String("destination", dst.storeID),
		logging.Int("pairs", report.Pairs),
		logging.Int("blocks_written", report.BlocksWritten),
		logging.Int("blocks_deleted", report.BlocksDeleted),
	)
	return report, err
}

func syncPair(ctx context.Context, src, dst *Facade, pair tmstore.Pair) (Report, error) {
	var report Report
	srcTOC, err := src.GetTOC(ctx, pair)
	if err != nil {
		return report, err
	}
	dstTOC, err := dst.GetTOC(ctx, pair)
	if err != nil {
		return report, err
	}

	ids := make([]string, 0, len(srcTOC))
	for id := range srcTOC {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if current, ok := dstTOC[id]; ok && current.Modified.Equal(srcTOC[id].Modified) {
			report.BlocksSkipped++
			continue
		}
		n, err := dst.WriteBlock(ctx, pair, BlockProps{BlockID: id, SourceStore: src.storeID}, src.GetTmBlocks(ctx, pair, []string{id}))
		if err != nil {
			return report, err
		}
		report.BlocksWritten++
		report.Jobs += n
	}

	stale, err := dst.blocksFrom(ctx, pair, dstTOC, src.storeID)
	if err != nil {
		return report, err
	}
	for _, id := range stale {
		if _, ok := srcTOC[id]; ok {
			continue
		}
		if _, err := dst.WriteBlock(ctx, pair, BlockProps{BlockID: id}, nil); err != nil {
			return report, err
		}
		report.BlocksDeleted++
	}
	return report, nil
}

// blocksFrom returns the ids of blocks whose jobs were all written from storeID.
func (f *Facade) blocksFrom(ctx context.Context, pair tmstore.Pair, toc map[string]BlockInfo, storeID string) ([]string, error) {
	jobs, err := f.tm.ListJobs(ctx, pair)
	if err != nil {
		return nil, err
	}
	origin := make(map[string]string, len(jobs))
	for _, job := range jobs {
		origin[job.JobGUID] = job.TMStore
	}
	var ids []string
	for id, info := range toc {
		mirrored := len(info.Jobs) > 0
		for _, jobGUID := range info.Jobs {
			if origin[jobGUID] != storeID {
				mirrored = false
				break
			}
		}
		if mirrored {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
