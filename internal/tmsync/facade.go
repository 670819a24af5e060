package tmsync

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tmcore/internal/logging"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// Access controls which directions a facade allows.
type Access string

const (
	AccessReadWrite Access = "readwrite"
	AccessReadOnly  Access = "readonly"
	AccessWriteOnly Access = "writeonly"
)

// Partitioning decides how jobs are grouped into blocks.
type Partitioning string

const (
	PartitionJob      Partitioning = "job"
	PartitionProvider Partitioning = "provider"
	PartitionLanguage Partitioning = "language"
)

// languageBlockID names the single block of a pair under language partitioning.
const languageBlockID = "all"

// TM is the subset of the TU store the facade depends on.
type TM interface {
	ListJobs(ctx context.Context, pair tmstore.Pair) ([]*tmstore.Job, error)
	GetJob(ctx context.Context, jobGUID string) (*tmstore.Job, error)
	ReplaceJobs(ctx context.Context, jobs []*tmstore.Job, remove []string) error
	LanguagePairs(ctx context.Context) ([]tmstore.Pair, error)
}

// GuidSource reports which guids are live in the latest snapshots of channels.
type GuidSource interface {
	LatestGuids(ctx context.Context, channels []string) (map[string]struct{}, error)
}

// Options configure a Facade.
type Options struct {
	StoreID      string
	Access       Access
	Partitioning Partitioning
	// OnlyLeveraged restricts exports to guids present in the latest
	// snapshot of these channels. Requires Snapshots.
	OnlyLeveraged []string
	Snapshots     GuidSource
	Logger        *slog.Logger
}

// BlockInfo describes one block of a pair.
type BlockInfo struct {
	Modified time.Time `json:"modified"`
	Jobs     []string  `json:"jobs"`
}

// BlockProps identify a block being written.
type BlockProps struct {
	BlockID string
	// SourceStore stamps every written job's TMStore.
	SourceStore string
}

// Facade exposes a TU store as blocks.
type Facade struct {
	tm            TM
	storeID       string
	access        Access
	partitioning  Partitioning
	onlyLeveraged []string
	snapshots     GuidSource
	logger        *slog.Logger
}

// New validates opts and returns a Facade over tm.
func New(tm TM, opts Options) (*Facade, error) {
	if tm == nil {
		return nil, services.Validation("tmsync", "tm store is required")
	}
	storeID := strings.TrimSpace(opts.StoreID)
	if storeID == "" {
		return nil, services.Validation("tmsync", "store id is required")
	}
	access := opts.Access
	if access == "" {
		access = AccessReadWrite
	}
	switch access {
	case AccessReadWrite, AccessReadOnly, AccessWriteOnly:
	default:
		return nil, services.Validation("tmsync", fmt.Sprintf("invalid access mode %q", opts.Access))
	}
	partitioning := opts.Partitioning
	if partitioning == "" {
		partitioning = PartitionJob
	}
	switch partitioning {
	case PartitionJob, PartitionProvider, PartitionLanguage:
	default:
		return nil, services.Validation("tmsync", fmt.Sprintf("invalid partitioning %q", opts.Partitioning))
	}
	if len(opts.OnlyLeveraged) > 0 && opts.Snapshots == nil {
		return nil, services.Validation("tmsync", "only-leveraged export requires a snapshot store")
	}
	return &Facade{
		tm:            tm,
		storeID:       storeID,
		access:        access,
		partitioning:  partitioning,
		onlyLeveraged: append([]string(nil), opts.OnlyLeveraged...),
		snapshots:     opts.Snapshots,
		logger:        logging.NewComponentLogger(opts.Logger, "tmsync").With(logging.String("store_id", storeID)),
	}, nil
}

// StoreID returns the facade's store identity.
func (f *Facade) StoreID() string { return f.storeID }

// Partitioning returns the facade's block scheme.
func (f *Facade) Partitioning() Partitioning { return f.partitioning }

func (f *Facade) blockID(job *tmstore.Job) string {
	switch f.partitioning {
	case PartitionProvider:
		if job.TranslationProvider == "" {
			return "unknown"
		}
		return job.TranslationProvider
	case PartitionLanguage:
		return languageBlockID
	default:
		return job.JobGUID
	}
}

func (f *Facade) canRead() error {
	if f.access == AccessWriteOnly {
		return services.Validation("tmsync", fmt.Sprintf("store %s is write-only", f.storeID))
	}
	return nil
}

func (f *Facade) canWrite() error {
	if f.access == AccessReadOnly {
		return services.Validation("tmsync", fmt.Sprintf("store %s is read-only", f.storeID))
	}
	return nil
}

// LanguagePairs lists the pairs present in the underlying store.
func (f *Facade) LanguagePairs(ctx context.Context) ([]tmstore.Pair, error) {
	return f.tm.LanguagePairs(ctx)
}

// GetTOC maps each block id of pair to its newest job update and member jobs.
func (f *Facade) GetTOC(ctx context.Context, pair tmstore.Pair) (map[string]BlockInfo, error) {
	jobs, err := f.tm.ListJobs(ctx, pair)
	if err != nil {
		return nil, err
	}
	toc := make(map[string]BlockInfo)
	for _, job := range jobs {
		id := f.blockID(job)
		info := toc[id]
		info.Jobs = append(info.Jobs, job.JobGUID)
		if job.UpdatedAt.After(info.Modified) {
			info.Modified = job.UpdatedAt
		}
		toc[id] = info
	}
	for id, info := range toc {
		sort.Strings(info.Jobs)
		toc[id] = info
	}
	return toc, nil
}

// GetTmBlocks streams the jobs, with TUs, of the requested blocks. In
// only-leveraged mode TUs whose guid is absent from the latest snapshots are
// dropped and jobs left empty are skipped.
func (f *Facade) GetTmBlocks(ctx context.Context, pair tmstore.Pair, ids []string) iter.Seq2[*tmstore.Job, error] {
	return func(yield func(*tmstore.Job, error) bool) {
		if err := f.canRead(); err != nil {
			yield(nil, err)
			return
		}
		toc, err := f.GetTOC(ctx, pair)
		if err != nil {
			yield(nil, err)
			return
		}
		var live map[string]struct{}
		if len(f.onlyLeveraged) > 0 {
			if live, err = f.snapshots.LatestGuids(ctx, f.onlyLeveraged); err != nil {
				yield(nil, err)
				return
			}
		}
		for _, id := range ids {
			info, ok := toc[id]
			if !ok {
				f.logger.Debug("requested block not found", logging.Block(id), logging.Pair(pair.String()))
				continue
			}
			for _, jobGUID := range info.Jobs {
				job, err := f.tm.GetJob(ctx, jobGUID)
				if err != nil {
					yield(nil, err)
					return
				}
				if job == nil {
					continue
				}
				if live != nil {
					job.TUs = filterLive(job.TUs, live)
					if len(job.TUs) == 0 {
						continue
					}
				}
				if !yield(job, nil) {
					return
				}
			}
		}
	}
}

func filterLive(tus []tmstore.TU, live map[string]struct{}) []tmstore.TU {
	kept := tus[:0]
	for _, tu := range tus {
		if _, ok := live[tu.GUID]; ok {
			kept = append(kept, tu)
		}
	}
	return kept
}

// WriteBlock replaces the contents of a block. With a non-nil seq every
// streamed job is saved, stamped with props.SourceStore, and jobs previously
// in the block but absent from the stream are deleted. A nil seq deletes the
// whole block. Saves and deletes commit together or not at all.
func (f *Facade) WriteBlock(ctx context.Context, pair tmstore.Pair, props BlockProps, seq iter.Seq2[*tmstore.Job, error]) (int, error) {
	if err := f.canWrite(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(props.BlockID) == "" {
		return 0, services.Validation("tmsync", "block id is required")
	}
	toc, err := f.GetTOC(ctx, pair)
	if err != nil {
		return 0, err
	}
	previous := toc[props.BlockID].Jobs
	logger := f.logger.With(logging.Pair(pair.String()), logging.Block(props.BlockID))

	var jobs []*tmstore.Job
	streamed := make(map[string]struct{})
	if seq != nil {
		for job, err := range seq {
			if err != nil {
				return 0, err
			}
			if job == nil {
				continue
			}
			if jobPair, err := job.Pair(); err != nil || jobPair != pair {
				return 0, services.Validation("tmsync", fmt.Sprintf("job %s does not belong to pair %s", job.JobGUID, pair))
			}
			if props.SourceStore != "" {
				job.TMStore = props.SourceStore
			}
			streamed[job.JobGUID] = struct{}{}
			jobs = append(jobs, job)
		}
	}
	var stale []string
	for _, jobGUID := range previous {
		if _, ok := streamed[jobGUID]; !ok {
			stale = append(stale, jobGUID)
		}
	}
	if err := f.tm.ReplaceJobs(ctx, jobs, stale); err != nil {
		return 0, err
	}
	logger.Info("block written", logging.Int("jobs_saved", len(jobs)), logging.Int("jobs_deleted", len(stale)))
	return len(jobs), nil
}
