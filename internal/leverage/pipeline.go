package leverage

import (
	"context"
	"log/slog"

	"tmcore/internal/logging"
	"tmcore/internal/provider"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// JobSaver commits finished jobs.
type JobSaver interface {
	SaveJobs(ctx context.Context, jobs []*tmstore.Job) error
}

// Pipeline runs leverage providers in order over a batch of TUs.
type Pipeline struct {
	providers []provider.Provider
	tm        JobSaver
	logger    *slog.Logger
}

// Result reports the outcome of a pipeline run.
type Result struct {
	// Jobs holds the jobs each provider ended with, in provider order.
	Jobs []*tmstore.Job `json:"jobs"`
	// Held are the in-flight holdouts, each naming the parent guid whose
	// commit it waits on. They are not part of any job's TUs.
	Held []tmstore.TU `json:"held"`
	// Unresolved are the TUs no provider claimed, in input order.
	Unresolved []tmstore.TU `json:"unresolved"`
}

// Committed returns the done jobs of the run.
func (r Result) Committed() []*tmstore.Job {
	var out []*tmstore.Job
	for _, job := range r.Jobs {
		if job.Status == tmstore.JobDone {
			out = append(out, job)
		}
	}
	return out
}

// NewPipeline builds a pipeline committing to tm.
func NewPipeline(tm JobSaver, logger *slog.Logger, providers ...provider.Provider) *Pipeline {
	return &Pipeline{
		providers: providers,
		tm:        tm,
		logger:    logging.NewComponentLogger(logger, "leverage"),
	}
}

// Run offers the TUs of a batch to each provider in turn. TUs a provider
// claims are removed before the next one runs. Done jobs are committed in one
// write.
func (p *Pipeline) Run(ctx context.Context, pair tmstore.Pair, tus []tmstore.TU) (Result, error) {
	ctx = services.WithPair(ctx, pair.String())
	logger := logging.WithContext(ctx, p.logger)
	remaining := append([]tmstore.TU(nil), tus...)

	var result Result
	for _, prov := range p.providers {
		if len(remaining) == 0 {
			break
		}
		created, err := prov.Create(ctx, &tmstore.Job{
			SourceLang: pair.Source,
			TargetLang: pair.Target,
			TUs:        remaining,
		})
		if err != nil {
			return Result{}, err
		}
		if created.Status == tmstore.JobCancelled {
			logger.Debug("provider claimed nothing", logging.Provider(prov.ID()))
			continue
		}
		claimed := make(map[string]struct{}, len(created.TUs))
		for _, tu := range created.TUs {
			claimed[tu.GUID] = struct{}{}
			if tu.InFlight {
				result.Held = append(result.Held, tu)
			}
		}
		kept := remaining[:0]
		for _, tu := range remaining {
			if _, ok := claimed[tu.GUID]; !ok {
				kept = append(kept, tu)
			}
		}
		remaining = kept

		job, err := prov.Start(ctx, created)
		if err != nil {
			return Result{}, err
		}
		result.Jobs = append(result.Jobs, job)
		logger.Info("leverage provider finished",
			logging.Provider(prov.ID()),
			logging.JobGUID(job.JobGUID),
			logging.String("status", string(job.Status)),
			logging.Int("claimed", len(created.TUs)),
			logging.Int("resolved", len(job.TUs)),
		)
	}
	result.Unresolved = remaining

	if committed := result.Committed(); len(committed) > 0 {
		if err := p.tm.SaveJobs(ctx, committed); err != nil {
			logging.ErrorWithContext(logger, "leverage commit failed", "leverage_commit_failed",
				logging.Int("jobs", len(committed)),
				logging.String(logging.FieldErrorHint, "rerun the batch; no leveraged TU was saved"),
				logging.Error(err),
			)
			return Result{}, err
		}
	}
	logger.Info("leverage complete",
		logging.Int("requested", len(tus)),
		logging.Int("jobs", len(result.Committed())),
		logging.Int("held", len(result.Held)),
		logging.Int("unresolved", len(result.Unresolved)),
	)
	return result, nil
}
