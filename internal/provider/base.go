package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tmcore/internal/logging"
	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// Translator produces translated TUs for a created job.
type Translator interface {
	Translate(ctx context.Context, job *tmstore.Job) ([]tmstore.TU, error)
}

// AsyncTranslator hands work to an external system. Start leaves the job
// pending after Submit; completion arrives through Continue.
type AsyncTranslator interface {
	Translator
	Submit(ctx context.Context, job *tmstore.Job) error
}

// Continuer completes pending jobs. done reports whether the async work has
// finished; tus are the results when it has.
type Continuer interface {
	Continue(ctx context.Context, job *tmstore.Job) (tus []tmstore.TU, done bool, err error)
}

// Claimer narrows a job's TUs at create time to the ones the provider will
// handle. Leverage providers resolve their matches here.
type Claimer interface {
	Claim(ctx context.Context, job *tmstore.Job) ([]tmstore.TU, error)
}

// EntryLookup returns the current best TM entries for guids.
type EntryLookup interface {
	GetEntries(ctx context.Context, pair tmstore.Pair, guids []string) ([]tmstore.TU, error)
}

// Provider is the job lifecycle every provider exposes.
type Provider interface {
	ID() string
	Create(ctx context.Context, job *tmstore.Job) (*tmstore.Job, error)
	Start(ctx context.Context, job *tmstore.Job) (*tmstore.Job, error)
	Continue(ctx context.Context, job *tmstore.Job) (*tmstore.Job, error)
}

// Base implements the job state machine around a Translator.
type Base struct {
	opts       Options
	tm         EntryLookup
	translator Translator
	logger     *slog.Logger
	now        func() time.Time
}

// NewBase validates opts and wires translator into the state machine. tm may
// be nil when identical-entry suppression is not wanted.
func NewBase(opts Options, tm EntryLookup, translator Translator, logger *slog.Logger) (*Base, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if translator == nil {
		return nil, services.Validation("provider", opts.ID+": translator is required")
	}
	return &Base{
		opts:       opts,
		tm:         tm,
		translator: translator,
		logger:     logging.NewComponentLogger(logger, "provider").With(logging.Provider(opts.ID)),
		now:        time.Now,
	}, nil
}

// ID returns the provider id.
func (b *Base) ID() string { return b.opts.ID }

// Create builds a job for the TUs of request this provider accepts. The job
// is created when any TU survives and cancelled otherwise.
func (b *Base) Create(ctx context.Context, request *tmstore.Job) (*tmstore.Job, error) {
	if request == nil {
		return nil, services.Validation("provider", "nil job request")
	}
	pair, err := request.Pair()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "provider", "create", b.opts.ID, err)
	}
	job := request.Clone()
	if job.JobGUID == "" {
		job.JobGUID = uuid.NewString()
	}
	job.SourceLang, job.TargetLang = pair.Source, pair.Target
	job.TranslationProvider = b.opts.ID
	job.UpdatedAt = b.now().UTC()
	ctx = services.WithJobGUID(services.WithPair(ctx, pair.String()), job.JobGUID)
	logger := logging.WithContext(ctx, b.logger)

	var accepted []tmstore.TU
	if b.opts.Supports(pair) {
		for _, tu := range request.TUs {
			if b.opts.Accepts(tu) {
				accepted = append(accepted, tu)
			}
		}
	} else {
		logger.Debug("language pair not supported")
	}
	if claimer, ok := b.translator.(Claimer); ok && len(accepted) > 0 {
		job.TUs = accepted
		if accepted, err = claimer.Claim(ctx, job); err != nil {
			return nil, err
		}
	}
	job.TUs = accepted
	for i := range job.TUs {
		job.TUs[i].JobGUID = job.JobGUID
	}
	job.EstimatedCost = b.opts.EstimateCost(job.TUs)
	if len(job.TUs) == 0 {
		job.Status = tmstore.JobCancelled
	} else {
		job.Status = tmstore.JobCreated
	}
	logger.Debug("job created",
		logging.String("status", string(job.Status)),
		logging.Int("requested", len(request.TUs)),
		logging.Int("accepted", len(job.TUs)),
	)
	return job, nil
}

// Start moves a created job to pending for async translators, or translates
// it synchronously to done. A job whose results are all suppressed ends
// cancelled.
func (b *Base) Start(ctx context.Context, job *tmstore.Job) (*tmstore.Job, error) {
	if job == nil {
		return nil, services.Validation("provider", "nil job")
	}
	if job.Status != tmstore.JobCreated {
		return nil, &StateTransitionError{Action: "start", Status: job.Status}
	}
	ctx = services.WithJobGUID(ctx, job.JobGUID)
	if async, ok := b.translator.(AsyncTranslator); ok {
		if err := async.Submit(ctx, job); err != nil {
			return nil, err
		}
		out := job.Clone()
		out.TUs = job.TUs
		out.Status = tmstore.JobPending
		out.UpdatedAt = b.now().UTC()
		return out, nil
	}
	tus, err := b.translator.Translate(ctx, job)
	if err != nil {
		return nil, err
	}
	return b.complete(ctx, job, tus)
}

// Continue advances a pending job. Without a Continuer the transition is only
// validated and the job is returned unchanged.
func (b *Base) Continue(ctx context.Context, job *tmstore.Job) (*tmstore.Job, error) {
	if job == nil {
		return nil, services.Validation("provider", "nil job")
	}
	if job.Status != tmstore.JobPending {
		return nil, &StateTransitionError{Action: "continue", Status: job.Status}
	}
	continuer, ok := b.translator.(Continuer)
	if !ok {
		return job, nil
	}
	ctx = services.WithJobGUID(ctx, job.JobGUID)
	tus, done, err := continuer.Continue(ctx, job)
	if err != nil {
		return nil, err
	}
	if !done {
		return job, nil
	}
	return b.complete(ctx, job, tus)
}

func (b *Base) complete(ctx context.Context, job *tmstore.Job, tus []tmstore.TU) (*tmstore.Job, error) {
	out := job.Clone()
	out.UpdatedAt = b.now().UTC()
	results := make([]tmstore.TU, 0, len(tus))
	for _, tu := range tus {
		if tu.InFlight {
			continue
		}
		tu.JobGUID = job.JobGUID
		if tu.TranslationProvider == "" {
			tu.TranslationProvider = b.opts.ID
		}
		if tu.TS == 0 {
			tu.TS = out.UpdatedAt.UnixMilli()
		}
		results = append(results, tu)
	}
	if !b.opts.SaveIdenticalEntries {
		var err error
		if results, err = b.dropIdentical(ctx, job, results); err != nil {
			return nil, err
		}
	}
	out.TUs = results
	if len(results) == 0 {
		out.Status = tmstore.JobCancelled
	} else {
		out.Status = tmstore.JobDone
	}
	logging.WithContext(ctx, b.logger).Debug("job completed",
		logging.String("status", string(out.Status)),
		logging.Int("tus", len(results)),
	)
	return out, nil
}

// dropIdentical removes results whose target and quality equal the current
// rank-1 entry for their guid.
func (b *Base) dropIdentical(ctx context.Context, job *tmstore.Job, tus []tmstore.TU) ([]tmstore.TU, error) {
	if b.tm == nil || len(tus) == 0 {
		return tus, nil
	}
	pair, err := job.Pair()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "provider", "start", job.JobGUID, err)
	}
	guids := make([]string, 0, len(tus))
	for _, tu := range tus {
		guids = append(guids, tu.GUID)
	}
	current, err := b.tm.GetEntries(ctx, pair, guids)
	if err != nil {
		return nil, err
	}
	best := make(map[string]tmstore.TU, len(current))
	for _, tu := range current {
		best[tu.GUID] = tu
	}
	kept := tus[:0]
	dropped := 0
	for _, tu := range tus {
		if existing, ok := best[tu.GUID]; ok && existing.Q == tu.Q && existing.Translated() && nstring.Equal(existing.NTgt, tu.NTgt) {
			dropped++
			continue
		}
		kept = append(kept, tu)
	}
	if dropped > 0 {
		b.logger.Debug("identical entries dropped", logging.Int("dropped", dropped))
	}
	return kept, nil
}
