package leverage

import (
	"context"
	"log/slog"

	"tmcore/internal/logging"
	"tmcore/internal/nstring"
	"tmcore/internal/provider"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// ExactMatcher finds rank-1 TM entries whose flattened source equals nsrc.
type ExactMatcher interface {
	provider.EntryLookup
	GetExactMatches(ctx context.Context, pair tmstore.Pair, nsrc nstring.String) ([]tmstore.TU, error)
}

// Penalties are subtracted from a reference quality when the reference and
// the request differ. Qualified applies when the segment ids match and
// Unqualified when they do not.
type Penalties struct {
	Qualified     int
	Unqualified   int
	NotesMismatch int
	Group         int
}

// Between returns the penalty for using ref to satisfy tu.
func (p Penalties) Between(ref, tu tmstore.TU) int {
	penalty := p.Unqualified
	if ref.SID == tu.SID {
		penalty = p.Qualified
	}
	if ref.NotesDesc() != tu.NotesDesc() {
		penalty += p.NotesMismatch
	}
	if ref.Group != tu.Group {
		penalty += p.Group
	}
	return penalty
}

// RepetitionOptions configure a Repetition provider.
type RepetitionOptions struct {
	provider.Options
	Penalties
	// HoldInternalLeverage holds back repeated sources within a batch so that
	// only a covering subset is translated.
	HoldInternalLeverage bool
	// ExpectedQuality is the quality a fresh translation is assumed to reach.
	// Required with HoldInternalLeverage.
	ExpectedQuality *int
}

// Repetition reuses exact TM matches and optionally holds back internal
// repetitions.
type Repetition struct {
	*provider.Base
	opts   RepetitionOptions
	tm     ExactMatcher
	logger *slog.Logger
}

// NewRepetition validates opts and builds the provider.
func NewRepetition(opts RepetitionOptions, tm ExactMatcher, logger *slog.Logger) (*Repetition, error) {
	if tm == nil {
		return nil, services.Validation("repetition", "tm is required")
	}
	if opts.HoldInternalLeverage && opts.ExpectedQuality == nil {
		return nil, services.Validation("repetition", "expected quality is required to hold internal leverage")
	}
	r := &Repetition{
		opts:   opts,
		tm:     tm,
		logger: logging.NewComponentLogger(logger, "repetition"),
	}
	base, err := provider.NewBase(opts.Options, tm, r, logger)
	if err != nil {
		return nil, err
	}
	r.Base = base
	return r, nil
}

// Claim keeps the TUs satisfied by an exact TM match and, when holding
// internal leverage, the in-flight holdouts of each repetition group. The
// translators of each group are left for other providers.
func (r *Repetition) Claim(ctx context.Context, job *tmstore.Job) ([]tmstore.TU, error) {
	pair, err := job.Pair()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "repetition", "claim", job.JobGUID, err)
	}
	var (
		claimed   []tmstore.TU
		unmatched []tmstore.TU
	)
	for _, tu := range job.TUs {
		if tu.PluralForm != "" {
			continue
		}
		match, ok, err := r.bestMatch(ctx, pair, tu)
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = append(claimed, match)
			continue
		}
		unmatched = append(unmatched, tu)
	}
	held := 0
	if r.opts.HoldInternalLeverage {
		holdouts := HoldInternalLeverage(unmatched, r.opts.Penalties, *r.opts.ExpectedQuality)
		held = len(holdouts)
		for i := range holdouts {
			holdouts[i].TranslationProvider = r.ID()
		}
		claimed = append(claimed, holdouts...)
	}
	logging.WithContext(ctx, r.logger).Debug("repetition claimed",
		logging.Int("requested", len(job.TUs)),
		logging.Int("matched", len(claimed)-held),
		logging.Int("held", held),
	)
	return claimed, nil
}

// Translate returns the matches resolved at claim time. Holdouts are
// in-flight and dropped from the result by the base provider.
func (r *Repetition) Translate(_ context.Context, job *tmstore.Job) ([]tmstore.TU, error) {
	return job.TUs, nil
}

// bestMatch picks the exact match with the highest adjusted quality, newest
// first on ties, and accepts it only when it reaches tu.MinQ.
func (r *Repetition) bestMatch(ctx context.Context, pair tmstore.Pair, tu tmstore.TU) (tmstore.TU, bool, error) {
	candidates, err := r.tm.GetExactMatches(ctx, pair, tu.NSrc)
	if err != nil {
		return tmstore.TU{}, false, err
	}
	var (
		best      tmstore.TU
		bestQ     = -1
		bestFound bool
	)
	for _, cand := range candidates {
		if !cand.Translated() || cand.InFlight {
			continue
		}
		q := max(cand.Q-r.opts.Between(cand, tu), 0)
		if !bestFound || q > bestQ || (q == bestQ && cand.TS > best.TS) {
			best, bestQ, bestFound = cand, q, true
		}
	}
	if !bestFound || bestQ < tu.MinQ {
		return tmstore.TU{}, false, nil
	}
	match := tu
	match.NTgt = best.NTgt
	match.Q = bestQ
	match.TS = best.TS
	match.ParentGUID = best.GUID
	match.TranslationProvider = r.ID()
	return match, true, nil
}
