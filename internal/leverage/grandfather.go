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

// Grandfather reuses translations from the last translated version of each
// TU's resource.
type Grandfather struct {
	*provider.Base
	channels ChannelSource
	quality  int
	logger   *slog.Logger
}

// NewGrandfather requires a configured quality, which every reused
// translation is assigned.
func NewGrandfather(opts provider.Options, channels ChannelSource, tm provider.EntryLookup, logger *slog.Logger) (*Grandfather, error) {
	if opts.Quality == nil {
		return nil, services.Validation("grandfather", "quality is required")
	}
	if channels == nil {
		return nil, services.Validation("grandfather", "channel source is required")
	}
	g := &Grandfather{
		channels: channels,
		quality:  *opts.Quality,
		logger:   logging.NewComponentLogger(logger, "grandfather"),
	}
	base, err := provider.NewBase(opts, tm, g, logger)
	if err != nil {
		return nil, err
	}
	g.Base = base
	return g, nil
}

// Claim resolves each TU against its resource's translated version and keeps
// the ones that matched. Unresolvable TUs are logged and left for other
// providers.
func (g *Grandfather) Claim(ctx context.Context, job *tmstore.Job) ([]tmstore.TU, error) {
	logger := logging.WithContext(ctx, g.logger)
	handles := make(map[string]*ResourceHandle)
	translated := make(map[string]map[string]TranslatedSegment)
	modified := make(map[string]int64)

	var out []tmstore.TU
	for _, tu := range job.TUs {
		if tu.Channel == "" {
			logging.WarnWithContext(logger, "tu has no channel", "grandfather_skip",
				logging.String("guid", tu.GUID),
				logging.String(logging.FieldErrorHint, "ingest TUs with their source channel"),
				logging.String(logging.FieldImpact, "tu left for other providers"),
			)
			continue
		}
		key := tu.Channel + "\x00" + tu.RID
		handle, seen := handles[key]
		if !seen {
			var err error
			if handle, err = g.channels.GetResourceHandle(ctx, tu.Channel, tu.RID); err != nil {
				return nil, err
			}
			handles[key] = handle
			if handle != nil {
				res, err := g.channels.GetExistingTranslatedResource(ctx, handle, job.TargetLang)
				if err != nil {
					return nil, err
				}
				if res != nil {
					bySID := make(map[string]TranslatedSegment, len(res.Segments))
					for _, seg := range res.Segments {
						bySID[seg.SID] = seg
					}
					translated[key] = bySID
					modified[key] = res.Modified
				}
			}
		}
		if handle == nil {
			g.skip(logger, tu, "resource not found")
			continue
		}
		segments, ok := translated[key]
		if !ok {
			g.skip(logger, tu, "no translated resource")
			continue
		}
		seg, ok := segments[tu.SID]
		if !ok {
			g.skip(logger, tu, "segment not found in translated resource")
			continue
		}
		if !nstring.Compatible(tu.NSrc, seg.NSrc) {
			g.skip(logger, tu, "placeholders incompatible with translated segment")
			continue
		}
		tu.NTgt = seg.NTgt
		tu.Q = g.quality
		tu.TS = modified[key]
		if tu.TS <= 0 {
			tu.TS = 1
		}
		tu.TranslationProvider = g.ID()
		out = append(out, tu)
	}
	logger.Debug("grandfather claimed",
		logging.Int("requested", len(job.TUs)),
		logging.Int("claimed", len(out)),
	)
	return out, nil
}

// Translate returns the translations resolved at claim time.
func (g *Grandfather) Translate(_ context.Context, job *tmstore.Job) ([]tmstore.TU, error) {
	return job.TUs, nil
}

func (g *Grandfather) skip(logger *slog.Logger, tu tmstore.TU, reason string) {
	logging.WarnWithContext(logger, "grandfather skipped tu", "grandfather_skip",
		logging.String("guid", tu.GUID),
		logging.RID(tu.RID),
		logging.String("sid", tu.SID),
		logging.Channel(tu.Channel),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "tu left for other providers"),
	)
}
