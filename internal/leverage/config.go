package leverage

import (
	"log/slog"

	"tmcore/internal/config"
	"tmcore/internal/provider"
)

// ProviderOptions converts a configured provider section.
func ProviderOptions(cfg config.Provider) provider.Options {
	return provider.Options{
		ID:                   cfg.ID,
		Quality:              cfg.Quality,
		SupportedPairs:       cfg.SupportedPairs,
		CostPerWord:          cfg.CostPerWord,
		CostPerMChar:         cfg.CostPerMChar,
		SaveIdenticalEntries: cfg.SaveIdenticalEntries,
	}
}

// ProvidersFromConfig builds the enabled leverage providers in pipeline order:
// Grandfather first, then Repetition. channels may be nil when Grandfather is
// disabled.
func ProvidersFromConfig(cfg *config.Config, tm ExactMatcher, channels ChannelSource, logger *slog.Logger) ([]provider.Provider, error) {
	var providers []provider.Provider
	if cfg.Grandfather.Enabled {
		g, err := NewGrandfather(ProviderOptions(cfg.Grandfather.Provider), channels, tm, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, g)
	}
	if cfg.Repetition.Enabled {
		rep := cfg.Repetition
		r, err := NewRepetition(RepetitionOptions{
			Options: ProviderOptions(rep.Provider),
			Penalties: Penalties{
				Qualified:     rep.QualifiedPenalty,
				Unqualified:   rep.UnqualifiedPenalty,
				NotesMismatch: rep.NotesMismatchPenalty,
				Group:         rep.GroupPenalty,
			},
			HoldInternalLeverage: rep.HoldInternalLeverage,
			ExpectedQuality:      rep.ExpectedQuality,
		}, tm, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, r)
	}
	return providers, nil
}
