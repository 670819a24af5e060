package provider

import (
	"fmt"
	"strings"

	"tmcore/internal/nstring"
	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// Options configure a provider.
type Options struct {
	ID string
	// Quality bounds the TU minimum quality the provider accepts. Nil means
	// unbounded.
	Quality *int
	// SupportedPairs maps a source language to its target languages; "*"
	// matches any language. Empty means every pair is supported.
	SupportedPairs map[string][]string
	CostPerWord    float64
	CostPerMChar   float64
	// SaveIdenticalEntries keeps results identical to the current best TM
	// entry instead of dropping them.
	SaveIdenticalEntries bool
}

func (o Options) validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return services.Validation("provider", "id is required")
	}
	if o.Quality != nil && *o.Quality < 0 {
		return services.Validation("provider", fmt.Sprintf("%s: quality must be non-negative", o.ID))
	}
	if o.CostPerWord < 0 || o.CostPerMChar < 0 {
		return services.Validation("provider", fmt.Sprintf("%s: costs must be non-negative", o.ID))
	}
	return nil
}

// Supports reports whether the provider handles pair.
func (o Options) Supports(pair tmstore.Pair) bool {
	if len(o.SupportedPairs) == 0 {
		return true
	}
	for source, targets := range o.SupportedPairs {
		if !langMatches(source, pair.Source) {
			continue
		}
		for _, target := range targets {
			if langMatches(target, pair.Target) {
				return true
			}
		}
	}
	return false
}

func langMatches(configured, actual string) bool {
	configured = strings.TrimSpace(configured)
	if configured == "*" {
		return true
	}
	canonical, err := tmstore.CanonicalLang(configured)
	if err != nil {
		return strings.EqualFold(configured, actual)
	}
	return canonical == actual
}

// Accepts reports whether a TU's minimum quality is within reach.
func (o Options) Accepts(tu tmstore.TU) bool {
	return o.Quality == nil || tu.MinQ <= *o.Quality
}

// EstimateCost prices the source text of tus. It returns nil when the
// provider has no configured cost.
func (o Options) EstimateCost(tus []tmstore.TU) *float64 {
	if o.CostPerWord == 0 && o.CostPerMChar == 0 {
		return nil
	}
	var words, chars int
	for _, tu := range tus {
		words += nstring.WordCount(tu.NSrc)
		chars += nstring.CharCount(tu.NSrc)
	}
	cost := float64(words)*o.CostPerWord + float64(chars)/1e6*o.CostPerMChar
	return &cost
}
