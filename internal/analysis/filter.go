package analysis

import (
	"fmt"
	"sort"

	"factreel/internal/artifact"
	"factreel/internal/config"
	"factreel/internal/textutil"
)

// FilterOptions carries the pass-2 selection knobs.
type FilterOptions struct {
	MinCount             int
	MaxCount             int
	QualityThreshold     float64
	FallbackThreshold    float64
	AutoIncludeThreshold float64
	MaxCategoryFraction  float64
	SimilarityThreshold  float64

	// Similarity scores two segments for dedup. Defaults to token cosine
	// over title+context.
	Similarity func(a, b artifact.ScoredSegment) float64
}

// FilterOptionsFromConfig maps the analysis config section onto filter
// options.
func FilterOptionsFromConfig(cfg config.Analysis) FilterOptions {
	return FilterOptions{
		MinCount:             cfg.MinCount,
		MaxCount:             cfg.MaxCount,
		QualityThreshold:     cfg.QualityThreshold,
		FallbackThreshold:    cfg.FallbackThreshold,
		AutoIncludeThreshold: cfg.AutoIncludeThreshold,
		MaxCategoryFraction:  cfg.MaxCategoryFraction,
		SimilarityThreshold:  cfg.SimilarityThreshold,
	}
}

func defaultSimilarity(a, b artifact.ScoredSegment) float64 {
	return textutil.Similarity(a.Title+" "+a.Context, b.Title+" "+b.Context)
}

// Hard score gates applied before any ranking.
const (
	gateQuoteStrength   = 6.0
	gateFactualAccuracy = 5.0
	gateSpecificity     = 5.0
)

// rank orders segments best-first: higher composite, then higher quote
// strength, then earlier clip start.
func rank(segments []artifact.ScoredSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		a, b := segments[i], segments[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.Scores.QuoteStrength != b.Scores.QuoteStrength {
			return a.Scores.QuoteStrength > b.Scores.QuoteStrength
		}
		return a.ClipStart < b.ClipStart
	})
}

// Filter applies the six pass-2 selection rules in order and returns the
// kept set sorted best-first, plus human-readable warnings for rules that
// had to be relaxed.
func Filter(scored []artifact.ScoredSegment, opts FilterOptions) ([]artifact.ScoredSegment, []string) {
	similarity := opts.Similarity
	if similarity == nil {
		similarity = defaultSimilarity
	}
	var warnings []string

	// Too few candidates to filter: keep everything, ranked.
	if len(scored) < opts.MinCount {
		all := append([]artifact.ScoredSegment(nil), scored...)
		rank(all)
		warnings = append(warnings, fmt.Sprintf(
			"pass-1 produced %d segments, below minimum of %d; keeping all", len(scored), opts.MinCount))
		return all, warnings
	}

	// Rule 1: hard gates on the three load-bearing dimensions.
	gated := make([]artifact.ScoredSegment, 0, len(scored))
	for _, seg := range scored {
		if seg.Scores.QuoteStrength < gateQuoteStrength ||
			seg.Scores.FactualAccuracy < gateFactualAccuracy ||
			seg.Scores.Specificity < gateSpecificity {
			continue
		}
		gated = append(gated, seg)
	}
	rank(gated)

	// Rules 2 and 3: auto-retain, primary threshold, fallback threshold,
	// then top-up to the minimum. Working best-first, this collapses to a
	// threshold sweep over the ranked list.
	kept := thresholdSelect(gated, opts, &warnings)

	// Rule 4: category balance, capped against the configured maximum so
	// the limit does not tighten as the set shrinks.
	kept = enforceCategoryCap(kept, opts, &warnings)

	// Rule 5: near-duplicate topics keep only the best representative.
	kept = dedupe(kept, opts.SimilarityThreshold, similarity)

	// Rule 6: cap at the maximum by dropping the lowest composites.
	if opts.MaxCount > 0 && len(kept) > opts.MaxCount {
		kept = kept[:opts.MaxCount]
	}
	return kept, warnings
}

func thresholdSelect(ranked []artifact.ScoredSegment, opts FilterOptions, warnings *[]string) []artifact.ScoredSegment {
	kept := make([]artifact.ScoredSegment, 0, len(ranked))
	for _, seg := range ranked {
		if seg.Composite >= opts.AutoIncludeThreshold || seg.Composite >= opts.QualityThreshold {
			kept = append(kept, seg)
		}
	}
	if len(kept) >= opts.MinCount {
		return kept
	}

	kept = kept[:0]
	for _, seg := range ranked {
		if seg.Composite >= opts.FallbackThreshold {
			kept = append(kept, seg)
		}
	}
	if len(kept) >= opts.MinCount {
		*warnings = append(*warnings, fmt.Sprintf(
			"quality threshold %.1f lowered to %.1f to reach minimum of %d segments",
			opts.QualityThreshold, opts.FallbackThreshold, opts.MinCount))
		return kept
	}

	// Still short: take the best remaining regardless of threshold.
	n := min(opts.MinCount, len(ranked))
	if n > len(kept) {
		*warnings = append(*warnings, fmt.Sprintf(
			"thresholds yielded %d segments, topping up to %d by composite score", len(kept), n))
	}
	return append(kept[:0], ranked[:n]...)
}

func enforceCategoryCap(kept []artifact.ScoredSegment, opts FilterOptions, warnings *[]string) []artifact.ScoredSegment {
	if opts.MaxCategoryFraction <= 0 || opts.MaxCategoryFraction >= 1 || opts.MaxCount <= 0 {
		return kept
	}
	limit := int(opts.MaxCategoryFraction * float64(opts.MaxCount))
	if limit < 1 {
		limit = 1
	}

	counts := make(map[string]int)
	for _, seg := range kept {
		counts[seg.HarmCategory]++
	}

	// kept is ranked best-first, so walking from the tail drops the
	// lowest-scoring members of an over-represented category first.
	for category, count := range counts {
		for count > limit {
			if len(kept) <= opts.MinCount {
				*warnings = append(*warnings, fmt.Sprintf(
					"category %q exceeds cap of %d but dropping more would fall below minimum of %d",
					category, limit, opts.MinCount))
				return kept
			}
			dropped := false
			for i := len(kept) - 1; i >= 0; i-- {
				if kept[i].HarmCategory == category {
					kept = append(kept[:i], kept[i+1:]...)
					count--
					dropped = true
					break
				}
			}
			if !dropped {
				break
			}
		}
	}
	return kept
}

func dedupe(kept []artifact.ScoredSegment, threshold float64, similarity func(a, b artifact.ScoredSegment) float64) []artifact.ScoredSegment {
	if threshold <= 0 || len(kept) < 2 {
		return kept
	}
	// Best-first order means the first of a duplicate pair is the
	// representative to keep.
	out := kept[:0]
	for _, candidate := range kept {
		duplicate := false
		for _, keptSeg := range out {
			if similarity(keptSeg, candidate) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, candidate)
		}
	}
	return out
}
