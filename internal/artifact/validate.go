package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"factreel/internal/services"
)

// Validate parses and checks raw artifact bytes against the named schema,
// returning the typed value on success. It runs on every producer-side write
// and consumer-side read.
func Validate(schema Schema, data []byte) (any, error) {
	switch schema {
	case SchemaTranscript:
		return DecodeTranscript(data)
	case SchemaPass1Analysis:
		return DecodePass1(data)
	case SchemaPass2Filtered:
		return DecodePass2(data)
	case SchemaUnifiedScript, SchemaVerifiedScript:
		return DecodeScript(schema, data)
	default:
		return nil, services.Wrap(services.ErrValidation, "artifact", "validate",
			fmt.Sprintf("unknown schema %q", schema), nil)
	}
}

func invalid(schema Schema, format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "artifact", string(schema),
		fmt.Sprintf(format, args...), nil)
}

// DecodeTranscript parses and validates a transcript artifact.
func DecodeTranscript(data []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, services.Wrap(services.ErrValidation, "artifact", "transcript", "parse payload", err)
	}
	if len(t.Segments) == 0 {
		return nil, invalid(SchemaTranscript, "no segments")
	}
	if t.TotalSegments != 0 && t.TotalSegments != len(t.Segments) {
		return nil, invalid(SchemaTranscript, "total_segments %d does not match %d segments", t.TotalSegments, len(t.Segments))
	}
	lastStart := -1.0
	for i, seg := range t.Segments {
		if seg.Start < 0 || seg.End <= seg.Start {
			return nil, invalid(SchemaTranscript, "segment %d has invalid range [%f, %f]", seg.ID, seg.Start, seg.End)
		}
		if seg.Start < lastStart {
			return nil, invalid(SchemaTranscript, "segment %d start %f regresses before %f", seg.ID, seg.Start, lastStart)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return nil, invalid(SchemaTranscript, "segment %d has empty text", seg.ID)
		}
		if i > 0 && seg.ID <= t.Segments[i-1].ID {
			return nil, invalid(SchemaTranscript, "segment ids not monotonic at index %d", i)
		}
		lastStart = seg.Start
	}
	return &t, nil
}

func validateSegment(schema Schema, seg Segment) error {
	if strings.TrimSpace(seg.SegmentID) == "" {
		return invalid(schema, "segment with empty segment_id")
	}
	if strings.TrimSpace(seg.Title) == "" {
		return invalid(schema, "segment %s has empty title", seg.SegmentID)
	}
	if _, ok := ParseSeverity(string(seg.Severity)); !ok {
		return invalid(schema, "segment %s has unknown severity %q", seg.SegmentID, seg.Severity)
	}
	if strings.TrimSpace(seg.HarmCategory) == "" {
		return invalid(schema, "segment %s has empty harm_category", seg.SegmentID)
	}
	if len(seg.EvidenceQuotes) == 0 {
		return invalid(schema, "segment %s has no evidence quotes", seg.SegmentID)
	}
	for i, quote := range seg.EvidenceQuotes {
		if strings.TrimSpace(quote.Quote) == "" {
			return invalid(schema, "segment %s quote %d is empty", seg.SegmentID, i)
		}
		if quote.Timestamp < 0 {
			return invalid(schema, "segment %s quote %d has negative timestamp", seg.SegmentID, i)
		}
	}
	if seg.ClipEnd <= seg.ClipStart {
		return invalid(schema, "segment %s has invalid clip range [%f, %f]", seg.SegmentID, seg.ClipStart, seg.ClipEnd)
	}
	return nil
}

// DecodePass1 parses and validates a pass-1 analysis artifact.
func DecodePass1(data []byte) (*Pass1Analysis, error) {
	var p Pass1Analysis
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, services.Wrap(services.ErrValidation, "artifact", "pass1_analysis", "parse payload", err)
	}
	if len(p.Segments) == 0 {
		return nil, invalid(SchemaPass1Analysis, "no candidate segments")
	}
	seen := make(map[string]struct{}, len(p.Segments))
	for _, seg := range p.Segments {
		if err := validateSegment(SchemaPass1Analysis, seg); err != nil {
			return nil, err
		}
		if _, dup := seen[seg.SegmentID]; dup {
			return nil, invalid(SchemaPass1Analysis, "duplicate segment_id %s", seg.SegmentID)
		}
		seen[seg.SegmentID] = struct{}{}
	}
	return &p, nil
}

// DecodePass2 parses and validates a pass-2 filtered artifact. The subset
// invariant against pass-1 is checked by the caller, which holds both.
func DecodePass2(data []byte) (*Pass2Filtered, error) {
	var p Pass2Filtered
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, services.Wrap(services.ErrValidation, "artifact", "pass2_filtered", "parse payload", err)
	}
	if len(p.Segments) == 0 {
		return nil, invalid(SchemaPass2Filtered, "no segments survived filtering")
	}
	seen := make(map[string]struct{}, len(p.Segments))
	for _, seg := range p.Segments {
		if err := validateSegment(SchemaPass2Filtered, seg.Segment); err != nil {
			return nil, err
		}
		if _, dup := seen[seg.SegmentID]; dup {
			return nil, invalid(SchemaPass2Filtered, "duplicate segment_id %s", seg.SegmentID)
		}
		seen[seg.SegmentID] = struct{}{}
		if err := validateScores(seg); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func validateScores(seg ScoredSegment) error {
	for _, score := range []struct {
		name  string
		value float64
	}{
		{"quote_strength", seg.Scores.QuoteStrength},
		{"factual_accuracy", seg.Scores.FactualAccuracy},
		{"potential_impact", seg.Scores.PotentialImpact},
		{"specificity", seg.Scores.Specificity},
		{"context_appropriateness", seg.Scores.ContextAppropriateness},
	} {
		if score.value < 1 || score.value > 10 {
			return invalid(SchemaPass2Filtered, "segment %s %s %.2f outside [1, 10]",
				seg.SegmentID, score.name, score.value)
		}
	}
	if seg.Composite < 0 {
		return invalid(SchemaPass2Filtered, "segment %s has negative composite", seg.SegmentID)
	}
	return nil
}

// SubsetOf verifies that every pass-2 segment id exists in the pass-1 set.
func (p Pass2Filtered) SubsetOf(pass1 *Pass1Analysis) error {
	if pass1 == nil {
		return invalid(SchemaPass2Filtered, "pass-1 analysis unavailable for subset check")
	}
	ids := pass1.SegmentIDs()
	for _, seg := range p.Segments {
		if _, ok := ids[seg.SegmentID]; !ok {
			return invalid(SchemaPass2Filtered, "segment %s not present in pass-1 output", seg.SegmentID)
		}
	}
	return nil
}

// Encode serializes an artifact for storage with stable formatting.
func Encode(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return append(data, '\n'), nil
}
