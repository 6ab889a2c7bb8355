package artifact

import "strings"

// Schema names an artifact's validation contract.
type Schema string

const (
	SchemaTranscript     Schema = "transcript"
	SchemaPass1Analysis  Schema = "pass1_analysis"
	SchemaPass2Filtered  Schema = "pass2_filtered"
	SchemaUnifiedScript  Schema = "unified_script"
	SchemaVerifiedScript Schema = "verified_script"
)

// TranscriptSegment is one diarized span of the source audio.
type TranscriptSegment struct {
	ID      int     `json:"id"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Transcript is the ordered, immutable diarization output.
type Transcript struct {
	Language      string              `json:"language"`
	Model         string              `json:"model"`
	TotalSegments int                 `json:"total_segments"`
	Segments      []TranscriptSegment `json:"segments"`
}

// Severity is the advisory harm rating attached by pass-1 analysis.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ParseSeverity normalizes a severity string.
func ParseSeverity(value string) (Severity, bool) {
	normalized := Severity(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return normalized, true
	}
	return "", false
}

// EvidenceQuote is a verbatim quote supporting a candidate segment.
type EvidenceQuote struct {
	Timestamp float64 `json:"timestamp"`
	Speaker   string  `json:"speaker"`
	Quote     string  `json:"quote"`
}

// Segment is one candidate problematic span identified by pass-1 analysis.
type Segment struct {
	SegmentID       string          `json:"segment_id"`
	Title           string          `json:"title"`
	Severity        Severity        `json:"severity"`
	HarmCategory    string          `json:"harm_category"`
	EvidenceQuotes  []EvidenceQuote `json:"evidence_quotes"`
	Context         string          `json:"context"`
	Confidence      float64         `json:"confidence"`
	DurationSeconds float64         `json:"duration_seconds"`
	// ClipStart/ClipEnd bound the fuller-context range used for video clipping.
	ClipStart float64 `json:"clip_start"`
	ClipEnd   float64 `json:"clip_end"`
}

// Pass1Analysis is the broad, recall-favoured candidate set.
type Pass1Analysis struct {
	Segments []Segment `json:"segments"`
}

// SegmentIDs returns the set of candidate segment identifiers.
func (p Pass1Analysis) SegmentIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Segments))
	for _, seg := range p.Segments {
		ids[seg.SegmentID] = struct{}{}
	}
	return ids
}

// QualityScores are the five pass-2 assessment dimensions, each 1-10.
type QualityScores struct {
	QuoteStrength          float64 `json:"quote_strength"`
	FactualAccuracy        float64 `json:"factual_accuracy"`
	PotentialImpact        float64 `json:"potential_impact"`
	Specificity            float64 `json:"specificity"`
	ContextAppropriateness float64 `json:"context_appropriateness"`
}

// Composite score weights: quote strength and accuracy/impact dominate.
const (
	weightQuoteStrength   = 0.30
	weightFactualAccuracy = 0.25
	weightPotentialImpact = 0.25
	weightSpecificity     = 0.10
	weightContext         = 0.10
)

// Composite computes the weighted quality score used for ranking and
// thresholding.
func (q QualityScores) Composite() float64 {
	return weightQuoteStrength*q.QuoteStrength +
		weightFactualAccuracy*q.FactualAccuracy +
		weightPotentialImpact*q.PotentialImpact +
		weightSpecificity*q.Specificity +
		weightContext*q.ContextAppropriateness
}

// ScoredSegment augments a pass-1 segment with pass-2 quality scores.
type ScoredSegment struct {
	Segment
	Scores    QualityScores `json:"scores"`
	Composite float64       `json:"composite_score"`
}

// Pass2Filtered is the quality-filtered segment set consumed by script
// generation.
type Pass2Filtered struct {
	Segments []ScoredSegment `json:"segments"`
}

// SectionKind discriminates podcast script sections.
type SectionKind string

const (
	SectionIntro     SectionKind = "intro"
	SectionPreClip   SectionKind = "pre_clip"
	SectionVideoClip SectionKind = "video_clip"
	SectionPostClip  SectionKind = "post_clip"
	SectionOutro     SectionKind = "outro"
)

// Section is one element of the unified or verified script. Narration kinds
// carry script content and tone; video_clip sections reference a pass-2
// segment and a timestamp range.
type Section struct {
	SectionID         string      `json:"section_id"`
	Kind              SectionKind `json:"section_type"`
	ScriptContent     string      `json:"script_content,omitempty"`
	AudioTone         string      `json:"audio_tone,omitempty"`
	EstimatedDuration float64     `json:"estimated_duration,omitempty"`
	ClipID            string      `json:"clip_id,omitempty"`
	StartTime         float64     `json:"start_time,omitempty"`
	EndTime           float64     `json:"end_time,omitempty"`
	Title             string      `json:"title,omitempty"`
}

// IsClip reports whether the section plays source video rather than narration.
func (s Section) IsClip() bool {
	return s.Kind == SectionVideoClip
}

// Script is the ordered section list; the same shape backs both the unified
// and verified artifacts.
type Script struct {
	Episode  string    `json:"episode,omitempty"`
	Sections []Section `json:"sections"`
}

// NarrationSections returns sections requiring speech synthesis, in order.
func (s Script) NarrationSections() []Section {
	out := make([]Section, 0, len(s.Sections))
	for _, section := range s.Sections {
		if !section.IsClip() {
			out = append(out, section)
		}
	}
	return out
}

// ClipSections returns video_clip sections, in order.
func (s Script) ClipSections() []Section {
	out := make([]Section, 0, len(s.Sections))
	for _, section := range s.Sections {
		if section.IsClip() {
			out = append(out, section)
		}
	}
	return out
}
