package analysis

import (
	"fmt"
	"strings"

	"factreel/internal/artifact"
)

const pass1SystemPrompt = `You are a meticulous media analyst reviewing a diarized transcript of a video.
Identify candidate segments where a speaker makes a factually dubious, misleading, or harmful claim.
Favour recall: include borderline candidates, the next pass filters aggressively.
Respond with JSON only, matching this shape:
{"segments":[{"segment_id":"seg_001","title":"...","severity":"CRITICAL|HIGH|MEDIUM|LOW","harm_category":"...","evidence_quotes":[{"timestamp":0.0,"speaker":"...","quote":"verbatim quote"}],"context":"...","confidence":0.0,"duration_seconds":0.0,"clip_start":0.0,"clip_end":0.0}]}
Rules:
- segment_id values must be unique, sequential, and stable (seg_001, seg_002, ...).
- evidence_quotes must be verbatim from the transcript with accurate timestamps.
- clip_start/clip_end must bound enough surrounding context to stand alone as a clip.
- severity is your best advisory estimate only.`

const pass2SystemPrompt = `You are a rigorous fact-checking editor scoring candidate segments for a rebuttal video.
Ignore any severity ratings in the input; they are advisory and often wrong.
Score every segment on five dimensions from 1 to 10:
- quote_strength: how damning and unambiguous the verbatim quotes are
- factual_accuracy: how confidently the claim can be shown false or misleading
- potential_impact: real-world harm if the claim is believed
- specificity: how concrete and checkable the claim is
- context_appropriateness: whether the quotes fairly represent the speaker in context
Respond with JSON only:
{"scores":[{"segment_id":"seg_001","quote_strength":0,"factual_accuracy":0,"potential_impact":0,"specificity":0,"context_appropriateness":0}]}
Every input segment_id must appear exactly once.`

const scriptSystemPrompt = `You are writing the narration script for a fact-checking compilation video.
You receive the filtered segment list with scores, quotes, and clip timestamp ranges.
Produce a complete script as JSON only:
{"sections":[{"section_id":"...","section_type":"intro|pre_clip|video_clip|post_clip|outro","script_content":"...","audio_tone":"...","estimated_duration":0.0,"clip_id":"...","start_time":0.0,"end_time":0.0,"title":"..."}]}
Structural rules, all mandatory:
- exactly one intro section first and one outro section last
- every video_clip is immediately preceded by a pre_clip and followed by a post_clip, all three sharing the same clip_id
- every clip_id references a segment_id from the input; start_time/end_time copy that segment's clip range exactly
- section_id values are unique
- narration sections (intro, pre_clip, post_clip, outro) carry script_content and audio_tone; video_clip sections carry no script_content
The narration must be factual, sourced, and measured; rebut the claim in the clip, never mock the speaker.`

const verifySystemPrompt = `You are fact-checking the narration of a rebuttal video script against the evidence quotes for each clip.
For every pre_clip and post_clip section, check each factual claim in script_content against the associated segment's evidence quotes and context.
Rewrite script_content where a claim is unsupported, overstated, or wrong. Leave well-supported text unchanged.
Respond with the full script as JSON in exactly the input shape.
You must not add, remove, or reorder sections, and must not change section_id, section_type, clip_id, start_time, or end_time. Only script_content may change.`

func pass1UserPrompt(rules string, targetCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the attached transcript and return up to %d candidate segments.\n", targetCount)
	if rules = strings.TrimSpace(rules); rules != "" {
		b.WriteString("\nApply these analysis rules:\n")
		b.WriteString(rules)
		b.WriteString("\n")
	}
	return b.String()
}

func pass2UserPrompt(pass1JSON []byte) string {
	return "Score each of these candidate segments:\n" + string(pass1JSON)
}

func scriptUserPrompt(pass2JSON []byte) string {
	return "Write the full script for these segments:\n" + string(pass2JSON)
}

func verifyUserPrompt(script *artifact.Script, filtered *artifact.Pass2Filtered, scriptJSON []byte) string {
	var b strings.Builder
	b.WriteString("Verify and correct the narration in this script:\n")
	b.Write(scriptJSON)
	b.WriteString("\nEvidence for each clip:\n")
	byID := make(map[string]artifact.ScoredSegment, len(filtered.Segments))
	for _, seg := range filtered.Segments {
		byID[seg.SegmentID] = seg
	}
	for _, section := range script.ClipSections() {
		seg, ok := byID[section.ClipID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", seg.SegmentID, seg.HarmCategory, seg.Context)
		for _, quote := range seg.EvidenceQuotes {
			fmt.Fprintf(&b, "  [%.1fs] %s: %q\n", quote.Timestamp, quote.Speaker, quote.Quote)
		}
	}
	return b.String()
}
