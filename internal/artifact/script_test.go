package artifact

import (
	"strings"
	"testing"
)

func validScript() Script {
	return Script{
		Episode: "channel-episode-12",
		Sections: []Section{
			{SectionID: "intro", Kind: SectionIntro, ScriptContent: "Welcome to the breakdown.", AudioTone: "neutral"},
			{SectionID: "pre_1", Kind: SectionPreClip, ScriptContent: "First up, a claim about the study.", ClipID: "seg_001"},
			{SectionID: "clip_1", Kind: SectionVideoClip, ClipID: "seg_001", StartTime: 100, EndTime: 165, Title: "Misstated study findings"},
			{SectionID: "post_1", Kind: SectionPostClip, ScriptContent: "The preprint says nothing of the sort.", ClipID: "seg_001"},
			{SectionID: "outro", Kind: SectionOutro, ScriptContent: "Thanks for watching."},
		},
	}
}

func TestDecodeScript(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Script)
		wantErr string
	}{
		{"valid", func(s *Script) {}, ""},
		{"too short", func(s *Script) { s.Sections = s.Sections[:1] }, "at least intro and outro"},
		{"missing intro", func(s *Script) { s.Sections[0].Kind = SectionPreClip }, "want intro"},
		{"missing outro", func(s *Script) { s.Sections[4].Kind = SectionPostClip }, "want outro"},
		{"duplicate section id", func(s *Script) { s.Sections[3].SectionID = "pre_1" }, "duplicate section_id"},
		{"empty section id", func(s *Script) { s.Sections[2].SectionID = "" }, "empty section_id"},
		{"clip without clip id", func(s *Script) { s.Sections[2].ClipID = "" }, "empty clip_id"},
		{"clip bad range", func(s *Script) { s.Sections[2].EndTime = 100 }, "invalid range"},
		{"pre clip id mismatch", func(s *Script) { s.Sections[1].ClipID = "seg_999" }, "does not match"},
		{"post clip id mismatch", func(s *Script) { s.Sections[3].ClipID = "seg_999" }, "does not match"},
		{"empty narration", func(s *Script) { s.Sections[1].ScriptContent = "  " }, "empty script_content"},
		{"unknown kind", func(s *Script) { s.Sections[1].Kind = "teaser" }, "unknown kind"},
		{
			"orphan pre clip",
			func(s *Script) {
				s.Sections = []Section{
					s.Sections[0],
					{SectionID: "pre_x", Kind: SectionPreClip, ScriptContent: "coming up", ClipID: "seg_001"},
					s.Sections[4],
				}
			},
			"not followed by a video_clip",
		},
		{
			"orphan post clip",
			func(s *Script) {
				s.Sections = []Section{
					s.Sections[0],
					{SectionID: "post_x", Kind: SectionPostClip, ScriptContent: "as we saw", ClipID: "seg_001"},
					s.Sections[4],
				}
			},
			"does not follow a video_clip",
		},
		{
			"second intro",
			func(s *Script) {
				s.Sections = append([]Section{s.Sections[0]}, s.Sections...)
				s.Sections[1].SectionID = "intro_2"
			},
			"must be first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScript()
			tt.mutate(&s)
			got, err := DecodeScript(SchemaUnifiedScript, mustJSON(t, s))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DecodeScript() error = %v", err)
				}
				if len(got.ClipSections()) != 1 || got.ClipSections()[0].ClipID != "seg_001" {
					t.Fatalf("clip sections = %+v", got.ClipSections())
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("DecodeScript() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestScriptNarrationOrdering(t *testing.T) {
	s := validScript()
	narration := s.NarrationSections()
	if len(narration) != 4 {
		t.Fatalf("narration sections = %d, want 4", len(narration))
	}
	wantOrder := []string{"intro", "pre_1", "post_1", "outro"}
	for i, section := range narration {
		if section.SectionID != wantOrder[i] {
			t.Fatalf("narration[%d] = %s, want %s", i, section.SectionID, wantOrder[i])
		}
	}
}

func TestClipReferences(t *testing.T) {
	s := validScript()
	filtered := &Pass2Filtered{Segments: []ScoredSegment{{Segment: validSegment("seg_001")}}}
	if err := s.ClipReferences(filtered); err != nil {
		t.Fatalf("ClipReferences() error = %v", err)
	}

	filtered.Segments[0].SegmentID = "seg_777"
	if err := s.ClipReferences(filtered); err == nil || !strings.Contains(err.Error(), "seg_001") {
		t.Fatalf("ClipReferences() = %v, want missing clip_id error", err)
	}
}

func TestVerifyPreserves(t *testing.T) {
	unified := validScript()

	verified := validScript()
	verified.Sections[1].ScriptContent = "First up, a claim about the study, tightened during verification."
	if err := VerifyPreserves(&unified, &verified); err != nil {
		t.Fatalf("VerifyPreserves() error = %v for content-only change", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Script)
		wantErr string
	}{
		{"section dropped", func(s *Script) { s.Sections = append(s.Sections[:3], s.Sections[4]) }, "section count"},
		{"id changed", func(s *Script) { s.Sections[1].SectionID = "pre_renamed" }, "id changed"},
		{"kind changed", func(s *Script) { s.Sections[3].Kind = SectionPreClip }, "kind changed"},
		{"clip id changed", func(s *Script) { s.Sections[2].ClipID = "seg_999" }, "clip_id changed"},
		{"range changed", func(s *Script) { s.Sections[2].EndTime = 170 }, "timestamp range changed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validScript()
			tt.mutate(&v)
			if err := VerifyPreserves(&unified, &v); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("VerifyPreserves() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
