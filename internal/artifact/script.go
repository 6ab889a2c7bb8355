package artifact

import (
	"encoding/json"
	"strings"

	"factreel/internal/services"
)

// DecodeScript parses and validates a unified or verified script artifact.
func DecodeScript(schema Schema, data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, services.Wrap(services.ErrValidation, "artifact", string(schema), "parse payload", err)
	}
	if err := s.ValidateStructure(schema); err != nil {
		return nil, err
	}
	return &s, nil
}

// ValidateStructure enforces the script section invariants: exactly one intro
// first and one outro last, unique section ids, every video_clip bracketed by
// a pre_clip and post_clip with matching clip_id.
func (s Script) ValidateStructure(schema Schema) error {
	if len(s.Sections) < 2 {
		return invalid(schema, "script needs at least intro and outro, got %d sections", len(s.Sections))
	}
	if s.Sections[0].Kind != SectionIntro {
		return invalid(schema, "first section is %q, want intro", s.Sections[0].Kind)
	}
	last := s.Sections[len(s.Sections)-1]
	if last.Kind != SectionOutro {
		return invalid(schema, "last section is %q, want outro", last.Kind)
	}

	seen := make(map[string]struct{}, len(s.Sections))
	for i, section := range s.Sections {
		if strings.TrimSpace(section.SectionID) == "" {
			return invalid(schema, "section %d has empty section_id", i)
		}
		if _, dup := seen[section.SectionID]; dup {
			return invalid(schema, "duplicate section_id %s", section.SectionID)
		}
		seen[section.SectionID] = struct{}{}

		switch section.Kind {
		case SectionIntro:
			if i != 0 {
				return invalid(schema, "intro at index %d, must be first", i)
			}
		case SectionOutro:
			if i != len(s.Sections)-1 {
				return invalid(schema, "outro at index %d, must be last", i)
			}
		case SectionVideoClip:
			if strings.TrimSpace(section.ClipID) == "" {
				return invalid(schema, "video_clip %s has empty clip_id", section.SectionID)
			}
			if section.EndTime <= section.StartTime {
				return invalid(schema, "video_clip %s has invalid range [%f, %f]",
					section.SectionID, section.StartTime, section.EndTime)
			}
			if i == 0 || s.Sections[i-1].Kind != SectionPreClip {
				return invalid(schema, "video_clip %s is not preceded by a pre_clip", section.SectionID)
			}
			if i == len(s.Sections)-1 || s.Sections[i+1].Kind != SectionPostClip {
				return invalid(schema, "video_clip %s is not followed by a post_clip", section.SectionID)
			}
			if s.Sections[i-1].ClipID != section.ClipID {
				return invalid(schema, "pre_clip %s clip_id %q does not match clip %q",
					s.Sections[i-1].SectionID, s.Sections[i-1].ClipID, section.ClipID)
			}
			if s.Sections[i+1].ClipID != section.ClipID {
				return invalid(schema, "post_clip %s clip_id %q does not match clip %q",
					s.Sections[i+1].SectionID, s.Sections[i+1].ClipID, section.ClipID)
			}
		case SectionPreClip:
			if i+1 >= len(s.Sections) || s.Sections[i+1].Kind != SectionVideoClip {
				return invalid(schema, "pre_clip %s is not followed by a video_clip", section.SectionID)
			}
		case SectionPostClip:
			if i == 0 || s.Sections[i-1].Kind != SectionVideoClip {
				return invalid(schema, "post_clip %s does not follow a video_clip", section.SectionID)
			}
		default:
			return invalid(schema, "section %s has unknown kind %q", section.SectionID, section.Kind)
		}

		if !section.IsClip() && strings.TrimSpace(section.ScriptContent) == "" {
			return invalid(schema, "section %s (%s) has empty script_content", section.SectionID, section.Kind)
		}
	}
	return nil
}

// ClipReferences verifies that every video_clip references a segment kept by
// pass-2 filtering.
func (s Script) ClipReferences(filtered *Pass2Filtered) error {
	if filtered == nil {
		return invalid(SchemaUnifiedScript, "pass-2 output unavailable for clip reference check")
	}
	kept := make(map[string]struct{}, len(filtered.Segments))
	for _, seg := range filtered.Segments {
		kept[seg.SegmentID] = struct{}{}
	}
	for _, section := range s.ClipSections() {
		if _, ok := kept[section.ClipID]; !ok {
			return invalid(SchemaUnifiedScript, "clip_id %s not present in pass-2 output", section.ClipID)
		}
	}
	return nil
}

// VerifyPreserves checks the structural-preservation invariant between a
// verified script and the unified script it was derived from: section count,
// ordering, ids, kinds, clip references, and clip timestamp ranges must be
// identical; only script_content bodies may differ.
func VerifyPreserves(unified, verified *Script) error {
	const schema = SchemaVerifiedScript
	if unified == nil || verified == nil {
		return invalid(schema, "both scripts required for structural comparison")
	}
	if len(verified.Sections) != len(unified.Sections) {
		return invalid(schema, "section count changed: %d -> %d", len(unified.Sections), len(verified.Sections))
	}
	for i := range unified.Sections {
		before, after := unified.Sections[i], verified.Sections[i]
		if after.SectionID != before.SectionID {
			return invalid(schema, "section %d id changed: %s -> %s", i, before.SectionID, after.SectionID)
		}
		if after.Kind != before.Kind {
			return invalid(schema, "section %s kind changed: %s -> %s", before.SectionID, before.Kind, after.Kind)
		}
		if after.ClipID != before.ClipID {
			return invalid(schema, "section %s clip_id changed: %q -> %q", before.SectionID, before.ClipID, after.ClipID)
		}
		if after.StartTime != before.StartTime || after.EndTime != before.EndTime {
			return invalid(schema, "section %s timestamp range changed", before.SectionID)
		}
	}
	return nil
}
