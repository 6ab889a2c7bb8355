// Package workspace manages the per-episode directory tree that every
// pipeline stage reads from and writes to, plus the advisory lock that
// keeps concurrent runs off the same episode.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"factreel/internal/fileutil"
	"factreel/internal/services"
)

// EpisodeRef identifies one source video and its workspace label.
type EpisodeRef struct {
	Source  string
	Channel string
	Title   string
	Label   string
}

// NewEpisodeRef derives the workspace label from channel and title. The
// label is stable for a given source so re-runs land in the same tree.
func NewEpisodeRef(source, channel, title string) (EpisodeRef, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return EpisodeRef{}, services.Wrap(services.ErrInput, "workspace", "resolve", "empty source reference", nil)
	}
	label := Slug(strings.TrimSpace(channel) + " " + strings.TrimSpace(title))
	if label == "" {
		label = Slug(source)
	}
	if label == "" {
		return EpisodeRef{}, services.Wrap(services.ErrInput, "workspace", "resolve",
			fmt.Sprintf("cannot derive label from %q", source), nil)
	}
	return EpisodeRef{Source: source, Channel: channel, Title: title, Label: label}, nil
}

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug lowercases, strips diacritics, and collapses non-alphanumerics to
// single hyphens.
func Slug(value string) string {
	folded, _, err := transform.String(asciiFold, value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	const maxLabel = 120
	if len(out) > maxLabel {
		out = strings.Trim(out[:maxLabel], "-")
	}
	return out
}

// Workspace is the rooted directory tree for one episode.
type Workspace struct {
	root    string
	episode EpisodeRef
}

// New binds an episode to a content root without touching the filesystem.
func New(contentRoot string, episode EpisodeRef) (*Workspace, error) {
	contentRoot = strings.TrimSpace(contentRoot)
	if contentRoot == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "init", "content root not configured", nil)
	}
	if episode.Label == "" {
		return nil, services.Wrap(services.ErrInput, "workspace", "init", "episode label not resolved", nil)
	}
	return &Workspace{root: contentRoot, episode: episode}, nil
}

// Episode returns the bound episode reference.
func (w *Workspace) Episode() EpisodeRef { return w.episode }

// Dir returns the episode's root directory.
func (w *Workspace) Dir() string {
	return filepath.Join(w.root, w.episode.Label)
}

func (w *Workspace) subdirs() []string {
	dir := w.Dir()
	return []string{
		filepath.Join(dir, "Input"),
		filepath.Join(dir, "Processing"),
		filepath.Join(dir, "Output", "Audio"),
		filepath.Join(dir, "Output", "Video"),
		filepath.Join(dir, "Output", "Final"),
		filepath.Join(dir, "Logs"),
	}
}

// Ensure creates the episode skeleton. Existing directories and files are
// left untouched so cached stage outputs survive.
func (w *Workspace) Ensure() error {
	for _, dir := range w.subdirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, "workspace", "ensure",
				fmt.Sprintf("create %s", dir), err)
		}
	}
	return nil
}

// Logical artifact names resolved by Path.
const (
	FileOriginalAudio  = "original_audio"
	FileOriginalVideo  = "original_video"
	FileTranscript     = "transcript"
	FilePass1Analysis  = "pass1_analysis"
	FilePass2Filtered  = "pass2_filtered"
	FileUnifiedScript  = "unified_script"
	FileVerifiedScript = "verified_script"
	FileFinalVideo     = "final_video"
)

// Path maps a logical artifact name to its location inside the episode
// tree. Unknown names are a programming error surfaced as validation.
func (w *Workspace) Path(name string) (string, error) {
	dir := w.Dir()
	switch name {
	case FileOriginalAudio:
		return filepath.Join(dir, "Input", "original_audio.mp3"), nil
	case FileOriginalVideo:
		return filepath.Join(dir, "Input", "original_video.mp4"), nil
	case FileTranscript:
		return filepath.Join(dir, "Processing", "transcript.json"), nil
	case FilePass1Analysis:
		return filepath.Join(dir, "Processing", "pass1_analysis.json"), nil
	case FilePass2Filtered:
		return filepath.Join(dir, "Processing", "pass2_filtered.json"), nil
	case FileUnifiedScript:
		return filepath.Join(dir, "Processing", "unified_script.json"), nil
	case FileVerifiedScript:
		return filepath.Join(dir, "Processing", "verified_script.json"), nil
	case FileFinalVideo:
		return filepath.Join(dir, "Output", "Final", w.episode.Label+"_final.mp4"), nil
	}
	return "", services.Wrap(services.ErrValidation, "workspace", "path",
		fmt.Sprintf("unknown artifact name %q", name), nil)
}

// AudioPath returns the synthesized narration file for a script section.
func (w *Workspace) AudioPath(sectionID string) string {
	return filepath.Join(w.Dir(), "Output", "Audio", sectionID+".mp3")
}

// ClipPath returns the extracted source clip for a video_clip section.
func (w *Workspace) ClipPath(sectionID string) string {
	return filepath.Join(w.Dir(), "Output", "Video", sectionID+".mp4")
}

// LogPath returns a per-stage log file location.
func (w *Workspace) LogPath(stage string) string {
	return filepath.Join(w.Dir(), "Logs", stage+".log")
}

// Exists reports whether a path is present with nonzero size.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// WriteAtomic writes an artifact through a temp file plus rename so
// consumers never observe partial content.
func (w *Workspace) WriteAtomic(path string, data []byte) error {
	if err := fileutil.WriteAtomic(path, data); err != nil {
		return services.Wrap(services.ErrConfiguration, "workspace", "write",
			fmt.Sprintf("persist %s", filepath.Base(path)), err)
	}
	return nil
}
