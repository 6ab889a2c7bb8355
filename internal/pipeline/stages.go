package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"factreel/internal/artifact"
	"factreel/internal/fileutil"
	"factreel/internal/logging"
	"factreel/internal/pipeline/events"
	"factreel/internal/services"
	"factreel/internal/services/retry"
	"factreel/internal/workspace"
)

// stage couples a stage's skip check with its work function. done reports
// whether all outputs are already present and valid; run executes the
// stage, regenerating outputs unconditionally when force is set.
type stage struct {
	name string
	done func(ctx context.Context) (bool, error)
	run  func(ctx context.Context, force bool) error
}

func (r *Runner) stages() []stage {
	return []stage{
		{StageExtract, r.extractDone, r.runExtract},
		{StageTranscribe, r.artifactDone(workspace.FileTranscript, artifact.SchemaTranscript), r.runTranscribe},
		{StageAnalyze, r.artifactDone(workspace.FilePass1Analysis, artifact.SchemaPass1Analysis), r.runAnalyze},
		{StageNarrate, r.narrateDone, r.runNarrate},
		{StageVoice, r.voiceDone, r.runVoice},
		{StageClip, r.clipDone, r.runClip},
		{StageCompose, r.composeDone, r.runCompose},
	}
}

func (r *Runner) artifactDone(name string, schema artifact.Schema) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		_, ok, err := r.cache.Get(name, schema)
		return ok, err
	}
}

func (r *Runner) mediaPath(name string) (string, error) {
	return r.ws.Path(name)
}

// --- stage 1: extract ---

// localSource reports whether the episode source is an existing local
// audio file rather than a remote reference. Local sources have no video
// to download, so the clip stage is unavailable for them.
func localSource(source string) bool {
	info, err := os.Stat(source)
	return err == nil && info.Mode().IsRegular()
}

func (r *Runner) extractDone(context.Context) (bool, error) {
	audio, err := r.mediaPath(workspace.FileOriginalAudio)
	if err != nil {
		return false, err
	}
	if !workspace.Exists(audio) {
		return false, nil
	}
	if localSource(r.ws.Episode().Source) {
		return true, nil
	}
	video, err := r.mediaPath(workspace.FileOriginalVideo)
	if err != nil {
		return false, err
	}
	return workspace.Exists(video), nil
}

func (r *Runner) runExtract(ctx context.Context, force bool) error {
	source := r.ws.Episode().Source
	audio, err := r.mediaPath(workspace.FileOriginalAudio)
	if err != nil {
		return err
	}

	if localSource(source) {
		if force || !workspace.Exists(audio) {
			r.emit(StageExtract, events.StateProgress, 50, "importing local audio")
			if err := fileutil.CopyFile(source, audio); err != nil {
				return services.Wrap(services.ErrInput, StageExtract, "import",
					fmt.Sprintf("copy %s", source), err)
			}
		}
		return nil
	}

	video, err := r.mediaPath(workspace.FileOriginalVideo)
	if err != nil {
		return err
	}
	if force || !workspace.Exists(audio) {
		r.emit(StageExtract, events.StateProgress, 10, "downloading audio")
		err := retry.Do(ctx, func(ctx context.Context) error {
			return r.fetcher.DownloadAudio(ctx, source, audio)
		}, r.retryOptions())
		if err != nil {
			return err
		}
	}
	if force || !workspace.Exists(video) {
		r.emit(StageExtract, events.StateProgress, 55, "downloading video")
		err := retry.Do(ctx, func(ctx context.Context) error {
			return r.fetcher.DownloadVideo(ctx, source, video)
		}, r.retryOptions())
		if err != nil {
			return err
		}
	}
	return nil
}

// --- stage 2: transcribe ---

func (r *Runner) runTranscribe(ctx context.Context, force bool) error {
	if force {
		if err := r.cache.Invalidate(workspace.FileTranscript); err != nil {
			return err
		}
	}
	audio, err := r.mediaPath(workspace.FileOriginalAudio)
	if err != nil {
		return err
	}
	if !workspace.Exists(audio) {
		return services.Wrap(services.ErrInput, StageTranscribe, "run", "source audio missing, run extract first", nil)
	}

	workDir := filepath.Join(r.ws.Dir(), "Processing", "diarize")
	var transcript *artifact.Transcript
	err = retry.Do(ctx, func(ctx context.Context) error {
		var err error
		transcript, err = r.diarizer.Transcribe(ctx, audio, workDir)
		return err
	}, r.retryOptions())
	if err != nil {
		return err
	}
	return r.cache.Put(workspace.FileTranscript, artifact.SchemaTranscript, transcript)
}

// --- stages 3 and 4: analysis ---

func (r *Runner) runAnalyze(ctx context.Context, force bool) error {
	if force {
		if err := r.cache.Invalidate(workspace.FilePass1Analysis); err != nil {
			return err
		}
	}
	_, err := r.analyzer.RunPass1(ctx)
	return err
}

// narrateDone checks all three stage-4 artifacts so a corrupted
// intermediate (quarantined on read) forces the stage to re-run.
func (r *Runner) narrateDone(ctx context.Context) (bool, error) {
	for name, schema := range map[string]artifact.Schema{
		workspace.FilePass2Filtered:  artifact.SchemaPass2Filtered,
		workspace.FileUnifiedScript:  artifact.SchemaUnifiedScript,
		workspace.FileVerifiedScript: artifact.SchemaVerifiedScript,
	} {
		_, ok, err := r.cache.Get(name, schema)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (r *Runner) runNarrate(ctx context.Context, force bool) error {
	if force {
		for _, name := range []string{workspace.FilePass2Filtered, workspace.FileUnifiedScript, workspace.FileVerifiedScript} {
			if err := r.cache.Invalidate(name); err != nil {
				return err
			}
		}
	}
	_, err := r.analyzer.RunFilterScriptVerify(ctx)
	return err
}

// verifiedScript loads the stage-4 output required by the later stages.
func (r *Runner) verifiedScript() (*artifact.Script, error) {
	value, ok, err := r.cache.Get(workspace.FileVerifiedScript, artifact.SchemaVerifiedScript)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrInput, "pipeline", "script", "verified script missing, run narrate first", nil)
	}
	return value.(*artifact.Script), nil
}

// --- stage 5: voice ---

func (r *Runner) voiceDone(context.Context) (bool, error) {
	script, err := r.verifiedScript()
	if err != nil {
		if errors.Is(err, services.ErrInput) {
			return false, nil
		}
		return false, err
	}
	for _, section := range script.NarrationSections() {
		if !workspace.Exists(r.ws.AudioPath(section.SectionID)) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Runner) runVoice(ctx context.Context, force bool) error {
	script, err := r.verifiedScript()
	if err != nil {
		return err
	}
	sections := script.NarrationSections()
	if len(sections) == 0 {
		return services.Wrap(services.ErrValidation, StageVoice, "run", "script has no narration sections", nil)
	}

	workers := 2
	if r.cfg != nil && r.cfg.Concurrency.TTSWorkers > 0 {
		workers = r.cfg.Concurrency.TTSWorkers
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	var completed int64
	total := len(sections)
	for _, section := range sections {
		group.Go(func() error {
			dest := r.ws.AudioPath(section.SectionID)
			if !force && workspace.Exists(dest) {
				r.progressTick(StageVoice, &completed, total, section.SectionID)
				return nil
			}
			err := retry.Do(groupCtx, func(ctx context.Context) error {
				return r.speech.Synthesize(ctx, section.ScriptContent, section.AudioTone, dest)
			}, r.retryOptions())
			if err != nil {
				return fmt.Errorf("section %s: %w", section.SectionID, err)
			}
			r.progressTick(StageVoice, &completed, total, section.SectionID)
			return nil
		})
	}
	return group.Wait()
}

// --- stage 6: clip ---

func (r *Runner) clipDone(context.Context) (bool, error) {
	script, err := r.verifiedScript()
	if err != nil {
		if errors.Is(err, services.ErrInput) {
			return false, nil
		}
		return false, err
	}
	for _, section := range script.ClipSections() {
		if !workspace.Exists(r.ws.ClipPath(section.SectionID)) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Runner) runClip(ctx context.Context, force bool) error {
	script, err := r.verifiedScript()
	if err != nil {
		return err
	}
	source, err := r.mediaPath(workspace.FileOriginalVideo)
	if err != nil {
		return err
	}
	if !workspace.Exists(source) {
		return services.Wrap(services.ErrInput, StageClip, "run", "source video missing, run extract first", nil)
	}
	clips := script.ClipSections()
	if len(clips) == 0 {
		return services.Wrap(services.ErrValidation, StageClip, "run", "script has no clip sections", nil)
	}

	workers := 2
	if r.cfg != nil && r.cfg.Concurrency.ClipWorkers > 0 {
		workers = r.cfg.Concurrency.ClipWorkers
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	var completed int64
	total := len(clips)
	for _, section := range clips {
		group.Go(func() error {
			dest := r.ws.ClipPath(section.SectionID)
			if !force && workspace.Exists(dest) {
				r.progressTick(StageClip, &completed, total, section.SectionID)
				return nil
			}
			err := retry.Do(groupCtx, func(ctx context.Context) error {
				return r.video.Clip(ctx, source, section.StartTime, section.EndTime, dest)
			}, r.retryOptions())
			if err != nil {
				return fmt.Errorf("section %s: %w", section.SectionID, err)
			}
			r.progressTick(StageClip, &completed, total, section.SectionID)
			return nil
		})
	}
	return group.Wait()
}

// --- stage 7: compose ---

func (r *Runner) composeDone(context.Context) (bool, error) {
	final, err := r.mediaPath(workspace.FileFinalVideo)
	if err != nil {
		return false, err
	}
	return workspace.Exists(final), nil
}

// runCompose renders each narration audio into a video segment and joins
// everything in verified-script order.
func (r *Runner) runCompose(ctx context.Context, force bool) error {
	script, err := r.verifiedScript()
	if err != nil {
		return err
	}
	final, err := r.mediaPath(workspace.FileFinalVideo)
	if err != nil {
		return err
	}
	renderDir := filepath.Join(r.ws.Dir(), "Processing", "render")
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, StageCompose, "run", "create render dir", err)
	}

	parts := make([]string, 0, len(script.Sections))
	total := len(script.Sections)
	for i, section := range script.Sections {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrCancelled, StageCompose, "run", "cancelled", err)
		}
		var part string
		if section.IsClip() {
			part = r.ws.ClipPath(section.SectionID)
			if !workspace.Exists(part) {
				return services.Wrap(services.ErrInput, StageCompose, "run",
					fmt.Sprintf("clip %s missing, run clip first", section.SectionID), nil)
			}
		} else {
			audio := r.ws.AudioPath(section.SectionID)
			if !workspace.Exists(audio) {
				return services.Wrap(services.ErrInput, StageCompose, "run",
					fmt.Sprintf("narration audio %s missing, run voice first", section.SectionID), nil)
			}
			part = filepath.Join(renderDir, section.SectionID+".mp4")
			if force || !workspace.Exists(part) {
				err := retry.Do(ctx, func(ctx context.Context) error {
					return r.video.NarrationVideo(ctx, audio, part)
				}, r.retryOptions())
				if err != nil {
					return fmt.Errorf("section %s: %w", section.SectionID, err)
				}
			}
		}
		parts = append(parts, part)
		r.emit(StageCompose, events.StateProgress, float64(i+1)/float64(total+1)*100, section.SectionID)
	}

	return retry.Do(ctx, func(ctx context.Context) error {
		return r.video.Concat(ctx, parts, renderDir, final)
	}, r.retryOptions())
}

func (r *Runner) emit(stageName string, state events.State, pct float64, message string) {
	if err := r.emitter.Emit(stageName, state, pct, message); err != nil {
		r.logger.Warn("event emit failed", logging.String("stage", stageName), logging.Error(err))
	}
}
