package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"factreel/internal/artifact"
	"factreel/internal/config"
	"factreel/internal/logging"
	"factreel/internal/services"
	"factreel/internal/services/llm"
	"factreel/internal/stagecache"
	"factreel/internal/workspace"
)

// LLM is the completion surface the controller needs. Satisfied by
// *llm.Client.
type LLM interface {
	CompleteJSON(ctx context.Context, system, user string, attachments ...llm.FileRef) (string, error)
	UploadFile(ctx context.Context, name string, data []byte) (llm.FileRef, error)
	DeleteFile(ctx context.Context, ref llm.FileRef) error
}

// Controller drives the four content-analysis sub-stages against the
// episode's stage cache.
type Controller struct {
	llm     LLM
	cache   *stagecache.Cache
	cfg     config.Analysis
	rules   string
	episode string
	logger  *slog.Logger
}

// NewController binds the controller to one episode.
func NewController(client LLM, cache *stagecache.Cache, cfg config.Analysis, rules, episode string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		llm:     client,
		cache:   cache,
		cfg:     cfg,
		rules:   rules,
		episode: episode,
		logger:  logger,
	}
}

func (c *Controller) maxAttempts() int {
	if c.cfg.MaxAttempts > 0 {
		return c.cfg.MaxAttempts
	}
	return 3
}

// generate runs fn up to maxAttempts times, retrying only on validation
// failures: a schema or invariant violation discards the model response
// and counts the attempt, anything else aborts immediately.
func (c *Controller) generate(subStage string, fn func() error) error {
	attempts := c.maxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, services.ErrValidation) {
			return err
		}
		lastErr = err
		c.logger.Warn("discarding invalid model response",
			logging.String("sub_stage", subStage),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Error(err))
	}
	return services.Wrap(services.ErrValidation, "analysis", subStage,
		fmt.Sprintf("no valid response after %d attempt(s)", attempts), lastErr)
}

// RunPass1 produces the broad candidate set from the cached transcript.
func (c *Controller) RunPass1(ctx context.Context) (*artifact.Pass1Analysis, error) {
	if cached, ok, err := c.cache.Get(workspace.FilePass1Analysis, artifact.SchemaPass1Analysis); err != nil {
		return nil, err
	} else if ok {
		return cached.(*artifact.Pass1Analysis), nil
	}

	transcriptValue, ok, err := c.cache.Get(workspace.FileTranscript, artifact.SchemaTranscript)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrInput, "analysis", "pass1", "transcript artifact missing", nil)
	}
	transcript := transcriptValue.(*artifact.Transcript)
	transcriptJSON, err := artifact.Encode(transcript)
	if err != nil {
		return nil, err
	}

	// The transcript rides as an attachment so large content stays
	// separated from instructions.
	ref, err := c.llm.UploadFile(ctx, "transcript.json", transcriptJSON)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.llm.DeleteFile(context.WithoutCancel(ctx), ref); err != nil {
			c.logger.Warn("leaked uploaded transcript handle",
				logging.String("file_id", ref.ID), logging.Error(err))
		}
	}()

	var result *artifact.Pass1Analysis
	err = c.generate("pass1", func() error {
		content, err := c.llm.CompleteJSON(ctx, pass1SystemPrompt, pass1UserPrompt(c.rules, c.cfg.TargetCount), ref)
		if err != nil {
			return err
		}
		var parsed artifact.Pass1Analysis
		if err := llm.DecodeJSON(content, &parsed); err != nil {
			return services.Wrap(services.ErrValidation, "analysis", "pass1", "parse model response", err)
		}
		encoded, err := artifact.Encode(parsed)
		if err != nil {
			return err
		}
		decoded, err := artifact.DecodePass1(encoded)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(workspace.FilePass1Analysis, artifact.SchemaPass1Analysis, result); err != nil {
		return nil, err
	}
	c.logger.Info("pass-1 analysis complete", logging.Int("candidates", len(result.Segments)))
	return result, nil
}

// RunFilterScriptVerify runs the remaining three sub-stages in sequence:
// pass-2 scoring and filtering, script generation, and rebuttal
// verification. Each resumes from the cache.
func (c *Controller) RunFilterScriptVerify(ctx context.Context) (*artifact.Script, error) {
	filtered, err := c.runPass2(ctx)
	if err != nil {
		return nil, err
	}
	unified, err := c.runScript(ctx, filtered)
	if err != nil {
		return nil, err
	}
	return c.runVerify(ctx, unified, filtered)
}

type segmentScores struct {
	SegmentID string `json:"segment_id"`
	artifact.QualityScores
}

type scoreResponse struct {
	Scores []segmentScores `json:"scores"`
}

func (c *Controller) runPass2(ctx context.Context) (*artifact.Pass2Filtered, error) {
	pass1Value, ok, err := c.cache.Get(workspace.FilePass1Analysis, artifact.SchemaPass1Analysis)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrInput, "analysis", "pass2", "pass-1 artifact missing", nil)
	}
	pass1 := pass1Value.(*artifact.Pass1Analysis)

	if cached, ok, err := c.cache.Get(workspace.FilePass2Filtered, artifact.SchemaPass2Filtered); err != nil {
		return nil, err
	} else if ok {
		filtered := cached.(*artifact.Pass2Filtered)
		subsetErr := filtered.SubsetOf(pass1)
		if subsetErr == nil {
			return filtered, nil
		}
		// Stale against a regenerated pass-1 set: treat as a miss.
		if err := c.cache.Quarantine(workspace.FilePass2Filtered, subsetErr); err != nil {
			return nil, err
		}
	}

	pass1JSON, err := artifact.Encode(pass1)
	if err != nil {
		return nil, err
	}

	var filtered *artifact.Pass2Filtered
	err = c.generate("pass2", func() error {
		content, err := c.llm.CompleteJSON(ctx, pass2SystemPrompt, pass2UserPrompt(pass1JSON))
		if err != nil {
			return err
		}
		var response scoreResponse
		if err := llm.DecodeJSON(content, &response); err != nil {
			return services.Wrap(services.ErrValidation, "analysis", "pass2", "parse model response", err)
		}
		scored, err := mergeScores(pass1, response)
		if err != nil {
			return err
		}
		kept, warnings := Filter(scored, FilterOptionsFromConfig(c.cfg))
		for _, warning := range warnings {
			c.logger.Warn(warning, logging.String("sub_stage", "pass2"))
		}
		if len(kept) == 0 {
			return services.Wrap(services.ErrValidation, "analysis", "pass2", "no segments survived filtering", nil)
		}
		candidate := &artifact.Pass2Filtered{Segments: kept}
		if err := candidate.SubsetOf(pass1); err != nil {
			return err
		}
		filtered = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(workspace.FilePass2Filtered, artifact.SchemaPass2Filtered, filtered); err != nil {
		return nil, err
	}
	c.logger.Info("pass-2 filtering complete",
		logging.Int("candidates", len(pass1.Segments)),
		logging.Int("kept", len(filtered.Segments)))
	return filtered, nil
}

// mergeScores joins model scores onto pass-1 segments and computes the
// composite locally so ranking stays deterministic.
func mergeScores(pass1 *artifact.Pass1Analysis, response scoreResponse) ([]artifact.ScoredSegment, error) {
	byID := make(map[string]artifact.QualityScores, len(response.Scores))
	for _, entry := range response.Scores {
		if _, dup := byID[entry.SegmentID]; dup {
			return nil, services.Wrap(services.ErrValidation, "analysis", "pass2",
				fmt.Sprintf("duplicate scores for %s", entry.SegmentID), nil)
		}
		byID[entry.SegmentID] = entry.QualityScores
	}

	scored := make([]artifact.ScoredSegment, 0, len(pass1.Segments))
	for _, seg := range pass1.Segments {
		scores, ok := byID[seg.SegmentID]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "analysis", "pass2",
				fmt.Sprintf("no scores for %s", seg.SegmentID), nil)
		}
		for _, value := range []float64{
			scores.QuoteStrength, scores.FactualAccuracy, scores.PotentialImpact,
			scores.Specificity, scores.ContextAppropriateness,
		} {
			if value < 1 || value > 10 {
				return nil, services.Wrap(services.ErrValidation, "analysis", "pass2",
					fmt.Sprintf("score %.2f for %s outside [1, 10]", value, seg.SegmentID), nil)
			}
		}
		scored = append(scored, artifact.ScoredSegment{
			Segment:   seg,
			Scores:    scores,
			Composite: scores.Composite(),
		})
	}
	return scored, nil
}

func (c *Controller) runScript(ctx context.Context, filtered *artifact.Pass2Filtered) (*artifact.Script, error) {
	if cached, ok, err := c.cache.Get(workspace.FileUnifiedScript, artifact.SchemaUnifiedScript); err != nil {
		return nil, err
	} else if ok {
		script := cached.(*artifact.Script)
		refErr := script.ClipReferences(filtered)
		if refErr == nil {
			return script, nil
		}
		// References segments the rebuilt pass-2 set no longer keeps.
		if err := c.cache.Quarantine(workspace.FileUnifiedScript, refErr); err != nil {
			return nil, err
		}
	}

	pass2JSON, err := artifact.Encode(filtered)
	if err != nil {
		return nil, err
	}

	var script *artifact.Script
	err = c.generate("script", func() error {
		content, err := c.llm.CompleteJSON(ctx, scriptSystemPrompt, scriptUserPrompt(pass2JSON))
		if err != nil {
			return err
		}
		var parsed artifact.Script
		if err := llm.DecodeJSON(content, &parsed); err != nil {
			return services.Wrap(services.ErrValidation, "analysis", "script", "parse model response", err)
		}
		parsed.Episode = c.episode
		if err := parsed.ValidateStructure(artifact.SchemaUnifiedScript); err != nil {
			return err
		}
		if err := parsed.ClipReferences(filtered); err != nil {
			return err
		}
		script = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(workspace.FileUnifiedScript, artifact.SchemaUnifiedScript, script); err != nil {
		return nil, err
	}
	c.logger.Info("script generation complete",
		logging.Int("sections", len(script.Sections)),
		logging.Int("clips", len(script.ClipSections())))
	return script, nil
}

func (c *Controller) runVerify(ctx context.Context, unified *artifact.Script, filtered *artifact.Pass2Filtered) (*artifact.Script, error) {
	if cached, ok, err := c.cache.Get(workspace.FileVerifiedScript, artifact.SchemaVerifiedScript); err != nil {
		return nil, err
	} else if ok {
		verified := cached.(*artifact.Script)
		preserveErr := artifact.VerifyPreserves(unified, verified)
		if preserveErr == nil {
			return verified, nil
		}
		// Structure drifted from a regenerated unified script: re-verify.
		if err := c.cache.Quarantine(workspace.FileVerifiedScript, preserveErr); err != nil {
			return nil, err
		}
	}

	scriptJSON, err := artifact.Encode(unified)
	if err != nil {
		return nil, err
	}

	var verified *artifact.Script
	err = c.generate("verify", func() error {
		content, err := c.llm.CompleteJSON(ctx, verifySystemPrompt, verifyUserPrompt(unified, filtered, scriptJSON))
		if err != nil {
			return err
		}
		var parsed artifact.Script
		if err := llm.DecodeJSON(content, &parsed); err != nil {
			return services.Wrap(services.ErrValidation, "analysis", "verify", "parse model response", err)
		}
		parsed.Episode = c.episode
		if err := parsed.ValidateStructure(artifact.SchemaVerifiedScript); err != nil {
			return err
		}
		if err := artifact.VerifyPreserves(unified, &parsed); err != nil {
			return err
		}
		verified = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(workspace.FileVerifiedScript, artifact.SchemaVerifiedScript, verified); err != nil {
		return nil, err
	}
	c.logger.Info("rebuttal verification complete", logging.Int("sections", len(verified.Sections)))
	return verified, nil
}
