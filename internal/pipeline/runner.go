package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"factreel/internal/logging"
	"factreel/internal/pipeline/events"
	"factreel/internal/services"
)

// Options selects which stages a run executes.
type Options struct {
	// Stages names an explicit subset; empty means the From/To range.
	Stages []string
	From   string
	To     string
	// Force re-runs the selected stages even when their outputs exist.
	Force bool
	// DryRun reports the plan without executing anything.
	DryRun bool
}

// StageStatus summarizes one stage's outcome.
type StageStatus string

const (
	StatusDone     StageStatus = "done"
	StatusSkipped  StageStatus = "skipped"
	StatusFailed   StageStatus = "failed"
	StatusPlanned  StageStatus = "planned"
	StatusNotRun   StageStatus = "not-run"
	StatusUpstream StageStatus = "blocked"
)

// StageResult records one stage's outcome for the run report.
type StageResult struct {
	Stage    string
	Status   StageStatus
	Duration time.Duration
	Error    string
}

// Report summarizes a pipeline run.
type Report struct {
	SessionID string
	Episode   string
	Results   []StageResult
	Final     string
}

// stageIndex resolves a stage selector, accepting either the stage name
// or its 1-based position.
func stageIndex(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if n, err := strconv.Atoi(name); err == nil {
		if n >= 1 && n <= len(StageNames()) {
			return n - 1
		}
		return -1
	}
	return slices.Index(StageNames(), name)
}

// plan resolves the requested stage selection into the execution set,
// expanded with any earlier stage whose outputs are missing. satisfied
// lists the upstream stages whose cached outputs cover the selection.
func (r *Runner) plan(ctx context.Context, opts Options) (selected, satisfied map[string]bool, err error) {
	all := StageNames()
	selected = make(map[string]bool, len(all))
	satisfied = make(map[string]bool, len(all))

	if len(opts.Stages) > 0 {
		for _, name := range opts.Stages {
			idx := stageIndex(name)
			if idx < 0 {
				return nil, nil, services.Wrap(services.ErrInput, "pipeline", "plan",
					fmt.Sprintf("unknown stage %q (valid: %s)", name, strings.Join(all, ", ")), nil)
			}
			selected[all[idx]] = true
		}
	} else {
		from, to := 0, len(all)-1
		if opts.From != "" {
			if from = stageIndex(opts.From); from < 0 {
				return nil, nil, services.Wrap(services.ErrInput, "pipeline", "plan",
					fmt.Sprintf("unknown stage %q", opts.From), nil)
			}
		}
		if opts.To != "" {
			if to = stageIndex(opts.To); to < 0 {
				return nil, nil, services.Wrap(services.ErrInput, "pipeline", "plan",
					fmt.Sprintf("unknown stage %q", opts.To), nil)
			}
		}
		if from > to {
			return nil, nil, services.Wrap(services.ErrInput, "pipeline", "plan",
				fmt.Sprintf("--from %s is after --to %s", all[from], all[to]), nil)
		}
		for i := from; i <= to; i++ {
			selected[all[i]] = true
		}
	}

	// Dependency closure: anything before the earliest selected stage
	// with missing outputs must run too.
	earliest := len(all)
	for name := range selected {
		if idx := stageIndex(name); idx < earliest {
			earliest = idx
		}
	}
	for i, st := range r.stages() {
		if i >= earliest {
			break
		}
		done, err := st.done(ctx)
		if err != nil {
			return nil, nil, err
		}
		if done {
			satisfied[st.name] = true
		} else {
			selected[st.name] = true
		}
	}
	return selected, satisfied, nil
}

// Run executes the selected stages in order and returns the report. The
// first stage failure stops the run; later selected stages are reported
// as blocked.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	sessionID := r.session
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	report := &Report{SessionID: sessionID, Episode: r.ws.Episode().Label}

	selected, satisfied, err := r.plan(ctx, opts)
	if err != nil {
		return report, err
	}

	var failed error
	for _, st := range r.stages() {
		if err := ctx.Err(); err != nil && failed == nil {
			failed = services.Wrap(services.ErrCancelled, "pipeline", "run", "run cancelled", err)
		}

		if !selected[st.name] {
			if satisfied[st.name] {
				// Upstream of the selection with outputs cached; the
				// session log still records why it did not run.
				r.emit(st.name, events.StateSkipped, 100, "outputs cached")
			}
			report.Results = append(report.Results, StageResult{Stage: st.name, Status: StatusNotRun})
			continue
		}
		if failed != nil {
			report.Results = append(report.Results, StageResult{Stage: st.name, Status: StatusUpstream})
			continue
		}

		if opts.DryRun {
			status := StatusPlanned
			if !opts.Force {
				done, err := st.done(ctx)
				if err != nil {
					return report, err
				}
				if done {
					status = StatusSkipped
				}
			}
			report.Results = append(report.Results, StageResult{Stage: st.name, Status: status})
			continue
		}

		forceStage := opts.Force && requested(opts, st.name)
		if !forceStage {
			done, err := st.done(ctx)
			if err != nil {
				return report, err
			}
			if done {
				r.emit(st.name, events.StateSkipped, 100, "outputs up to date")
				r.logger.Info("stage skipped", logging.String("stage", st.name))
				report.Results = append(report.Results, StageResult{Stage: st.name, Status: StatusSkipped})
				continue
			}
		}

		r.emit(st.name, events.StateStarted, 0, "")
		r.logger.Info("stage started", logging.String("stage", st.name))
		started := time.Now()
		stop := r.startHeartbeat(ctx, st.name)
		err := st.run(services.WithStage(ctx, st.name), forceStage)
		stop()
		elapsed := time.Since(started)

		if err != nil {
			r.emit(st.name, events.StateFailed, 0, err.Error())
			r.logger.Error("stage failed",
				logging.String("stage", st.name),
				logging.Duration("elapsed", elapsed),
				logging.Error(err))
			report.Results = append(report.Results, StageResult{
				Stage: st.name, Status: StatusFailed, Duration: elapsed, Error: err.Error(),
			})
			failed = fmt.Errorf("stage %s: %w", st.name, err)
			continue
		}

		r.emit(st.name, events.StateCompleted, 100, "")
		r.logger.Info("stage completed",
			logging.String("stage", st.name),
			logging.Duration("elapsed", elapsed))
		report.Results = append(report.Results, StageResult{Stage: st.name, Status: StatusDone, Duration: elapsed})
	}

	if final, err := r.mediaPath("final_video"); err == nil {
		report.Final = final
	}
	return report, failed
}

// requested reports whether the user named this stage explicitly, either
// via --stages or by including it in the From/To range.
func requested(opts Options, name string) bool {
	idx := stageIndex(name)
	if len(opts.Stages) > 0 {
		for _, s := range opts.Stages {
			if stageIndex(s) == idx {
				return true
			}
		}
		return false
	}
	from, to := 0, len(StageNames())-1
	if opts.From != "" {
		from = stageIndex(opts.From)
	}
	if opts.To != "" {
		to = stageIndex(opts.To)
	}
	return idx >= from && idx <= to
}

// defaultHeartbeat is how often a stage stuck inside one blocking adapter
// call still reports liveness to the session log.
const defaultHeartbeat = 5 * time.Second

// startHeartbeat emits periodic progress for a stage until the returned
// stop function is called, so long single-call stages stay visible.
func (r *Runner) startHeartbeat(ctx context.Context, stageName string) (stop func()) {
	if r.emitter == nil {
		return func() {}
	}
	every := r.heartbeat
	if every <= 0 {
		every = defaultHeartbeat
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.emit(stageName, events.StateProgress, 0, "in progress")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *Runner) progressTick(stageName string, completed *int64, total int, message string) {
	n := atomic.AddInt64(completed, 1)
	r.emit(stageName, events.StateProgress, float64(n)/float64(total)*100, message)
}
