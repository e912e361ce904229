// Package dda runs complete DDA analyses: it turns a request into a command,
// executes the binary, decodes every requested variant and records the run.
package dda

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ddaharness/internal/config"
	"ddaharness/internal/decoder"
	"ddaharness/internal/encoder"
	"ddaharness/internal/logging"
	"ddaharness/internal/store"
	"ddaharness/internal/tactile"
	"ddaharness/internal/types"
)

// Recorder persists finished runs. *store.RunStore implements it.
type Recorder interface {
	RecordRun(ctx context.Context, rec store.RunRecord) error
}

// Options configures an Analyzer.
type Options struct {
	// WorkDir receives one subdirectory per run.
	WorkDir string

	// KeepOutputs leaves variant files on disk after a successful decode.
	KeepOutputs bool

	// Parallelism bounds AnalyzeBatch when the caller passes zero.
	Parallelism int

	// Timeout per run. Zero uses the engine default.
	Timeout time.Duration

	// Recorder is optional.
	Recorder Recorder
}

// Analyzer orchestrates encoder, engine and decoder for one binary.
type Analyzer struct {
	engine  *tactile.Engine
	encoder *encoder.Encoder
	opts    Options
}

// Outcome is the result of an asynchronous or batched analysis.
type Outcome struct {
	Report *Report
	Err    error
}

// NewAnalyzer creates an analyzer around an engine and encoder.
func NewAnalyzer(engine *tactile.Engine, enc *encoder.Encoder, opts Options) *Analyzer {
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "dda-runs")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Analyzer{engine: engine, encoder: enc, opts: opts}
}

// New wires an analyzer from configuration. rec may be nil.
func New(cfg *config.Config, rec Recorder) *Analyzer {
	engine := tactile.NewEngine(cfg.Binary.Path, cfg.ExecutorConfig())
	engine.SetAuditCallback(tactile.AuditTrail())
	enc := encoder.New(encoder.Options{
		Shell:      cfg.Binary.Shell,
		ModelTerms: cfg.Analysis.ModelTerms,
	})
	return NewAnalyzer(engine, enc, Options{
		WorkDir:     cfg.Execution.WorkDir,
		KeepOutputs: cfg.Execution.KeepOutputs,
		Parallelism: cfg.Execution.MaxParallelRuns,
		Recorder:    rec,
	})
}

// Engine returns the underlying execution engine.
func (a *Analyzer) Engine() *tactile.Engine {
	return a.engine
}

// run is one prepared invocation.
type run struct {
	id      string
	dir     string
	req     types.AnalysisRequest
	cmd     types.InvocationCommand
	started time.Time
}

// Analyze runs req to completion, blocking until the binary exits and its
// output has been decoded.
func (a *Analyzer) Analyze(ctx context.Context, req types.AnalysisRequest) (*Report, error) {
	r, err := a.prepare(req)
	if err != nil {
		return nil, err
	}
	result, runErr := a.engine.RunWithTimeout(ctx, r.cmd, a.opts.Timeout)
	return a.finish(ctx, r, result, runErr)
}

// AnalyzeAsync starts req and returns at once. The channel receives exactly one
// Outcome and is then closed. Cancelling ctx kills the run.
func (a *Analyzer) AnalyzeAsync(ctx context.Context, req types.AnalysisRequest) <-chan Outcome {
	out := make(chan Outcome, 1)

	r, err := a.prepare(req)
	if err != nil {
		out <- Outcome{Err: err}
		close(out)
		return out
	}

	job := a.engine.SubmitWithTimeout(ctx, r.cmd, a.opts.Timeout)
	go func() {
		defer close(out)
		<-job.Done()
		result, runErr, _ := job.Result()
		report, err := a.finish(ctx, r, result, runErr)
		out <- Outcome{Report: report, Err: err}
	}()
	return out
}

// AnalyzeBatch runs reqs with at most parallelism processes at a time. Zero uses
// the configured bound. A failed request does not stop its siblings; outcomes are
// returned in request order. The error is non-nil only when ctx ended early.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, reqs []types.AnalysisRequest, parallelism int) ([]Outcome, error) {
	if parallelism < 1 {
		parallelism = a.opts.Parallelism
	}
	outcomes := make([]Outcome, len(reqs))

	timer := logging.StartTimer(logging.CategoryAnalyzer, fmt.Sprintf("Batch of %d analyses", len(reqs)))
	defer timer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Err: err}
				return nil
			}
			report, err := a.Analyze(gctx, req)
			outcomes[i] = Outcome{Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logging.Analyzer("Batch finished: %d/%d succeeded", len(reqs)-failed, len(reqs))
	return outcomes, ctx.Err()
}

// prepare validates req, allocates a fresh output stem and builds the command.
func (a *Analyzer) prepare(req types.AnalysisRequest) (*run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	dir := filepath.Join(a.opts.WorkDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	cmd, err := a.encoder.Build(req, a.engine.BinaryPath(), filepath.Join(dir, id))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	logging.AnalyzerDebug("Prepared run %s: %s", id, cmd.String())
	return &run{id: id, dir: dir, req: req, cmd: cmd, started: time.Now()}, nil
}

// finish decodes a completed run, records it and cleans up.
func (a *Analyzer) finish(ctx context.Context, r *run, result *types.ProcessResult, runErr error) (*Report, error) {
	report := &Report{
		RunID:   r.id,
		Request: r.req,
		Command: r.cmd.Argv(),
		Format:  r.cmd.Format().String(),
		Process: result,
	}

	err := runErr
	if err == nil {
		report.Results, err = decoder.Decode(r.cmd.OutputPath(), r.cmd.Variants())
	}
	if err != nil {
		a.logFailure(r, result, err)
		if runErr == nil {
			// Engine failures are already in the audit trail.
			logging.Audit().RunError(r.id, types.Kind(err), err)
		}
		a.record(ctx, r, report, err)
		return nil, err
	}

	report.collectWarnings()
	audit := logging.Audit()
	for _, abbrev := range report.Variants() {
		res := report.Results[abbrev]
		for _, w := range res.Warnings {
			audit.DecodeWarning(r.id, abbrev, w)
		}
		if res.Found() {
			audit.DecodeResult(r.id, abbrev, res.Rows(), res.Cols())
		}
	}
	logging.Analyzer("Run %s decoded %d variant(s) with %d warning(s)", r.id, len(report.Results), len(report.Warnings))

	a.record(ctx, r, report, nil)

	if !a.opts.KeepOutputs {
		if err := os.RemoveAll(r.dir); err != nil {
			logging.AnalyzerWarn("Failed to remove run directory %s: %v", r.dir, err)
		}
	}
	return report, nil
}

// logFailure logs both streams whenever the binary exited non-zero, since they
// are its only diagnostic.
func (a *Analyzer) logFailure(r *run, result *types.ProcessResult, err error) {
	var procErr *types.ExternalProcessError
	switch {
	case errors.As(err, &procErr):
		logging.AnalyzerError("Run %s failed with exit code %d\nargv: %v\nstdout:\n%s\nstderr:\n%s",
			r.id, procErr.ExitCode, procErr.Argv, procErr.Stdout, procErr.Stderr)
	case result != nil && result.ExitCode != 0:
		logging.AnalyzerError("Run %s failed (%s) after exit code %d: %v\nargv: %v\nstdout:\n%s\nstderr:\n%s",
			r.id, types.Kind(err), result.ExitCode, err, r.cmd.Argv(), result.Stdout, result.Stderr)
	default:
		logging.AnalyzerError("Run %s failed (%s): %v", r.id, types.Kind(err), err)
	}
}

func (a *Analyzer) record(ctx context.Context, r *run, report *Report, err error) {
	if a.opts.Recorder == nil {
		return
	}

	rec := store.RunRecord{
		ID:         r.id,
		InputPath:  r.req.InputPath,
		OutputPath: r.cmd.OutputPath(),
		Argv:       report.Command,
		Format:     report.Format,
		Variants:   r.cmd.Variants(),
		ExitCode:   -1,
		Status:     store.StatusSuccess,
		StartedAt:  r.started,
	}
	if p := report.Process; p != nil {
		rec.ExitCode = p.ExitCode
		rec.Duration = p.Duration
		if !p.StartedAt.IsZero() {
			rec.StartedAt = p.StartedAt
		}
		if p.Killed {
			rec.Status = store.StatusKilled
		}
	}
	if err != nil {
		if rec.Status != store.StatusKilled {
			rec.Status = store.StatusFailed
		}
		rec.ErrorKind = types.Kind(err)
		rec.Error = err.Error()
	}
	for _, abbrev := range report.Variants() {
		res := report.Results[abbrev]
		rec.Results = append(rec.Results, store.ResultRecord{
			Variant:    abbrev,
			Rows:       res.Rows(),
			Cols:       res.Cols(),
			SourcePath: res.SourcePath,
			Warnings:   res.Warnings,
			Matrix:     res.Matrix,
		})
	}

	// A cancelled run is still recorded.
	if err := a.opts.Recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		logging.StoreError("Failed to record run %s: %v", r.id, err)
	}
}
